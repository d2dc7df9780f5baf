package uop

import "github.com/holiman/uint256"

// MempoolEntry owns one UserOperation plus everything admission and
// simulation derived for it. It is created at admission, mutated only
// by replacement (same sender+nonce), and destroyed at removal.
type MempoolEntry struct {
	UserOp               *UserOperation
	Hash                 Hash
	PreFund              *uint256.Int
	VerificationGasLimit *uint256.Int
	CodeHashes           []CodeHash
}

// Clone returns a copy with its own UserOperation struct and its own
// CodeHashes slice. The UserOperation's byte slices and *uint256.Int
// fields are not deep-copied and still share storage with the
// original, matching the teacher's treatment of []byte payloads as
// immutable once set.
func (e *MempoolEntry) Clone() *MempoolEntry {
	cp := *e
	uoCp := *e.UserOp
	cp.UserOp = &uoCp
	if e.CodeHashes != nil {
		cp.CodeHashes = append([]CodeHash(nil), e.CodeHashes...)
	}
	return &cp
}
