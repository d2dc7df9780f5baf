// Package uop defines the ERC-4337 UserOperation data model: the
// immutable operation record, the entity roles that can cause
// on-chain side effects during validation, and the stake/code-hash
// records the reputation and trace-inspection layers key off of.
package uop

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// UserOperation is an ERC-4337 pseudo-transaction executed on behalf
// of a smart-contract account via an EntryPoint.
type UserOperation struct {
	Sender               common.Address
	Nonce                *uint256.Int
	InitCode             []byte
	CallData             []byte
	CallGasLimit         *uint256.Int
	VerificationGasLimit *uint256.Int
	PreVerificationGas   *uint256.Int
	MaxFeePerGas         *uint256.Int
	MaxPriorityFeePerGas *uint256.Int
	PaymasterAndData     []byte
	Signature            []byte
}

// Hash is the UserOperation's identity: H(pack(uo), entrypoint, chainID).
type Hash common.Hash

func (h Hash) Hex() string { return common.Hash(h).Hex() }

// Entity is one of the four roles that can cause on-chain side
// effects during validation. Entities are indexed 0..3 throughout so
// stake info and per-entity limits can be carried as fixed arrays.
type Entity int

const (
	EntitySender Entity = iota
	EntityFactory
	EntityPaymaster
	EntityAggregator
	numEntities
)

func (e Entity) String() string {
	switch e {
	case EntitySender:
		return "sender"
	case EntityFactory:
		return "factory"
	case EntityPaymaster:
		return "paymaster"
	case EntityAggregator:
		return "aggregator"
	default:
		return "unknown"
	}
}

// NumEntities is the fixed width of any per-entity array (stake info,
// unstaked-entity caps).
const NumEntities = int(numEntities)

// StakeInfo is the stake an entity has deposited with the EntryPoint.
type StakeInfo struct {
	Stake            *uint256.Int
	UnstakeDelaySec  *uint256.Int
}

// IsStaked reports whether the entity meets the minimum stake and
// unstake-delay thresholds.
func (s StakeInfo) IsStaked(minStake, minUnstakeDelaySec *uint256.Int) bool {
	if s.Stake == nil || s.UnstakeDelaySec == nil {
		return false
	}
	return s.Stake.Cmp(minStake) >= 0 && s.UnstakeDelaySec.Cmp(minUnstakeDelaySec) >= 0
}

// CodeHash pairs an address with the keccak256 of its deployed code,
// captured at the verification block.
type CodeHash struct {
	Address common.Address
	Hash    common.Hash
}

// Factory returns the factory address from InitCode, and whether one
// is present. The factory is the first 20 bytes of InitCode.
func (u *UserOperation) Factory() (common.Address, bool) {
	if len(u.InitCode) < 20 {
		return common.Address{}, false
	}
	return common.BytesToAddress(u.InitCode[:20]), true
}

// Paymaster returns the paymaster address from PaymasterAndData, and
// whether one is present. The paymaster is the first 20 bytes.
func (u *UserOperation) Paymaster() (common.Address, bool) {
	if len(u.PaymasterAndData) < 20 {
		return common.Address{}, false
	}
	return common.BytesToAddress(u.PaymasterAndData[:20]), true
}

// HasInitCode reports whether the operation carries account-deployment data.
func (u *UserOperation) HasInitCode() bool { return len(u.InitCode) > 0 }

// HasPaymaster reports whether the operation carries paymaster data.
func (u *UserOperation) HasPaymaster() bool { return len(u.PaymasterAndData) > 0 }

// pack concatenates the fields in declaration order for hashing, with
// InitCode, CallData and PaymasterAndData replaced by their keccak256
// and Signature left out. This
// is not EIP-712/ABI packing (that's the EntryPoint's concern on
// chain) — it only needs to be a stable, collision-resistant encoding
// for the mempool's own identity computation.
func (u *UserOperation) pack() []byte {
	buf := make([]byte, 0, 256+len(u.InitCode)+len(u.CallData)+len(u.PaymasterAndData)+len(u.Signature))
	buf = append(buf, u.Sender.Bytes()...)
	buf = append(buf, u256Bytes(u.Nonce)...)
	buf = append(buf, crypto.Keccak256(u.InitCode)...)
	buf = append(buf, crypto.Keccak256(u.CallData)...)
	buf = append(buf, u256Bytes(u.CallGasLimit)...)
	buf = append(buf, u256Bytes(u.VerificationGasLimit)...)
	buf = append(buf, u256Bytes(u.PreVerificationGas)...)
	buf = append(buf, u256Bytes(u.MaxFeePerGas)...)
	buf = append(buf, u256Bytes(u.MaxPriorityFeePerGas)...)
	buf = append(buf, crypto.Keccak256(u.PaymasterAndData)...)
	return buf
}

func u256Bytes(v *uint256.Int) []byte {
	if v == nil {
		v = uint256.NewInt(0)
	}
	b := v.Bytes32()
	return b[:]
}

// Hash computes the UserOperation's identity for a given EntryPoint
// and chain ID: H(pack(uo), entrypoint, chainID).
func (u *UserOperation) Hash(entryPoint common.Address, chainID *uint256.Int) Hash {
	packed := u.pack()
	full := make([]byte, 0, len(packed)+20+32)
	full = append(full, packed...)
	full = append(full, entryPoint.Bytes()...)
	full = append(full, u256Bytes(chainID)...)
	return Hash(crypto.Keccak256Hash(full))
}
