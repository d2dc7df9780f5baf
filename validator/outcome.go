package validator

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/t402-io/aa-mempool/uop"
)

// Outcome is everything a successful validate() call hands back to
// the admission coordinator (spec.md §4.4).
type Outcome struct {
	PrevHash             *uop.Hash
	PreFund              *uint256.Int
	VerificationGasLimit *uint256.Int
	ValidAfter           *uint256.Int
	CodeHashes           []uop.CodeHash
	StorageMap           map[common.Address]map[common.Hash]common.Hash
	VerifiedBlock        *uint256.Int

	// SenderStaked is carried out of the validator so the admission
	// coordinator doesn't need a second StakeOf round-trip just to
	// decide whether Mempool.Add should enforce MaxUOsPerSender.
	SenderStaked bool

	// Aggregator is set when simulateValidation reports a signature
	// aggregator, so the coordinator can bump its ops_seen alongside
	// sender/factory/paymaster (spec.md §3/§4.5: aggregator is a fourth
	// entity role subject to the same reputation accounting).
	Aggregator *common.Address
}
