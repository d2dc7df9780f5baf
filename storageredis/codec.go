// Package storageredis provides Redis-backed implementations of
// mempool.Storage and reputation.Storage, keyed per mempool_id the way
// spec.md §6's persisted-state layout describes: four column families
// (uo_by_hash, sender_to_hashes, entity_to_hashes, reputation_by_addr),
// fixed-width 20/32-byte keys, and a version-prefixed encoded value —
// grounded on the teacher's Redis client wrapper (URL parsing, context
// timeouts, Get/Set/Incr primitives).
package storageredis

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/t402-io/aa-mempool/reputation"
	"github.com/t402-io/aa-mempool/uop"
)

// schemaVersion is the 1-byte prefix spec.md §6 calls for so a future
// encoding change can be detected on read.
const schemaVersion byte = 1

type wireEntry struct {
	UserOp               *uop.UserOperation
	Hash                 uop.Hash
	PreFund              string
	VerificationGasLimit string
	CodeHashes           []uop.CodeHash
}

func encodeEntry(e *uop.MempoolEntry) ([]byte, error) {
	w := wireEntry{
		UserOp:     e.UserOp,
		Hash:       e.Hash,
		CodeHashes: e.CodeHashes,
	}
	if e.PreFund != nil {
		w.PreFund = e.PreFund.Hex()
	}
	if e.VerificationGasLimit != nil {
		w.VerificationGasLimit = e.VerificationGasLimit.Hex()
	}
	body, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	return append([]byte{schemaVersion}, body...), nil
}

func decodeEntry(raw []byte) (*uop.MempoolEntry, error) {
	if len(raw) == 0 || raw[0] != schemaVersion {
		return nil, fmt.Errorf("storageredis: unsupported schema version")
	}
	var w wireEntry
	if err := json.Unmarshal(raw[1:], &w); err != nil {
		return nil, err
	}
	entry := &uop.MempoolEntry{
		UserOp:     w.UserOp,
		Hash:       w.Hash,
		CodeHashes: w.CodeHashes,
	}
	if w.PreFund != "" {
		v, err := uint256.FromHex(w.PreFund)
		if err != nil {
			return nil, err
		}
		entry.PreFund = v
	}
	if w.VerificationGasLimit != "" {
		v, err := uint256.FromHex(w.VerificationGasLimit)
		if err != nil {
			return nil, err
		}
		entry.VerificationGasLimit = v
	}
	return entry, nil
}

func encodeReputationEntry(e reputation.Entry) []byte {
	body, _ := json.Marshal(e)
	return append([]byte{schemaVersion}, body...)
}

func decodeReputationEntry(raw []byte) (reputation.Entry, error) {
	var e reputation.Entry
	if len(raw) == 0 || raw[0] != schemaVersion {
		return e, fmt.Errorf("storageredis: unsupported schema version")
	}
	if err := json.Unmarshal(raw[1:], &e); err != nil {
		return e, err
	}
	return e, nil
}
