package storageredis

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/t402-io/aa-mempool/reputation"
)

// Reputation is a Redis-backed reputation.Storage, scoped to a single
// mempool_id. Status is still derived on every read, never persisted —
// only the counters, whitelist, and blacklist live in Redis.
type Reputation struct {
	client *redis.Client
	prefix string

	minInclusionRateDenominator uint64
	throttlingSlack             uint64
	banSlack                    uint64
}

// NewReputation connects to redisURL and scopes all keys under
// mempoolID's reputation_by_addr column family.
func NewReputation(redisURL string, mempoolID [32]byte, minInclusionRateDenominator, throttlingSlack, banSlack uint64) (*Reputation, error) {
	opts, err := ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*opTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Reputation{
		client:                      client,
		prefix:                      fmt.Sprintf("aa:%x:", mempoolID),
		minInclusionRateDenominator: minInclusionRateDenominator,
		throttlingSlack:             throttlingSlack,
		banSlack:                    banSlack,
	}, nil
}

func (r *Reputation) addrKey(addr common.Address) string {
	return r.prefix + "reputation_by_addr:" + addr.Hex()
}

func (r *Reputation) listKey() string   { return r.prefix + "reputation_addrs" }
func (r *Reputation) whitelistKey() string { return r.prefix + "reputation_whitelist" }
func (r *Reputation) blacklistKey() string { return r.prefix + "reputation_blacklist" }

func (r *Reputation) getLocked(ctx context.Context, addr common.Address) (reputation.Entry, bool) {
	raw, err := r.client.Get(ctx, r.addrKey(addr)).Bytes()
	if err != nil {
		return reputation.Entry{Address: addr}, false
	}
	e, derr := decodeReputationEntry(raw)
	if derr != nil {
		return reputation.Entry{Address: addr}, false
	}
	return e, true
}

func (r *Reputation) putLocked(ctx context.Context, e reputation.Entry) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.addrKey(e.Address), encodeReputationEntry(e), 0)
	pipe.SAdd(ctx, r.listKey(), e.Address.Hex())
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Reputation) IncrementSeen(addr common.Address) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	e, _ := r.getLocked(ctx, addr)
	e.Address = addr
	e.OpsSeen++
	_ = r.putLocked(ctx, e)
}

func (r *Reputation) IncrementIncluded(addr common.Address) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	e, _ := r.getLocked(ctx, addr)
	e.Address = addr
	e.OpsIncluded++
	_ = r.putLocked(ctx, e)
}

func (r *Reputation) StatusOf(addr common.Address) reputation.Status {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if banned, _ := r.client.SIsMember(ctx, r.blacklistKey(), addr.Hex()).Result(); banned {
		return reputation.Banned
	}
	if white, _ := r.client.SIsMember(ctx, r.whitelistKey(), addr.Hex()).Result(); white {
		return reputation.OK
	}
	e, ok := r.getLocked(ctx, addr)
	if !ok {
		return reputation.OK
	}
	return reputation.DeriveStatus(e.OpsSeen, e.OpsIncluded, r.minInclusionRateDenominator, r.throttlingSlack, r.banSlack)
}

func (r *Reputation) Get(addr common.Address) (reputation.Entry, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return r.getLocked(ctx, addr)
}

func (r *Reputation) GetAll() []reputation.Entry {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	addrs, err := r.client.SMembers(ctx, r.listKey()).Result()
	if err != nil {
		return nil
	}
	out := make([]reputation.Entry, 0, len(addrs))
	for _, a := range addrs {
		addr := common.HexToAddress(a)
		if e, ok := r.getLocked(ctx, addr); ok {
			out = append(out, e)
		}
	}
	return out
}

func (r *Reputation) Set(entries []reputation.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	existing, _ := r.client.SMembers(ctx, r.listKey()).Result()
	if len(existing) > 0 {
		r.client.Del(ctx, r.listKey())
		keys := make([]string, 0, len(existing))
		for _, a := range existing {
			keys = append(keys, r.addrKey(common.HexToAddress(a)))
		}
		r.client.Del(ctx, keys...)
	}
	for _, e := range entries {
		_ = r.putLocked(ctx, e)
	}
}

func (r *Reputation) SetEntities(whitelist, blacklist []common.Address) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	r.client.Del(ctx, r.whitelistKey(), r.blacklistKey())
	for _, a := range whitelist {
		r.client.SAdd(ctx, r.whitelistKey(), a.Hex())
	}
	for _, a := range blacklist {
		r.client.SAdd(ctx, r.blacklistKey(), a.Hex())
	}
}

// DecayOnce applies the hourly decay step across every tracked address.
func (r *Reputation) DecayOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	addrs, err := r.client.SMembers(ctx, r.listKey()).Result()
	if err != nil {
		return
	}
	for _, a := range addrs {
		addr := common.HexToAddress(a)
		e, ok := r.getLocked(ctx, addr)
		if !ok {
			continue
		}
		e.OpsSeen = e.OpsSeen * 23 / 24
		e.OpsIncluded = e.OpsIncluded * 23 / 24
		if e.OpsSeen == 0 && e.OpsIncluded == 0 {
			r.client.Del(ctx, r.addrKey(addr))
			r.client.SRem(ctx, r.listKey(), a)
			continue
		}
		_ = r.putLocked(ctx, e)
	}
}

func (r *Reputation) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	addrs, _ := r.client.SMembers(ctx, r.listKey()).Result()
	keys := make([]string, 0, len(addrs)+1)
	for _, a := range addrs {
		keys = append(keys, r.addrKey(common.HexToAddress(a)))
	}
	keys = append(keys, r.listKey())
	if len(keys) > 0 {
		r.client.Del(ctx, keys...)
	}
}

var _ reputation.Storage = (*Reputation)(nil)
