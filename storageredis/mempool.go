package storageredis

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/t402-io/aa-mempool/mempool"
	"github.com/t402-io/aa-mempool/uop"
)

// opTimeout bounds every round trip to Redis, the way the teacher's
// client wrapper bounds its connectivity probe.
const opTimeout = 3 * time.Second

// ParseURL turns a redis:// URL into go-redis Options, matching the
// teacher's parseRedisURL (host, optional user/password).
func ParseURL(redisURL string) (*redis.Options, error) {
	u, err := url.Parse(redisURL)
	if err != nil {
		return nil, err
	}
	opts := &redis.Options{Addr: u.Host}
	if u.User != nil {
		opts.Username = u.User.Username()
		if password, ok := u.User.Password(); ok {
			opts.Password = password
		}
	}
	return opts, nil
}

// Mempool is a Redis-backed mempool.Storage, scoped to a single
// mempool_id. Keys are namespaced under that id so one Redis instance
// can back every supported EntryPoint's pair.
type Mempool struct {
	client *redis.Client
	prefix string

	gasIncreasePercent int64
	maxUOsPerSender    int
}

// NewMempool connects to redisURL and scopes all keys under
// mempoolID's four column families.
func NewMempool(redisURL string, mempoolID [32]byte, gasIncreasePercent int64, maxUOsPerSender int) (*Mempool, error) {
	opts, err := ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Mempool{
		client:             client,
		prefix:             fmt.Sprintf("aa:%x:", mempoolID),
		gasIncreasePercent: gasIncreasePercent,
		maxUOsPerSender:    maxUOsPerSender,
	}, nil
}

func (m *Mempool) uoKey(hash uop.Hash) string {
	return m.prefix + "uo_by_hash:" + hash.Hex()
}

func (m *Mempool) senderKey(sender [20]byte) string {
	return m.prefix + "sender_to_hashes:" + common20Hex(sender)
}

func (m *Mempool) senderNonceKey(sender [20]byte, nonce string) string {
	return m.prefix + "sender_nonce:" + common20Hex(sender) + ":" + nonce
}

func (m *Mempool) entityKey(role uop.Entity, addr [20]byte) string {
	return fmt.Sprintf("%sentity_to_hashes:%d:%s", m.prefix, int(role), common20Hex(addr))
}

func (m *Mempool) allKey() string {
	return m.prefix + "all_hashes"
}

func common20Hex(b [20]byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 40)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0x0f]
	}
	return string(out)
}

func entityAddresses(u *uop.UserOperation) map[uop.Entity][20]byte {
	out := map[uop.Entity][20]byte{uop.EntitySender: u.Sender}
	if f, ok := u.Factory(); ok {
		out[uop.EntityFactory] = f
	}
	if p, ok := u.Paymaster(); ok {
		out[uop.EntityPaymaster] = p
	}
	return out
}

func (m *Mempool) Add(entry *uop.MempoolEntry, isStaked bool) (uop.Hash, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	sender := entry.UserOp.Sender
	nonceKey := m.senderNonceKey(sender, nonceString(entry.UserOp))

	prevHashHex, err := m.client.Get(ctx, nonceKey).Result()
	if err == nil {
		prevEntry, ok, gerr := m.getByHashHex(ctx, prevHashHex)
		if gerr != nil {
			return uop.Hash{}, gerr
		}
		if ok {
			if cerr := mempool.CheckReplacementFees(prevEntry.UserOp, entry.UserOp, m.gasIncreasePercent); cerr != nil {
				return uop.Hash{}, cerr
			}
			if rerr := m.removeLocked(ctx, prevEntry); rerr != nil {
				return uop.Hash{}, rerr
			}
		}
	} else if err != redis.Nil {
		return uop.Hash{}, err
	} else if !isStaked && m.maxUOsPerSender > 0 {
		count, cerr := m.client.SCard(ctx, m.senderKey(sender)).Result()
		if cerr != nil {
			return uop.Hash{}, cerr
		}
		if int(count) >= m.maxUOsPerSender {
			return uop.Hash{}, &mempool.Error{Reason: mempool.ReasonSenderOverLimit}
		}
	}

	encoded, err := encodeEntry(entry)
	if err != nil {
		return uop.Hash{}, err
	}

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, m.uoKey(entry.Hash), encoded, 0)
	pipe.Set(ctx, nonceKey, entry.Hash.Hex(), 0)
	pipe.SAdd(ctx, m.senderKey(sender), entry.Hash.Hex())
	pipe.SAdd(ctx, m.allKey(), entry.Hash.Hex())
	for role, addr := range entityAddresses(entry.UserOp) {
		pipe.SAdd(ctx, m.entityKey(role, addr), entry.Hash.Hex())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return uop.Hash{}, err
	}
	return entry.Hash, nil
}

func nonceString(u *uop.UserOperation) string {
	if u.Nonce == nil {
		return "0"
	}
	return u.Nonce.String()
}

func (m *Mempool) getByHashHex(ctx context.Context, hashHex string) (*uop.MempoolEntry, bool, error) {
	raw, err := m.client.Get(ctx, m.prefix+"uo_by_hash:"+hashHex).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	entry, err := decodeEntry(raw)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

func (m *Mempool) removeLocked(ctx context.Context, entry *uop.MempoolEntry) error {
	pipe := m.client.TxPipeline()
	pipe.Del(ctx, m.uoKey(entry.Hash))
	pipe.Del(ctx, m.senderNonceKey(entry.UserOp.Sender, nonceString(entry.UserOp)))
	pipe.SRem(ctx, m.senderKey(entry.UserOp.Sender), entry.Hash.Hex())
	pipe.SRem(ctx, m.allKey(), entry.Hash.Hex())
	for role, addr := range entityAddresses(entry.UserOp) {
		pipe.SRem(ctx, m.entityKey(role, addr), entry.Hash.Hex())
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (m *Mempool) Remove(hash uop.Hash) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	entry, ok, err := m.getByHashHex(ctx, hash.Hex())
	if err != nil {
		return err
	}
	if !ok {
		return &mempool.Error{Reason: mempool.ReasonNotFound}
	}
	return m.removeLocked(ctx, entry)
}

func (m *Mempool) GetByHash(hash uop.Hash) (*uop.MempoolEntry, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	entry, ok, err := m.getByHashHex(ctx, hash.Hex())
	if err != nil || !ok {
		return nil, false
	}
	return entry, true
}

func (m *Mempool) GetPrevBySender(uo *uop.UserOperation) (*uop.MempoolEntry, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	hashHex, err := m.client.Get(ctx, m.senderNonceKey(uo.Sender, nonceString(uo))).Result()
	if err != nil {
		return nil, false
	}
	entry, ok, err := m.getByHashHex(ctx, hashHex)
	if err != nil || !ok {
		return nil, false
	}
	return entry, true
}

func (m *Mempool) hashesFromSet(ctx context.Context, key string) []uop.Hash {
	members, err := m.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil
	}
	out := make([]uop.Hash, 0, len(members))
	for _, hx := range members {
		out = append(out, hexToHash(hx))
	}
	return out
}

func (m *Mempool) GetAllBySender(sender [20]byte) []uop.Hash {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return m.hashesFromSet(ctx, m.senderKey(sender))
}

func (m *Mempool) GetAllByEntity(role uop.Entity, addr [20]byte) []uop.Hash {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return m.hashesFromSet(ctx, m.entityKey(role, addr))
}

func (m *Mempool) GetAll() []*uop.UserOperation {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	hashes := m.hashesFromSet(ctx, m.allKey())
	out := make([]*uop.UserOperation, 0, len(hashes))
	for _, h := range hashes {
		entry, ok, err := m.getByHashHex(ctx, h.Hex())
		if err != nil || !ok {
			continue
		}
		out = append(out, entry.UserOp)
	}
	return out
}

func (m *Mempool) SetCodeHashes(hash uop.Hash, hashes []uop.CodeHash) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	entry, ok, err := m.getByHashHex(ctx, hash.Hex())
	if err != nil {
		return err
	}
	if !ok {
		return &mempool.Error{Reason: mempool.ReasonNotFound}
	}
	entry.CodeHashes = append([]uop.CodeHash(nil), hashes...)
	encoded, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, m.uoKey(hash), encoded, 0).Err()
}

func (m *Mempool) GetCodeHashes(hash uop.Hash) ([]uop.CodeHash, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	entry, ok, err := m.getByHashHex(ctx, hash.Hex())
	if err != nil || !ok {
		return nil, false
	}
	return append([]uop.CodeHash(nil), entry.CodeHashes...), true
}

func (m *Mempool) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	iter := m.client.Scan(ctx, 0, m.prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		m.client.Del(ctx, keys...)
	}
}

func (m *Mempool) Size() int {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	n, err := m.client.SCard(ctx, m.allKey()).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

func hexToHash(hx string) uop.Hash {
	var h uop.Hash
	b := []byte(hx)
	if len(b) >= 2 && b[0] == '0' && (b[1] == 'x' || b[1] == 'X') {
		b = b[2:]
	}
	decoded := make([]byte, 32)
	for i := 0; i < 32 && i*2+1 < len(b); i++ {
		decoded[i] = hexNibble(b[i*2])<<4 | hexNibble(b[i*2+1])
	}
	copy(h[:], decoded)
	return h
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

var _ mempool.Storage = (*Mempool)(nil)
