package store

import (
	"context"
	"strconv"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

// casScript swaps KEYS[1] to ARGV[2] with a PX of ARGV[3] when it holds ARGV[1].
// -1 absent, 0 mismatch, 1 swapped.
const casScript = `
local cur = redis.call('GET', KEYS[1])
if not cur then
  return -1
end
if cur ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`

// ValkeyStore stores expiring keys in Valkey (Redis-compatible).
type ValkeyStore struct {
	client valkey.Client
	prefix string
	cas    *valkey.Lua
}

// NewValkeyStore creates a Valkey-backed expiring store.
// addr example: "127.0.0.1:6379"; prefix helps namespace keys.
func NewValkeyStore(addr string, prefix string) (*ValkeyStore, error) {
	cli, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, err
	}
	return NewValkeyStoreWithClient(cli, prefix), nil
}

// NewValkeyStoreWithClient wraps an existing client.
func NewValkeyStoreWithClient(cli valkey.Client, prefix string) *ValkeyStore {
	if prefix == "" {
		prefix = "syncd:"
	}
	return &ValkeyStore{client: cli, prefix: prefix, cas: valkey.NewLuaScript(casScript)}
}

func (s *ValkeyStore) key(k string) string { return s.prefix + k }

func (s *ValkeyStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	cmd := s.client.B().Set().Key(s.key(key)).Value(value).Px(clampTTL(ttl)).Build()
	return s.client.Do(ctx, cmd).Error()
}

func (s *ValkeyStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Do(ctx, s.client.B().Get().Key(s.key(key)).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *ValkeyStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Do(ctx, s.client.B().Exists().Key(s.key(key)).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Del deletes key; missing is not an error
func (s *ValkeyStore) Del(ctx context.Context, key string) error {
	return s.client.Do(ctx, s.client.B().Del().Key(s.key(key)).Build()).Error()
}

func (s *ValkeyStore) Take(ctx context.Context, key string) (string, error) {
	v, err := s.client.Do(ctx, s.client.B().Getdel().Key(s.key(key)).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *ValkeyStore) CompareAndSwap(ctx context.Context, key, old, next string, ttl time.Duration) (bool, error) {
	px := strconv.FormatInt(clampTTL(ttl).Milliseconds(), 10)
	n, err := s.cas.Exec(ctx, s.client, []string{s.key(key)}, []string{old, next, px}).AsInt64()
	if err != nil {
		return false, err
	}
	switch n {
	case -1:
		return false, ErrNotFound
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

// Close closes the Valkey connection.
func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}
