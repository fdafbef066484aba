package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ogulcanaydogan/caseprompt/internal/prompt"
)

const DefaultRedisHash = "caseprompt:prompts"

// RedisStore keeps prompt configs as JSON values in a single Redis hash keyed
// by the joined prompt key. It is the admin-editable backend.
type RedisStore struct {
	rdb  *goredis.Client
	hash string
}

// DialRedis opens a client and fails fast when the server is unreachable.
func DialRedis(ctx context.Context, addr string) (*goredis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func NewRedisStore(rdb *goredis.Client, hash string) *RedisStore {
	if strings.TrimSpace(hash) == "" {
		hash = DefaultRedisHash
	}
	return &RedisStore{rdb: rdb, hash: hash}
}

func (s *RedisStore) Get(ctx context.Context, key prompt.Key) (prompt.Config, bool, error) {
	raw, err := s.rdb.HGet(ctx, s.hash, key.String()).Bytes()
	if errors.Is(err, goredis.Nil) {
		return prompt.Config{}, false, nil
	}
	if err != nil {
		return prompt.Config{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var cfg prompt.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return prompt.Config{}, false, fmt.Errorf("decode prompt %s: %w", key, err)
	}
	return cfg, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key prompt.Key, cfg prompt.Config) error {
	if err := key.Validate(); err != nil {
		return err
	}
	cfg.Key = key
	normalized, err := cfg.Normalize()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("encode prompt %s: %w", key, err)
	}
	if err := s.rdb.HSet(ctx, s.hash, key.String(), raw).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Keys lists every prompt key in the hash; malformed fields are skipped.
func (s *RedisStore) Keys(ctx context.Context) ([]prompt.Key, error) {
	fields, err := s.rdb.HKeys(ctx, s.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("redis keys: %w", err)
	}
	out := make([]prompt.Key, 0, len(fields))
	for _, f := range fields {
		k, err := prompt.ParseKey(f)
		if err != nil {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}
