// Package cachesvc implements the identity caches and verification code stores.
package cachesvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/identity"
)

// NewRedisClient connects to conf.Addr. It returns nil, nil when Redis is not configured.
func NewRedisClient(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	if conf.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

// PrincipalCache stores resolved principals as JSON under `<prefix>:principal:<sub>`.
type PrincipalCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger core.Logger
}

var _ identity.PrincipalCache = (*PrincipalCache)(nil)

func NewPrincipalCache(client redis.UniversalClient, prefix string, ttl time.Duration, logger core.Logger) *PrincipalCache {
	return &PrincipalCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *PrincipalCache) key(sub string) string {
	return c.prefix + ":principal:" + sub
}

// Get treats any Redis failure as a miss.
func (c *PrincipalCache) Get(ctx context.Context, sub string) (identity.Principal, bool) {
	data, err := c.client.Get(ctx, c.key(sub)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("getting cached principal", err)
		}
		return identity.Principal{}, false
	}
	var p identity.Principal
	if err = json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("decoding cached principal", err)
		return identity.Principal{}, false
	}
	return p, true
}

func (c *PrincipalCache) Set(ctx context.Context, sub string, p identity.Principal) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encoding principal")
	}
	return errors.Wrap(c.client.Set(ctx, c.key(sub), data, c.ttl).Err(), "caching principal")
}

func (c *PrincipalCache) Delete(ctx context.Context, subs ...string) error {
	if len(subs) == 0 {
		return nil
	}
	keys := make([]string, len(subs))
	for i, sub := range subs {
		keys[i] = c.key(sub)
	}
	return errors.Wrap(c.client.Del(ctx, keys...).Err(), "evicting principals")
}

// CodeStore keeps verification codes under `<prefix>:code:<key>`.
type CodeStore struct {
	client redis.UniversalClient
	prefix string
}

func NewCodeStore(client redis.UniversalClient, prefix string) *CodeStore {
	return &CodeStore{client: client, prefix: prefix}
}

func (s *CodeStore) key(k string) string {
	return s.prefix + ":code:" + k
}

func (s *CodeStore) SaveCode(ctx context.Context, key, code string, ttl time.Duration) error {
	return errors.Wrap(s.client.Set(ctx, s.key(key), code, ttl).Err(), "saving code")
}

func (s *CodeStore) GetCode(ctx context.Context, key string) (string, bool, error) {
	code, err := s.client.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "getting code")
	}
	return code, true, nil
}

func (s *CodeStore) DeleteCode(ctx context.Context, key string) error {
	return errors.Wrap(s.client.Del(ctx, s.key(key)).Err(), "deleting code")
}
