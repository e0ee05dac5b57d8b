// Package redis stores the implicit flow session in Redis, so that several
// processes acting for the same user agent share one session.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FairVenturesLab/implicit-auth/implicit"
	"github.com/redis/go-redis/v9"
)

// Storage implements implicit.Storage on a redis client.  Keys are prefixed
// and optionally expire.
type Storage struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// ensure that Storage implements the implicit.Storage interface
var _ implicit.Storage = (*Storage)(nil)

// New returns a Storage using client.
// Supported options:
//	WithPrefix
//	WithTTL
func New(client redis.UniversalClient, opt ...implicit.Option) (*Storage, error) {
	const op = "redis.New"
	if client == nil {
		return nil, fmt.Errorf("%s: client is nil: %w", op, implicit.ErrNilParameter)
	}
	opts := getStorageOpts(opt...)
	if opts.withTTL < 0 {
		return nil, fmt.Errorf("%s: ttl is negative: %w", op, implicit.ErrInvalidParameter)
	}
	return &Storage{
		client: client,
		prefix: opts.withPrefix,
		ttl:    opts.withTTL,
	}, nil
}

func (s *Storage) key(k string) string { return s.prefix + k }

// Get implements implicit.Storage.Get
func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	const op = "redis.Get"
	v, err := s.client.Get(ctx, s.key(key)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	return v, true, nil
}

// Set implements implicit.Storage.Set.  A zero ttl stores without expiry.
func (s *Storage) Set(ctx context.Context, key, value string) error {
	const op = "redis.Set"
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete implements implicit.Storage.Delete
func (s *Storage) Delete(ctx context.Context, key string) error {
	const op = "redis.Delete"
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DefaultPrefix is prepended to every key unless WithPrefix is given.
const DefaultPrefix = "implicit-auth:"

// storageOptions is the set of available options for New
type storageOptions struct {
	withPrefix string
	withTTL    time.Duration
}

func storageDefaults() storageOptions {
	return storageOptions{withPrefix: DefaultPrefix}
}

func getStorageOpts(opt ...implicit.Option) storageOptions {
	opts := storageDefaults()
	implicit.ApplyOpts(&opts, opt...)
	return opts
}

// WithPrefix provides an optional key prefix
func WithPrefix(p string) implicit.Option {
	return func(o interface{}) {
		if o, ok := o.(*storageOptions); ok {
			o.withPrefix = p
		}
	}
}

// WithTTL provides an optional expiry for every stored key
func WithTTL(d time.Duration) implicit.Option {
	return func(o interface{}) {
		if o, ok := o.(*storageOptions); ok {
			o.withTTL = d
		}
	}
}
