// Package redis keeps the token set in Redis so several processes can share
// one login. Each kind is a hash under {prefix}tokens:{kind}; derived tokens
// carry a key expiry matching their own.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aussiebroadwan/splatauth/internal/store"
	"github.com/aussiebroadwan/splatauth/pkg/cryptox"
	"github.com/aussiebroadwan/splatauth/pkg/tokens"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key the driver writes.
const DefaultPrefix = "splatauth:"

const (
	fieldValue    = "value"
	fieldIssuedAt = "issued_at_ms"
)

type Store struct {
	client *redis.Client
	prefix string
	sealer *cryptox.Sealer
}

var _ store.Store = (*Store)(nil)

// NewStore connects to the Redis server at url (redis://...).
func NewStore(url, prefix string, sealer *cryptox.Sealer) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return New(redis.NewClient(opts), prefix, sealer)
}

// New wraps an existing client. The store owns client and closes it.
func New(client *redis.Client, prefix string, sealer *cryptox.Sealer) (*Store, error) {
	if sealer == nil {
		return nil, store.ErrNoSealer
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, sealer: sealer}, nil
}

// Client exposes the connection, e.g. for a stream publisher on the same
// server.
func (s *Store) Client() *redis.Client { return s.client }

func (s *Store) key(kind tokens.Kind) string {
	return s.prefix + "tokens:" + kind.String()
}

// ApplyMigrations is a no-op; Redis has no schema.
func (s *Store) ApplyMigrations() error { return nil }

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) LoadTokens(ctx context.Context) ([]tokens.Record, error) {
	var out []tokens.Record
	for _, kind := range tokens.Kinds() {
		rec, err := s.GetToken(ctx, kind)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// GetToken returns the record of kind, or store.ErrNotFound.
func (s *Store) GetToken(ctx context.Context, kind tokens.Kind) (tokens.Record, error) {
	fields, err := s.client.HGetAll(ctx, s.key(kind)).Result()
	if err != nil {
		return tokens.Record{}, fmt.Errorf("failed to read %s: %w", kind, err)
	}
	if len(fields) == 0 {
		return tokens.Record{}, store.ErrNotFound
	}

	issuedMs, err := strconv.ParseInt(fields[fieldIssuedAt], 10, 64)
	if err != nil {
		return tokens.Record{}, fmt.Errorf("failed to parse %s issue time: %w", kind, err)
	}
	value, err := s.sealer.OpenString(fields[fieldValue])
	if err != nil {
		return tokens.Record{}, fmt.Errorf("failed to open %s: %w", kind, err)
	}

	return tokens.Record{Kind: kind, Value: value, IssuedAt: time.UnixMilli(issuedMs)}, nil
}

func (s *Store) SaveToken(ctx context.Context, rec tokens.Record) error {
	if !rec.Kind.Valid() {
		return fmt.Errorf("%w %d", tokens.ErrUnknownKind, int(rec.Kind))
	}

	sealed, err := s.sealer.SealString(rec.Value)
	if err != nil {
		return fmt.Errorf("failed to seal %s: %w", rec.Kind, err)
	}

	key := s.key(rec.Kind)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fieldValue, sealed, fieldIssuedAt, rec.IssuedAt.UnixMilli())
		if ttl := rec.Kind.TTL(); ttl > 0 {
			pipe.ExpireAt(ctx, key, rec.IssuedAt.Add(ttl))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", rec.Kind, err)
	}
	return nil
}

func (s *Store) DeleteTokens(ctx context.Context, kinds ...tokens.Kind) error {
	if len(kinds) == 0 {
		return nil
	}

	keys := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		keys = append(keys, s.key(kind))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete tokens: %w", err)
	}
	return nil
}
