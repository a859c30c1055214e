// Package redis implements the blob store on Redis hashes. Objects produced
// by file ports are small and short-lived, so a TTL-bounded Redis store keeps
// execution payloads lean without a full object storage dependency.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"goa.design/flowrun/runtime/flow/blob"
	"goa.design/flowrun/runtime/flow/value"
)

const (
	defaultPrefix   = "flowrun:blob:"
	defaultMimeType = "application/octet-stream"
)

type (
	// Options configures the Redis blob store.
	Options struct {
		// Client is the Redis connection. Required.
		Client *goredis.Client
		// Prefix namespaces blob keys. Defaults to "flowrun:blob:".
		Prefix string
		// TTL bounds how long objects are retained. Zero keeps them
		// indefinitely.
		TTL time.Duration
	}

	// Store implements blob.Store on Redis.
	Store struct {
		cmds   commands
		prefix string
		ttl    time.Duration
		newID  func() string
	}
)

// New returns a Store backed by the provided Redis client.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	return newStore(redisCommands{client: opts.Client}, opts.Prefix, opts.TTL), nil
}

func newStore(cmds commands, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{cmds: cmds, prefix: prefix, ttl: ttl, newID: uuid.NewString}
}

// Write stores the bytes under a fresh ID and returns a reference.
func (s *Store) Write(ctx context.Context, data []byte, opts blob.WriteOptions) (value.Ref, error) {
	mime := opts.MimeType
	if mime == "" {
		mime = defaultMimeType
	}
	id := s.newID()
	fields := map[string]any{
		"data":     string(data),
		"mime":     mime,
		"filename": opts.Filename,
		"org":      opts.OrganizationID,
		"exec":     opts.ExecutionID,
	}
	key := s.prefix + id
	if err := s.cmds.HSet(ctx, key, fields); err != nil {
		return value.Ref{}, fmt.Errorf("store blob: %w", err)
	}
	if s.ttl > 0 {
		if err := s.cmds.Expire(ctx, key, s.ttl); err != nil {
			return value.Ref{}, fmt.Errorf("expire blob: %w", err)
		}
	}
	return value.Ref{ID: id, MimeType: mime, Filename: opts.Filename}, nil
}

// Read dereferences a stored object. Returns an error when the reference is
// unknown or expired.
func (s *Store) Read(ctx context.Context, ref value.Ref) (*blob.Object, error) {
	if ref.ID == "" {
		return nil, errors.New("blob reference missing id")
	}
	fields, err := s.cmds.HGetAll(ctx, s.prefix+ref.ID)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("blob not found: %s", ref.ID)
	}
	mime := fields["mime"]
	if mime == "" {
		mime = defaultMimeType
	}
	return &blob.Object{Data: []byte(fields["data"]), MimeType: mime}, nil
}

// commands narrows the Redis surface the store depends on so tests can
// substitute an in-memory implementation.
type commands interface {
	HSet(ctx context.Context, key string, fields map[string]any) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

type redisCommands struct {
	client *goredis.Client
}

func (c redisCommands) HSet(ctx context.Context, key string, fields map[string]any) error {
	return c.client.HSet(ctx, key, fields).Err()
}

func (c redisCommands) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.client.HGetAll(ctx, key).Result()
}

func (c redisCommands) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.client.Expire(ctx, key, ttl).Err()
}
