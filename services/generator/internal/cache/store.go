// Package cache persists raw dataset payloads between runs. Entries are
// written once and never replaced; presence of a key is the only hit signal.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Driver names a cache backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

var (
	// ErrNotFound is returned by Get for a key that was never written.
	ErrNotFound = errors.New("cache entry not found")
	// ErrExists is returned by Put for a key that already holds a value.
	ErrExists = errors.New("cache entry already exists")
)

// Store is a create-only key/value store.
type Store interface {
	Driver() Driver
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Options selects and configures a backend.
type Options struct {
	Driver Driver
	Dir    string
	S3     S3Config
}

// Open returns the backend named by opts.Driver. An empty driver means fs.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch Driver(strings.ToLower(string(opts.Driver))) {
	case DriverFilesystem, "":
		return NewFilesystemStore(opts.Dir)
	case DriverS3:
		return NewS3Store(ctx, opts.S3)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", opts.Driver)
	}
}

// validateKey rejects keys that could escape a flat namespace.
func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("empty cache key")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("invalid cache key %q: contains '..'", key)
	}
	if strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("invalid cache key %q: contains a path separator", key)
	}
	return nil
}
