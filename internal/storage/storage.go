// Package storage provides the string key/value persistence used by the
// identity and appointment stores.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// DefaultNamespace prefixes every key when none is configured.
const DefaultNamespace = "citaFacil"

// GuestUserID namespaces appointments when no user id is available.
const GuestUserID = "guest"

var (
	// ErrUnknownBackend indicates an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown storage backend")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("storage closed")
)

// Store is a flat string key/value medium. Get reports absence with
// ok == false rather than an error; removing an absent key succeeds.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Keys builds the logical keys under a namespace.
type Keys struct {
	Namespace string
}

// NewKeys returns Keys for namespace, falling back to DefaultNamespace.
func NewKeys(namespace string) Keys {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return Keys{Namespace: namespace}
}

// Users is the key of the registered user directory.
func (k Keys) Users() string {
	return k.Namespace + ":users"
}

// Session is the key of the active session.
func (k Keys) Session() string {
	return k.Namespace + ":session"
}

// Appointments is the key of one user's appointment list.
func (k Keys) Appointments(userID string) string {
	if userID == "" {
		userID = GuestUserID
	}
	return fmt.Sprintf("%s:appointments:%s", k.Namespace, userID)
}

// Options configures Open.
type Options struct {
	Backend     string
	RedisURL    string
	DatabaseURL string
	Table       string
}

// Open connects the configured backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendRedis:
		return NewRedis(ctx, opts.RedisURL)
	case BackendPostgres:
		return NewPostgres(ctx, opts.DatabaseURL, opts.Table)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
