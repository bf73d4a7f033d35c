// Package secret implements the Secret Store: a namespaced, opaque-bytes
// key-value store resolved only at execution time, never at manifest
// load. The OS keyring (github.com/zalando/go-keyring) is the preferred
// backend; an environment-variable table serves headless machines. Log
// output never carries a secret value.
package secret

import (
	"context"
	"log/slog"

	"github.com/skillrunner/skillrunner/internal/skillerr"
)

// Store resolves secret references to opaque byte values. Implementations
// must never return a not_found distinguishable from an empty value in a
// way that leaks existence across namespaces the caller cannot access.
type Store interface {
	// Get returns the value for (namespace, key), or a skillerr.Error with
	// Code == skillerr.CodeNotFound if it is not set.
	Get(ctx context.Context, namespace, key string) ([]byte, error)

	// Set stores value under (namespace, key), overwriting any prior value.
	Set(ctx context.Context, namespace, key string, value []byte) error

	// Delete removes (namespace, key). It is not an error to delete a key
	// that does not exist.
	Delete(ctx context.Context, namespace, key string) error

	// List returns the key names set under namespace, never the values.
	List(ctx context.Context, namespace string) ([]string, error)
}

// LoggingStore wraps an underlying Store and logs every access at Info
// level, naming the namespace, key, and operation but never the value.
type LoggingStore struct {
	backend Store
	logger  *slog.Logger
}

// NewLoggingStore wraps backend with access logging via logger.
func NewLoggingStore(backend Store, logger *slog.Logger) *LoggingStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingStore{backend: backend, logger: logger}
}

func (s *LoggingStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	v, err := s.backend.Get(ctx, namespace, key)
	s.log("get", namespace, key, err)
	return v, err
}

func (s *LoggingStore) Set(ctx context.Context, namespace, key string, value []byte) error {
	err := s.backend.Set(ctx, namespace, key, value)
	s.log("set", namespace, key, err)
	return err
}

func (s *LoggingStore) Delete(ctx context.Context, namespace, key string) error {
	err := s.backend.Delete(ctx, namespace, key)
	s.log("delete", namespace, key, err)
	return err
}

func (s *LoggingStore) List(ctx context.Context, namespace string) ([]string, error) {
	keys, err := s.backend.List(ctx, namespace)
	s.log("list", namespace, "", err)
	return keys, err
}

func (s *LoggingStore) log(op, namespace, key string, err error) {
	attrs := []any{"op", op, "namespace", namespace}
	if key != "" {
		attrs = append(attrs, "key", key)
	}
	if err != nil {
		s.logger.Error("secret store access failed", append(attrs, "error", err)...)
		return
	}
	s.logger.Info("secret store access", attrs...)
}

// notFound builds the standard not_found error for a missing secret.
func notFound(namespace, key string) error {
	return skillerr.NotFound("secret not set", nil).
		WithDetail("namespace", namespace).
		WithDetail("key", key)
}
