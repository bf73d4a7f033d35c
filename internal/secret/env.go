package secret

import (
	"context"
	"os"
	"sort"
	"strings"
)

// EnvStore resolves secrets from environment variables named
// SKILLRUNNER_SECRET_{NAMESPACE}_{KEY}, both segments uppercased with
// every non-alphanumeric rune replaced by "_". It is read-only in
// practice (Set/Delete only affect the current process's environment, not
// any persistent store) and exists for headless and CI use where a real
// OS keyring is unavailable.
type EnvStore struct{}

// NewEnvStore returns a Store backed by the process environment.
func NewEnvStore() *EnvStore {
	return &EnvStore{}
}

func envName(namespace, key string) string {
	return "SKILLRUNNER_SECRET_" + sanitize(namespace) + "_" + sanitize(key)
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (e *EnvStore) Get(_ context.Context, namespace, key string) ([]byte, error) {
	v, ok := os.LookupEnv(envName(namespace, key))
	if !ok {
		return nil, notFound(namespace, key)
	}
	return []byte(v), nil
}

func (e *EnvStore) Set(_ context.Context, namespace, key string, value []byte) error {
	return os.Setenv(envName(namespace, key), string(value))
}

func (e *EnvStore) Delete(_ context.Context, namespace, key string) error {
	return os.Unsetenv(envName(namespace, key))
}

// List enumerates key names (not values) set for namespace by scanning
// the process environment for matching prefixes.
func (e *EnvStore) List(_ context.Context, namespace string) ([]string, error) {
	prefix := "SKILLRUNNER_SECRET_" + sanitize(namespace) + "_"
	var keys []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		keys = append(keys, strings.TrimPrefix(name, prefix))
	}
	sort.Strings(keys)
	return keys, nil
}
