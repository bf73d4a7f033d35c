package secret

import (
	"context"
	"errors"

	"github.com/zalando/go-keyring"

	"github.com/skillrunner/skillrunner/internal/skillerr"
)

// servicePrefix namespaces every credential this process writes to the OS
// keyring so it never collides with unrelated applications' entries.
const servicePrefix = "skillrunner:"

// KeyringStore resolves secrets against the operating system's native
// credential store (macOS Keychain, Windows Credential Manager, the Secret
// Service on Linux) via github.com/zalando/go-keyring.
//
// go-keyring has no native "list keys in a namespace" operation, so
// KeyringStore additionally maintains a small per-namespace index of known
// key names (itself stored in the keyring, under a reserved key) purely so
// List can enumerate without ever touching a value.
type KeyringStore struct{}

// NewKeyringStore returns a Store backed by the OS keyring.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func (k *KeyringStore) service(namespace string) string {
	return servicePrefix + namespace
}

func (k *KeyringStore) Get(_ context.Context, namespace, key string) ([]byte, error) {
	v, err := keyring.Get(k.service(namespace), key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, notFound(namespace, key)
	}
	if err != nil {
		return nil, skillerr.SecretUnavailable("keyring backend unavailable", err)
	}
	return []byte(v), nil
}

func (k *KeyringStore) Set(_ context.Context, namespace, key string, value []byte) error {
	if err := keyring.Set(k.service(namespace), key, string(value)); err != nil {
		return skillerr.SecretUnavailable("keyring backend unavailable", err)
	}
	if err := k.indexAdd(namespace, key); err != nil {
		return err
	}
	return nil
}

func (k *KeyringStore) Delete(_ context.Context, namespace, key string) error {
	err := keyring.Delete(k.service(namespace), key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return skillerr.SecretUnavailable("keyring backend unavailable", err)
	}
	return k.indexRemove(namespace, key)
}

func (k *KeyringStore) List(_ context.Context, namespace string) ([]string, error) {
	return k.indexList(namespace)
}

// indexKey is the reserved key name, per namespace, whose value is a
// newline-joined list of the other key names set in that namespace.
const indexKey = "__skillrunner_index__"

func (k *KeyringStore) indexList(namespace string) ([]string, error) {
	raw, err := keyring.Get(k.service(namespace), indexKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, skillerr.SecretUnavailable("keyring backend unavailable", err)
	}
	return splitIndex(raw), nil
}

func (k *KeyringStore) indexAdd(namespace, key string) error {
	keys, err := k.indexList(namespace)
	if err != nil {
		return err
	}
	for _, existing := range keys {
		if existing == key {
			return nil
		}
	}
	keys = append(keys, key)
	if err := keyring.Set(k.service(namespace), indexKey, joinIndex(keys)); err != nil {
		return skillerr.SecretUnavailable("keyring backend unavailable", err)
	}
	return nil
}

func (k *KeyringStore) indexRemove(namespace, key string) error {
	keys, err := k.indexList(namespace)
	if err != nil {
		return err
	}
	filtered := keys[:0]
	for _, existing := range keys {
		if existing != key {
			filtered = append(filtered, existing)
		}
	}
	if len(filtered) == 0 {
		_ = keyring.Delete(k.service(namespace), indexKey)
		return nil
	}
	if err := keyring.Set(k.service(namespace), indexKey, joinIndex(filtered)); err != nil {
		return skillerr.SecretUnavailable("keyring backend unavailable", err)
	}
	return nil
}

func splitIndex(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\n' {
			out = append(out, raw[start:i])
			start = i + 1
		}
	}
	out = append(out, raw[start:])
	return out
}

func joinIndex(keys []string) string {
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += "\n"
		}
		out += k
	}
	return out
}
