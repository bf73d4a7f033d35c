package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillrunner/skillrunner/internal/manifest"
	"github.com/skillrunner/skillrunner/internal/sandbox"
)

func mustSpec(t *testing.T, allowNetwork bool, allowedHosts []string) *sandbox.Spec {
	t.Helper()
	return &sandbox.Spec{AllowNetwork: allowNetwork, AllowedHosts: allowedHosts}
}

func TestComponentAdapter_Kind(t *testing.T) {
	a, err := NewComponentAdapter(context.Background(), 8)
	require.NoError(t, err)
	defer a.Close(context.Background())
	assert.Equal(t, manifest.RuntimeComponent, a.Kind())
}

func TestComponentAdapter_CacheKeyDiffersByCapability(t *testing.T) {
	a, err := NewComponentAdapter(context.Background(), 8)
	require.NoError(t, err)
	defer a.Close(context.Background())

	wasmBytes := []byte("fake-module-bytes")
	reqA := Request{
		Skill:   &manifest.Skill{Name: "demo"},
		Tool:    &manifest.Tool{Name: "run"},
		Sandbox: mustSpec(t, false, nil),
	}
	reqB := Request{
		Skill:   &manifest.Skill{Name: "demo"},
		Tool:    &manifest.Tool{Name: "run"},
		Sandbox: mustSpec(t, true, []string{"example.com"}),
	}

	keyA := a.cacheKey(wasmBytes, reqA)
	keyB := a.cacheKey(wasmBytes, reqB)
	assert.NotEqual(t, keyA, keyB)
}

func TestComponentAdapter_CacheKeyStableForIdenticalInputs(t *testing.T) {
	a, err := NewComponentAdapter(context.Background(), 8)
	require.NoError(t, err)
	defer a.Close(context.Background())

	wasmBytes := []byte("fake-module-bytes")
	req := Request{
		Skill:   &manifest.Skill{Name: "demo"},
		Tool:    &manifest.Tool{Name: "run"},
		Sandbox: mustSpec(t, false, nil),
	}

	assert.Equal(t, a.cacheKey(wasmBytes, req), a.cacheKey(wasmBytes, req))
}

func TestComponentAdapter_LoadSourceFailure(t *testing.T) {
	a, err := NewComponentAdapter(context.Background(), 8)
	require.NoError(t, err)
	defer a.Close(context.Background())
	a.loadSource = func(source string) ([]byte, error) {
		return nil, assertErr{"no such component"}
	}

	req := Request{
		Skill:   &manifest.Skill{Name: "demo", Source: "missing.wasm"},
		Tool:    &manifest.Tool{Name: "run"},
		Sandbox: mustSpec(t, false, nil),
	}
	_, err = a.Execute(context.Background(), req)
	require.Error(t, err)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
