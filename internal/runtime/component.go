package runtime

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/skillrunner/skillrunner/internal/manifest"
	"github.com/skillrunner/skillrunner/internal/skillerr"
)

// ComponentAdapter runs a skill's tool as a WebAssembly module under
// github.com/tetratelabs/wazero. Host access is wired per sandbox.Spec:
// WASI preview1 exposes only the directories spec.Mounts grants
// (read-only honored via a read-only dir mount) and the environment
// variables spec.Env sets. No network host function is ever registered,
// so a component has no path to outbound network access regardless of
// what WASI alone could otherwise expose; capability_denied is the
// implicit result of the import simply not existing.
//
// Compiled modules are cached by (content hash of the wasm bytes,
// capability-set hash) in a hashicorp/golang-lru/v2 LRU instead of
// recompiling on every call.
type ComponentAdapter struct {
	runtime wazero.Runtime
	cache   *lru.Cache[string, wazero.CompiledModule]

	// loadSource resolves a skill's Source to the compiled module's wasm
	// bytes; overridable in tests.
	loadSource func(source string) ([]byte, error)
}

// NewComponentAdapter constructs a ComponentAdapter with a fresh wazero
// runtime and a module cache of the given size.
func NewComponentAdapter(ctx context.Context, cacheSize int) (*ComponentAdapter, error) {
	rt := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return nil, skillerr.SandboxError("failed to instantiate WASI", err)
	}
	cache, err := lru.New[string, wazero.CompiledModule](cacheSize)
	if err != nil {
		return nil, skillerr.Internal("failed to create component module cache", err)
	}
	return &ComponentAdapter{
		runtime:    rt,
		cache:      cache,
		loadSource: os.ReadFile,
	}, nil
}

func (a *ComponentAdapter) Kind() manifest.RuntimeKind { return manifest.RuntimeComponent }

// Close releases the underlying wazero runtime and every cached module.
func (a *ComponentAdapter) Close(ctx context.Context) error {
	return a.runtime.Close(ctx)
}

func (a *ComponentAdapter) Execute(ctx context.Context, req Request) (*Result, error) {
	wasmBytes, err := a.loadSource(req.Skill.Source)
	if err != nil {
		return nil, skillerr.SandboxError("failed to load component bytes", err)
	}

	compiled, err := a.compiledModule(ctx, wasmBytes, req)
	if err != nil {
		return nil, err
	}

	maxKB := req.Sandbox.MaxOutputKB
	if maxKB <= 0 {
		maxKB = DefaultMaxOutputKB
	}
	var stdout bytes.Buffer
	limited := &limitWriter{w: &stdout, limit: int64(maxKB) * 1024}

	cfg := a.moduleConfig(req).WithStdout(limited)

	start := time.Now()
	mod, err := a.runtime.InstantiateModule(ctx, compiled, cfg)
	if mod != nil {
		defer mod.Close(ctx)
	}
	duration := time.Since(start).Milliseconds()

	if ctx.Err() != nil {
		return nil, skillerr.Cancelled("component execution cancelled: " + ctx.Err().Error())
	}
	if err != nil {
		return nil, skillerr.RuntimeError("component instantiation failed", err)
	}

	return &Result{
		OutputJSON: stdout.Bytes(),
		Truncated:  limited.truncated,
		DurationMS: duration,
	}, nil
}

// cacheKey hashes the wasm bytes together with the capability set so two
// instances of the same skill with different capability grants never
// share a compiled-and-linked module.
func (a *ComponentAdapter) cacheKey(wasmBytes []byte, req Request) string {
	h := sha256.New()
	h.Write(wasmBytes)
	h.Write([]byte(req.Sandbox.AllowedHostsKey()))
	for _, m := range req.Sandbox.Mounts {
		h.Write([]byte(m.HostPath + ":" + m.GuestPath))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (a *ComponentAdapter) compiledModule(ctx context.Context, wasmBytes []byte, req Request) (wazero.CompiledModule, error) {
	key := a.cacheKey(wasmBytes, req)
	if m, ok := a.cache.Get(key); ok {
		return m, nil
	}
	compiled, err := a.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, skillerr.SandboxError("failed to compile component", err)
	}
	a.cache.Add(key, compiled)
	return compiled, nil
}

func (a *ComponentAdapter) moduleConfig(req Request) wazero.ModuleConfig {
	cfg := wazero.NewModuleConfig().
		WithStdin(bytes.NewReader(req.ArgumentsJSON)).
		WithName(req.Skill.Name + "/" + req.Tool.Name)

	for _, e := range req.Sandbox.Env {
		cfg = cfg.WithEnv(e.Name, e.Value)
	}

	fsConfig := wazero.NewFSConfig()
	for _, m := range req.Sandbox.Mounts {
		if m.ReadOnly {
			fsConfig = fsConfig.WithReadOnlyDirMount(m.HostPath, m.GuestPath)
		} else {
			fsConfig = fsConfig.WithDirMount(m.HostPath, m.GuestPath)
		}
	}
	cfg = cfg.WithFSConfig(fsConfig)

	return cfg
}
