// Package runtime defines the common Adapter interface implemented by the
// three execution backends a skill can run under — component (WebAssembly,
// via github.com/tetratelabs/wazero), container (docker/podman CLI
// shell-out), and native (direct os/exec with a stripped environment) —
// and the shared request/result/error-taxonomy types every adapter uses.
package runtime

import (
	"context"

	"github.com/skillrunner/skillrunner/internal/manifest"
	"github.com/skillrunner/skillrunner/internal/sandbox"
)

// Request is everything an Adapter needs to run one tool invocation.
type Request struct {
	Skill    *manifest.Skill
	Tool     *manifest.Tool
	Instance *manifest.Instance
	Sandbox  *sandbox.Spec
	// ArgumentsJSON is the caller-supplied tool arguments, already
	// validated against Tool.Parameters by the Executor.
	ArgumentsJSON []byte
}

// Result is what an Adapter reports back after one execution attempt.
type Result struct {
	// OutputJSON is the tool's reported output, if it produced one.
	OutputJSON []byte
	// ExitCode is the process/module exit status, where applicable.
	ExitCode int
	// Truncated is true if output exceeded the sandbox's MaxOutputKB and
	// was cut short.
	Truncated bool
	// DurationMS is how long the call took, wall-clock.
	DurationMS int64
}

// Adapter runs one tool invocation under a specific execution backend.
// Implementations must honor ctx cancellation: when ctx ends, Execute
// returns promptly with a skillerr.CodeCancelled or skillerr.CodeTimeout
// error, never leaving an orphaned subprocess or module instance running.
type Adapter interface {
	// Execute runs req and returns its Result, or a *skillerr.Error
	// classified per the common failure taxonomy (sandbox_error,
	// runtime_error, tool_error, timeout, cancelled, output_truncated).
	Execute(ctx context.Context, req Request) (*Result, error)

	// Kind identifies which manifest.RuntimeKind this adapter serves.
	Kind() manifest.RuntimeKind
}

// Registry selects the Adapter for a manifest.RuntimeKind.
type Registry struct {
	adapters map[manifest.RuntimeKind]Adapter
}

// NewRegistry builds a Registry from a set of adapters, keyed by their
// own Kind().
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[manifest.RuntimeKind]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Kind()] = a
	}
	return r
}

// For returns the Adapter registered for kind, or (nil, false).
func (r *Registry) For(kind manifest.RuntimeKind) (Adapter, bool) {
	a, ok := r.adapters[kind]
	return a, ok
}
