// Package execute implements the Executor: the component that turns an
// agent's execute(skill, tool, instance, arguments) call into one sandboxed
// Runtime Adapter invocation. It resolves the skill/tool/instance from the
// loaded manifest, validates arguments, bounds per-instance concurrency,
// resolves secrets only at this point (never earlier), assembles a
// sandbox.Spec, and dispatches to the adapter registered for the skill's
// runtime kind.
package execute

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/skillrunner/skillrunner/internal/manifest"
	"github.com/skillrunner/skillrunner/internal/runtime"
	"github.com/skillrunner/skillrunner/internal/sandbox"
	"github.com/skillrunner/skillrunner/internal/secret"
	"github.com/skillrunner/skillrunner/internal/skillerr"
)

// Resolver looks up the skill/tool/instance a request names. Implemented by
// the manifest store; kept as an interface so Executor tests can fake it
// without a disk-backed manifest.
type Resolver interface {
	Skill(name string) (*manifest.Skill, bool)
}

// Result is what Execute returns to the caller: the tool's output plus
// bookkeeping. It never carries a secret value, even indirectly — secrets
// only ever reach the sandboxed process's environment, never this struct.
type Result struct {
	OutputJSON json.RawMessage `json:"output"`
	Truncated  bool            `json:"truncated"`
	DurationMS int64           `json:"duration_ms"`
}

// DefaultConcurrencyPerInstance bounds how many simultaneous executions one
// instance may have in flight when its ResourceLimits sets no explicit
// value.
const DefaultConcurrencyPerInstance = 4

// DefaultWallClockSec is the execution wall-clock budget when an instance
// declares no timeout. Permit acquisition and the run itself share it.
const DefaultWallClockSec = 30

// UsageRecorder is notified after every execution attempt, successful or
// not, so the catalog can keep its usage counters current. Implemented by
// the Tool Document store; nil is a valid no-op.
type UsageRecorder interface {
	RecordUsage(toolID string, succeeded bool, at time.Time)
}

// Executor runs one tool invocation end to end.
type Executor struct {
	resolver Resolver
	secrets  secret.Store
	registry *runtime.Registry
	usage    UsageRecorder
	log      *slog.Logger

	permitsMu sync.Mutex
	permits   map[string]*semaphore.Weighted

	// now is overridable in tests.
	now func() time.Time
}

// New builds an Executor. log may be nil, in which case slog.Default() is used.
func New(resolver Resolver, secrets secret.Store, registry *runtime.Registry, usage UsageRecorder, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		resolver: resolver,
		secrets:  secrets,
		registry: registry,
		usage:    usage,
		log:      log,
		permits:  make(map[string]*semaphore.Weighted),
		now:      time.Now,
	}
}

// Execute runs skillName/toolName under instanceName with the given already
// JSON-encoded arguments, following the resolve -> validate -> permit ->
// resolve-secrets -> assemble-sandbox -> dispatch protocol.
func (e *Executor) Execute(ctx context.Context, skillName, toolName, instanceName string, argumentsJSON []byte) (*Result, error) {
	skill, tool, inst, err := e.resolve(skillName, toolName, instanceName)
	if err != nil {
		return nil, err
	}

	normalizedArgs, err := validateArguments(tool, argumentsJSON)
	if err != nil {
		return nil, err
	}

	toolID := manifest.ToolID(skillName, instanceName, toolName)

	// The permit is shared by every tool of the instance, and acquisition
	// blocks at most the instance's wall-clock budget.
	budget := time.Duration(inst.ResourceLimits.TimeoutSecond) * time.Second
	if budget <= 0 {
		budget = DefaultWallClockSec * time.Second
	}

	permit := e.permitFor(skillName+"@"+instanceName, inst)
	acquireCtx, acquireCancel := context.WithTimeout(ctx, budget)
	acquireErr := permit.Acquire(acquireCtx, 1)
	acquireCancel()
	if acquireErr != nil {
		if ctx.Err() != nil {
			return nil, skillerr.Cancelled("execution cancelled while waiting for a concurrency permit")
		}
		return nil, skillerr.ResourceLimit(fmt.Sprintf(
			"instance %s@%s is at its max_concurrent limit", skillName, instanceName))
	}
	defer permit.Release(1)

	secretEnv, err := e.resolveSecrets(ctx, inst)
	if err != nil {
		e.record(toolID, false)
		return nil, err
	}

	spec, err := sandbox.Assemble(inst, secretEnv)
	if err != nil {
		e.record(toolID, false)
		return nil, err
	}

	adapter, ok := e.registry.For(skill.Runtime)
	if !ok {
		e.record(toolID, false)
		return nil, skillerr.RuntimeError(fmt.Sprintf("no runtime adapter registered for %q", skill.Runtime), nil)
	}

	runTimeout := time.Duration(spec.TimeoutSec) * time.Second
	if runTimeout <= 0 {
		runTimeout = budget
	}
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	req := runtime.Request{
		Skill:         skill,
		Tool:          tool,
		Instance:      inst,
		Sandbox:       spec,
		ArgumentsJSON: normalizedArgs,
	}

	out, err := adapter.Execute(runCtx, req)
	succeeded := err == nil
	e.record(toolID, succeeded)
	if err != nil {
		return nil, err
	}

	return &Result{
		OutputJSON: json.RawMessage(out.OutputJSON),
		Truncated:  out.Truncated,
		DurationMS: out.DurationMS,
	}, nil
}

func (e *Executor) resolve(skillName, toolName, instanceName string) (*manifest.Skill, *manifest.Tool, *manifest.Instance, error) {
	skill, ok := e.resolver.Skill(skillName)
	if !ok {
		err := skillerr.NotFound("skill not found: "+skillName, nil)
		if s, hasSkills := e.resolver.(SkillLister); hasSkills {
			if near := nearestNames(skillName, s.SkillNames()); len(near) > 0 {
				err = err.WithSuggestion("did you mean: " + strings.Join(near, ", ") + "?")
			}
		}
		return nil, nil, nil, err
	}

	var tool *manifest.Tool
	toolNames := make([]string, 0, len(skill.Tools))
	for _, t := range skill.Tools {
		toolNames = append(toolNames, t.Name)
		if t.Name == toolName {
			tool = t
		}
	}
	if tool == nil {
		err := skillerr.NotFound("tool not found: "+skillName+"/"+toolName, nil)
		if near := nearestNames(toolName, toolNames); len(near) > 0 {
			err = err.WithSuggestion("did you mean: " + strings.Join(near, ", ") + "?")
		}
		return nil, nil, nil, err
	}

	inst, ok := skill.Instances[instanceName]
	if !ok {
		return nil, nil, nil, skillerr.NotFound("instance not found: "+skillName+"@"+instanceName, nil)
	}

	return skill, tool, inst, nil
}

// SkillLister is optionally implemented by resolvers that can enumerate
// skill names, enabling "did you mean" suggestions on not_found.
type SkillLister interface {
	SkillNames() []string
}

// nearestNames returns up to three candidates ranked by edit distance to
// target, dropping anything more than half the target's length plus one away.
func nearestNames(target string, candidates []string) []string {
	type scored struct {
		name string
		dist int
	}
	maxDist := len(target)/2 + 1
	var ranked []scored
	for _, c := range candidates {
		if d := editDistance(target, c); d <= maxDist {
			ranked = append(ranked, scored{c, d})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].dist != ranked[j].dist {
			return ranked[i].dist < ranked[j].dist
		}
		return ranked[i].name < ranked[j].name
	})
	out := make([]string, 0, 3)
	for _, r := range ranked {
		if len(out) == 3 {
			break
		}
		out = append(out, r.name)
	}
	return out
}

// editDistance is plain Levenshtein over bytes; names are short ASCII
// identifiers, so no unicode handling is needed.
func editDistance(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// resolveSecrets resolves every SecretRef an instance declares into a
// plain environment-variable map. This is the only place in the runtime
// that ever calls secret.Store.Get — manifest loading and validation never
// touch the store.
func (e *Executor) resolveSecrets(ctx context.Context, inst *manifest.Instance) (map[string]string, error) {
	if len(inst.Secrets) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(inst.Secrets))
	for envName, ref := range inst.Secrets {
		value, err := e.secrets.Get(ctx, ref.Namespace, ref.Key)
		if err != nil {
			return nil, skillerr.SecretUnavailable(
				fmt.Sprintf("secret %s/%s unavailable for env var %s", ref.Namespace, ref.Key, envName), err,
			)
		}
		out[envName] = string(value)
	}
	return out, nil
}

// permitFor returns the instance's shared permit set, keyed by
// "skill@instance" so every tool of the instance draws from the same
// max_concurrent budget.
func (e *Executor) permitFor(instanceID string, inst *manifest.Instance) *semaphore.Weighted {
	e.permitsMu.Lock()
	defer e.permitsMu.Unlock()
	if p, ok := e.permits[instanceID]; ok {
		return p
	}
	limit := int64(DefaultConcurrencyPerInstance)
	if inst.ResourceLimits.MaxConcurrent > 0 {
		limit = int64(inst.ResourceLimits.MaxConcurrent)
	}
	p := semaphore.NewWeighted(limit)
	e.permits[instanceID] = p
	return p
}

func (e *Executor) record(toolID string, succeeded bool) {
	if e.usage == nil {
		return
	}
	e.usage.RecordUsage(toolID, succeeded, e.now())
}
