package runtime

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/skillrunner/skillrunner/internal/manifest"
	"github.com/skillrunner/skillrunner/internal/sandbox"
	"github.com/skillrunner/skillrunner/internal/skillerr"
)

// DefaultMaxOutputKB bounds a native process's captured stdout when an
// instance sets no explicit limit.
const DefaultMaxOutputKB = 8 * 1024

// NativeAdapter runs a skill's tool as a direct subprocess: Skill.Source
// names the executable (an absolute path, or a name resolved against
// Allowlist), Tool.Name is passed as the subprocess's first argument, and
// the request's ArgumentsJSON is piped on stdin. Only commands named in
// Allowlist may run; every other Skill.Source is rejected before exec is
// ever called. The subprocess sees exactly the sandbox environment,
// nothing inherited from the host.
type NativeAdapter struct {
	Allowlist map[string]bool

	// execCommand is overridable for tests.
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewNativeAdapter returns a NativeAdapter that will only run commands
// named in allowlist.
func NewNativeAdapter(allowlist []string) *NativeAdapter {
	set := make(map[string]bool, len(allowlist))
	for _, c := range allowlist {
		set[c] = true
	}
	return &NativeAdapter{
		Allowlist:   set,
		execCommand: exec.CommandContext,
	}
}

func (a *NativeAdapter) Kind() manifest.RuntimeKind { return manifest.RuntimeNative }

func (a *NativeAdapter) Execute(ctx context.Context, req Request) (*Result, error) {
	name := filepath.Base(req.Skill.Source)
	if !a.Allowlist[name] && !a.Allowlist[req.Skill.Source] {
		return nil, skillerr.CapabilityDenied("command " + req.Skill.Source + " is not in the native runtime allowlist")
	}
	if strings.ContainsAny(req.Tool.Name, ";|&$`") {
		return nil, skillerr.InvalidArguments("tool name contains disallowed characters", nil)
	}

	start := time.Now()

	cmd := a.execCommand(ctx, req.Skill.Source, req.Tool.Name)
	cmd.Env = envStrings(req.Sandbox.Env)
	cmd.Stdin = bytes.NewReader(req.ArgumentsJSON)

	maxKB := req.Sandbox.MaxOutputKB
	if maxKB <= 0 {
		maxKB = DefaultMaxOutputKB
	}
	var stdout, stderr bytes.Buffer
	limited := &limitWriter{w: &stdout, limit: int64(maxKB) * 1024}
	cmd.Stdout = limited
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	duration := time.Since(start).Milliseconds()

	if ctx.Err() != nil {
		return nil, skillerr.Cancelled("native execution cancelled: " + ctx.Err().Error())
	}

	result := &Result{
		OutputJSON: stdout.Bytes(),
		DurationMS: duration,
		Truncated:  limited.truncated,
	}

	var exitErr *exec.ExitError
	if runErr != nil {
		if asExitError(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, skillerr.ToolError("tool exited with status "+exitErr.Error()+": "+stderr.String(), runErr)
		}
		return nil, skillerr.RuntimeError("failed to start native process", runErr)
	}

	return result, nil
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}

func envStrings(vars []sandbox.EnvVar) []string {
	out := make([]string, 0, len(vars))
	for _, v := range vars {
		out = append(out, v.Name+"="+v.Value)
	}
	return out
}

// limitWriter caps how many bytes are retained, matching io.LimitReader's
// truncate-don't-error behavior but on the write side.
type limitWriter struct {
	w         io.Writer
	limit     int64
	written   int64
	truncated bool
}

func (l *limitWriter) Write(p []byte) (int, error) {
	if l.written >= l.limit {
		l.truncated = true
		return len(p), nil
	}
	remaining := l.limit - l.written
	if int64(len(p)) > remaining {
		p = p[:remaining]
		l.truncated = true
	}
	n, err := l.w.Write(p)
	l.written += int64(n)
	return len(p), err
}
