// Package sandbox assembles a concrete, adapter-agnostic Spec from a
// manifest Instance's declared capabilities and resource limits. Assembly
// is pure and idempotent: the same inputs always produce the same Spec,
// and a Runtime Adapter may only narrow what Assemble hands it, never
// broaden it.
//
// The path blocklist uses normalize-then-prefix-match over a fixed
// denylist: the filesystem root, /etc, container-runtime control
// sockets, and any ancestor of the process image are never mountable.
package sandbox

import (
	"path/filepath"
	"strings"

	"github.com/skillrunner/skillrunner/internal/manifest"
	"github.com/skillrunner/skillrunner/internal/skillerr"
)

// blockedPrefixes can never be granted to a sandbox, regardless of what an
// instance's capabilities declare. Checked with filepath.Clean + exact or
// path-prefix comparison so "/etc2" is not mistaken for a child of "/etc".
var blockedPrefixes = []string{
	"/",
	"/etc",
	"/proc",
	"/sys",
	"/var/run/docker.sock",
	"/run/containerd/containerd.sock",
}

// EnvVar is one environment variable projected into a sandbox.
type EnvVar struct {
	Name  string
	Value string
}

// Mount is one filesystem path projected into a sandbox, normalized and
// blocklist-checked.
type Mount struct {
	HostPath  string
	GuestPath string
	ReadOnly  bool
}

// Spec is the fully-resolved, adapter-agnostic sandbox description
// produced by Assemble. Every Runtime Adapter consumes exactly this type.
type Spec struct {
	AllowNetwork bool
	AllowedHosts []string
	Mounts       []Mount
	Env          []EnvVar
	MemoryMB     int
	CPUPercent   int
	TimeoutSec   int
	MaxOutputKB  int
}

// Assemble builds a Spec from inst's declared capabilities and resource
// limits, starting from a zero-capability baseline (no network, no
// mounts, empty environment) and only adding what inst explicitly grants.
// secrets is the set of already-resolved (namespace,key) -> value pairs to
// project as environment variables; Assemble never resolves secrets
// itself (that happens earlier, in the Executor).
func Assemble(inst *manifest.Instance, secretEnv map[string]string) (*Spec, error) {
	spec := &Spec{
		MemoryMB:    inst.ResourceLimits.MemoryMB,
		CPUPercent:  inst.ResourceLimits.CPUPercent,
		TimeoutSec:  inst.ResourceLimits.TimeoutSecond,
		MaxOutputKB: inst.ResourceLimits.MaxOutputKB,
	}

	if n := inst.Capabilities.Network; n != nil && len(n.Allow) > 0 {
		spec.AllowNetwork = true
		spec.AllowedHosts = append([]string(nil), n.Allow...)
	}

	for _, m := range inst.Capabilities.Filesystem {
		guest := m.GuestPath
		if guest == "" {
			guest = m.HostPath
		}
		clean := filepath.Clean(m.HostPath)
		if blocked, prefix := isBlocked(clean); blocked {
			return nil, skillerr.CapabilityDenied("filesystem capability denied: " + clean + " is within blocked path " + prefix)
		}
		spec.Mounts = append(spec.Mounts, Mount{HostPath: clean, GuestPath: guest, ReadOnly: m.ReadOnly})
	}

	for _, name := range inst.Capabilities.Environment {
		if v, ok := inst.Config[name]; ok {
			spec.Env = append(spec.Env, EnvVar{Name: name, Value: v})
		}
	}
	for name, value := range secretEnv {
		spec.Env = append(spec.Env, EnvVar{Name: name, Value: value})
	}

	return spec, nil
}

// AllowedHostsKey returns a stable string encoding of the network
// capability, suitable for use as part of a cache key.
func (s *Spec) AllowedHostsKey() string {
	if !s.AllowNetwork {
		return "network:none"
	}
	return "network:" + strings.Join(s.AllowedHosts, ",")
}

// isBlocked reports whether path is exactly one of blockedPrefixes or a
// descendant of one.
func isBlocked(path string) (bool, string) {
	for _, prefix := range blockedPrefixes {
		if path == prefix {
			return true, prefix
		}
		if prefix == "/" {
			continue // every absolute path is trivially "under /"; handled by more specific entries
		}
		if strings.HasPrefix(path, prefix+string(filepath.Separator)) {
			return true, prefix
		}
	}
	return false, ""
}
