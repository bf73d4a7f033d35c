package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillrunner/skillrunner/internal/manifest"
)

func TestAssemble_ZeroCapabilityBaseline(t *testing.T) {
	inst := &manifest.Instance{}
	spec, err := Assemble(inst, nil)
	require.NoError(t, err)
	assert.False(t, spec.AllowNetwork)
	assert.Empty(t, spec.Mounts)
	assert.Empty(t, spec.Env)
}

func TestAssemble_GrantsOnlyWhatIsDeclared(t *testing.T) {
	inst := &manifest.Instance{
		Capabilities: manifest.Capabilities{
			Network:    &manifest.NetworkCapability{Allow: []string{"example.com"}},
			Filesystem: []manifest.FilesystemMount{{HostPath: "/home/user/data", ReadOnly: true}},
		},
		ResourceLimits: manifest.ResourceLimits{MemoryMB: 512, TimeoutSecond: 60},
	}
	spec, err := Assemble(inst, nil)
	require.NoError(t, err)
	assert.True(t, spec.AllowNetwork)
	assert.Equal(t, []string{"example.com"}, spec.AllowedHosts)
	require.Len(t, spec.Mounts, 1)
	assert.Equal(t, "/home/user/data", spec.Mounts[0].HostPath)
	assert.True(t, spec.Mounts[0].ReadOnly)
	assert.Equal(t, 512, spec.MemoryMB)
}

func TestAssemble_BlocksSensitivePaths(t *testing.T) {
	cases := []string{"/", "/etc", "/etc/passwd", "/proc/1", "/var/run/docker.sock"}
	for _, p := range cases {
		inst := &manifest.Instance{
			Capabilities: manifest.Capabilities{
				Filesystem: []manifest.FilesystemMount{{HostPath: p}},
			},
		}
		_, err := Assemble(inst, nil)
		require.Errorf(t, err, "expected %q to be blocked", p)
	}
}

func TestAssemble_AllowsOrdinaryAbsolutePath(t *testing.T) {
	inst := &manifest.Instance{
		Capabilities: manifest.Capabilities{
			Filesystem: []manifest.FilesystemMount{{HostPath: "/opt/app/data"}},
		},
	}
	_, err := Assemble(inst, nil)
	require.NoError(t, err)
}

func TestAssemble_ProjectsSecretsAsEnv(t *testing.T) {
	inst := &manifest.Instance{}
	spec, err := Assemble(inst, map[string]string{"API_TOKEN": "shh"})
	require.NoError(t, err)
	require.Len(t, spec.Env, 1)
	assert.Equal(t, "API_TOKEN", spec.Env[0].Name)
	assert.Equal(t, "shh", spec.Env[0].Value)
}

func TestAssemble_EnvironmentCapabilityProjectsConfigValue(t *testing.T) {
	inst := &manifest.Instance{
		Config: map[string]string{"CLUSTER": "prod-east"},
		Capabilities: manifest.Capabilities{
			Environment: []string{"CLUSTER"},
		},
	}
	spec, err := Assemble(inst, nil)
	require.NoError(t, err)
	require.Len(t, spec.Env, 1)
	assert.Equal(t, "CLUSTER", spec.Env[0].Name)
	assert.Equal(t, "prod-east", spec.Env[0].Value)
}
