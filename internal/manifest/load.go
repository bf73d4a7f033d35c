package manifest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/skillrunner/skillrunner/internal/scanner"
	"github.com/skillrunner/skillrunner/internal/skillerr"
)

// Load reads, expands, and merges-in-defaults for the manifest at path. It
// does not resolve secrets and does not validate; call Validate on the
// result. Skills whose source is a local directory get that directory's
// artifact digest folded into their content hash, so editing a skill's
// source retriggers reindexing even when the manifest entry is unchanged.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, skillerr.NotFound("manifest file not found: "+path, err)
	}
	m, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	hashLocalSources(m, filepath.Dir(path))
	return m, nil
}

// hashLocalSources mixes each local source directory's artifact digest
// into the owning skill's content hash. A source that cannot be scanned
// (not yet installed, permissions) keeps the manifest-only hash; Validate
// reports missing sources separately.
func hashLocalSources(m *Manifest, baseDir string) {
	for _, sk := range m.Skills {
		if !scanner.IsLocalSource(sk.Source) {
			continue
		}
		src := sk.Source
		if !filepath.IsAbs(src) {
			src = filepath.Join(baseDir, src)
		}
		digest, err := scanner.ContentHash(context.Background(), src)
		if err != nil {
			slog.Debug("skill source not scannable, using manifest-only hash",
				slog.String("skill", sk.Name),
				slog.String("source", sk.Source),
				slog.String("error", err.Error()))
			continue
		}
		sk.ContentHash = hashOf(struct {
			Manifest string
			Source   string
		}{Manifest: sk.ContentHash, Source: digest})
	}
}

// Parse is Load without the filesystem read, used by tests and by callers
// that already have the manifest bytes (e.g. fetched from a registry).
func Parse(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, skillerr.ParseError("manifest: invalid yaml", err)
	}
	if m.Skills == nil {
		m.Skills = map[string]*Skill{}
	}

	if err := expandAll(&m); err != nil {
		return nil, skillerr.ParseError(err.Error(), err)
	}

	applyDefaults(&m)
	computeHashes(&m)

	return &m, nil
}

// applyDefaults deep-merges m.Defaults into every instance that did not
// set the corresponding field. Hand-rolled: the merge is too small and
// too shaped to justify a dependency.
func applyDefaults(m *Manifest) {
	for _, sk := range m.Skills {
		for _, inst := range sk.Instances {
			if inst.Capabilities.Network == nil {
				inst.Capabilities.Network = m.Defaults.Capabilities.Network
			}
			if len(inst.Capabilities.Filesystem) == 0 {
				inst.Capabilities.Filesystem = m.Defaults.Capabilities.Filesystem
			}
			if len(inst.Capabilities.Environment) == 0 {
				inst.Capabilities.Environment = m.Defaults.Capabilities.Environment
			}
			if inst.ResourceLimits.MemoryMB == 0 {
				inst.ResourceLimits.MemoryMB = m.Defaults.ResourceLimits.MemoryMB
			}
			if inst.ResourceLimits.CPUPercent == 0 {
				inst.ResourceLimits.CPUPercent = m.Defaults.ResourceLimits.CPUPercent
			}
			if inst.ResourceLimits.TimeoutSecond == 0 {
				inst.ResourceLimits.TimeoutSecond = m.Defaults.ResourceLimits.TimeoutSecond
			}
			if inst.ResourceLimits.MaxOutputKB == 0 {
				inst.ResourceLimits.MaxOutputKB = m.Defaults.ResourceLimits.MaxOutputKB
			}
			if inst.ResourceLimits.MaxConcurrent == 0 {
				inst.ResourceLimits.MaxConcurrent = m.Defaults.ResourceLimits.MaxConcurrent
			}
		}
	}
}

// computeHashes fills Skill.ContentHash and Instance.ContentHash so Diff
// can detect "changed" without a deep structural comparison.
func computeHashes(m *Manifest) {
	for _, sk := range m.Skills {
		sk.ContentHash = hashOf(skillHashView{
			Source: sk.Source, Runtime: sk.Runtime, Container: sk.Container, Tools: sk.Tools,
		})
		for _, inst := range sk.Instances {
			inst.ContentHash = hashOf(instanceHashView{
				Config: inst.Config, Capabilities: inst.Capabilities,
				ResourceLimits: inst.ResourceLimits, Secrets: inst.Secrets,
			})
		}
	}
}

type skillHashView struct {
	Source    string
	Runtime   RuntimeKind
	Container *ContainerSpec
	Tools     []*Tool
}

type instanceHashView struct {
	Config         map[string]string
	Capabilities   Capabilities
	ResourceLimits ResourceLimits
	Secrets        map[string]SecretRef
}

func hashOf(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
