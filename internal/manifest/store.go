package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/skillrunner/skillrunner/internal/skillerr"
)

// Store persists the last-loaded manifest's skill-name-to-content-hash
// map next to the rest of the persisted index state, so Diff has a
// baseline across process restarts.
type Store struct {
	path string
}

// NewStore returns a Store backed by manifest_baseline.json under dir.
func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, "manifest_baseline.json")}
}

// Baseline is the persisted snapshot read back by Load/Save.
type Baseline struct {
	SkillHashes map[string]string `json:"skill_hashes"`
}

// Load reads the last-saved baseline, or an empty one if none exists yet.
func (s *Store) Load() (*Baseline, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &Baseline{SkillHashes: map[string]string{}}, nil
	}
	if err != nil {
		return nil, skillerr.BackendUnavailable("manifest: reading baseline", err)
	}
	var b Baseline
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, skillerr.IndexCorrupt("manifest: baseline file is not valid json", err)
	}
	if b.SkillHashes == nil {
		b.SkillHashes = map[string]string{}
	}
	return &b, nil
}

// Save writes b atomically (temp file + rename), matching the vector
// store's save idiom so a crash mid-write never leaves a torn baseline.
func (s *Store) Save(b *Baseline) error {
	raw, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return skillerr.Internal("manifest: marshal baseline", err)
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return skillerr.BackendUnavailable("manifest: creating state dir", err)
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return skillerr.BackendUnavailable("manifest: writing baseline", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return skillerr.BackendUnavailable("manifest: renaming baseline", err)
	}
	return nil
}

// BaselineManifest reconstructs a minimal *Manifest (content hashes only)
// from a Baseline so it can be passed as the "old" side of Diff.
func BaselineManifest(b *Baseline) *Manifest {
	m := &Manifest{Skills: map[string]*Skill{}}
	for name, hash := range b.SkillHashes {
		m.Skills[name] = &Skill{Name: name, ContentHash: hash}
	}
	return m
}

// ToBaseline extracts the hash map to persist after a successful sync.
func ToBaseline(m *Manifest) *Baseline {
	b := &Baseline{SkillHashes: make(map[string]string, len(m.Skills))}
	for name, sk := range m.Skills {
		b.SkillHashes[name] = sk.ContentHash
	}
	return b
}
