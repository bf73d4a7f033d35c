package manifest

// SkillChange classifies how one skill's manifest entry differs between
// two loads, keyed by content hash so a cosmetic reordering of the file
// does not count as a change.
type SkillChange struct {
	Name   string
	Status ChangeStatus
	// Old and New are nil when the corresponding side has no entry
	// (added/removed); both are set when Status == Changed or Unchanged.
	Old *Skill
	New *Skill
}

type ChangeStatus string

const (
	Added     ChangeStatus = "added"
	Removed   ChangeStatus = "removed"
	Changed   ChangeStatus = "changed"
	Unchanged ChangeStatus = "unchanged"
)

// ManifestDiff is the full set of skill-level changes between two loads.
type ManifestDiff struct {
	Changes []SkillChange
}

// Added returns the names of skills present only in the new manifest.
func (d ManifestDiff) Added() []string { return d.filter(Added) }

// Removed returns the names of skills present only in the old manifest.
func (d ManifestDiff) Removed() []string { return d.filter(Removed) }

// Changed returns the names of skills whose content hash differs.
func (d ManifestDiff) Changed() []string { return d.filter(Changed) }

func (d ManifestDiff) filter(status ChangeStatus) []string {
	var out []string
	for _, c := range d.Changes {
		if c.Status == status {
			out = append(out, c.Name)
		}
	}
	return out
}

// Diff compares prev against next (either may be nil, meaning "no
// manifest previously loaded") and classifies every skill name seen on
// either side.
func Diff(prev, next *Manifest) ManifestDiff {
	var oldSkills, newSkills map[string]*Skill
	if prev != nil {
		oldSkills = prev.Skills
	}
	if next != nil {
		newSkills = next.Skills
	}

	seen := make(map[string]bool, len(oldSkills)+len(newSkills))
	var diff ManifestDiff

	for name, os := range oldSkills {
		seen[name] = true
		ns, ok := newSkills[name]
		switch {
		case !ok:
			diff.Changes = append(diff.Changes, SkillChange{Name: name, Status: Removed, Old: os})
		case ns.ContentHash != os.ContentHash:
			diff.Changes = append(diff.Changes, SkillChange{Name: name, Status: Changed, Old: os, New: ns})
		default:
			diff.Changes = append(diff.Changes, SkillChange{Name: name, Status: Unchanged, Old: os, New: ns})
		}
	}

	for name, ns := range newSkills {
		if seen[name] {
			continue
		}
		diff.Changes = append(diff.Changes, SkillChange{Name: name, Status: Added, New: ns})
	}

	return diff
}
