package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/skillrunner/skillrunner/internal/catalog"
	"github.com/skillrunner/skillrunner/internal/manifest"
	"github.com/skillrunner/skillrunner/internal/search"
	"github.com/skillrunner/skillrunner/internal/watcher"
)

// unboundInstance is the synthetic instance name used for Tool Documents
// built from a skill that declares no instances. Such a skill is not
// executable yet, but it must still be discoverable.
const unboundInstance = "unbound"

// CoordinatorConfig contains configuration for the Coordinator.
type CoordinatorConfig struct {
	// ManifestPath is the absolute path to the manifest file.
	ManifestPath string

	// Engine is the search engine for indexing and deletion.
	Engine *search.Engine

	// Metadata is the metadata store backing the Tool Document catalog.
	Metadata catalog.MetadataStore

	// Baseline persists the last-indexed manifest so Diff can compute
	// added/changed/removed skills across restarts.
	Baseline *manifest.Store
}

// Coordinator applies manifest changes to the Tool Document index: it
// diffs a newly loaded manifest against the last-indexed baseline and
// reindexes only what changed.
type Coordinator struct {
	config CoordinatorConfig
	mu     sync.Mutex
}

// NewCoordinator creates a new index coordinator.
func NewCoordinator(config CoordinatorConfig) *Coordinator {
	return &Coordinator{config: config}
}

// HandleManifestChange reconciles the index against a freshly loaded
// manifest, using the persisted baseline to compute what changed. If the
// embedding model identity or dimension recorded at index time differs
// from the active embedder's, every persisted vector is unreadable by the
// new model and the whole catalog is rebuilt instead.
func (c *Coordinator) HandleManifestChange(ctx context.Context, next *manifest.Manifest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rebuild, err := c.needsFullRebuild(ctx)
	if err != nil {
		return err
	}
	if rebuild {
		if err := c.fullRebuild(ctx, next); err != nil {
			return err
		}
	} else {
		baseline, err := c.config.Baseline.Load()
		if err != nil {
			return fmt.Errorf("load baseline: %w", err)
		}
		prev := manifest.BaselineManifest(baseline)

		diff := manifest.Diff(prev, next)
		if err := c.applyDiff(ctx, next, diff); err != nil {
			return err
		}
	}

	if err := c.config.Baseline.Save(manifest.ToBaseline(next)); err != nil {
		return fmt.Errorf("save baseline: %w", err)
	}

	return nil
}

// needsFullRebuild reports whether the persisted index was embedded by a
// different model (or at a different dimension) than the active embedder.
func (c *Coordinator) needsFullRebuild(ctx context.Context) (bool, error) {
	storedModel, err := c.config.Metadata.GetState(ctx, catalog.StateKeyIndexModel)
	if err != nil || storedModel == "" {
		return false, nil
	}
	storedDim, _ := c.config.Metadata.GetState(ctx, catalog.StateKeyIndexDimension)

	model, dims := c.config.Engine.EmbedderIdentity()
	if storedModel != model {
		slog.Warn("embedding model changed, rebuilding catalog",
			slog.String("indexed_with", storedModel),
			slog.String("active", model))
		return true, nil
	}
	if storedDim != "" && storedDim != fmt.Sprintf("%d", dims) {
		slog.Warn("embedding dimension changed, rebuilding catalog",
			slog.String("indexed_with", storedDim),
			slog.Int("active", dims))
		return true, nil
	}
	return false, nil
}

// fullRebuild deletes every indexed document and re-embeds the entire
// manifest from scratch.
func (c *Coordinator) fullRebuild(ctx context.Context, next *manifest.Manifest) error {
	existing, err := c.config.Metadata.AllDocumentIDs(ctx)
	if err != nil {
		return fmt.Errorf("list documents for rebuild: %w", err)
	}
	if len(existing) > 0 {
		if err := c.config.Engine.Delete(ctx, existing); err != nil {
			return fmt.Errorf("delete documents for rebuild: %w", err)
		}
	}

	var docs []*catalog.ToolDocument
	for _, sk := range next.Skills {
		docs = append(docs, buildToolDocuments(sk)...)
	}
	if len(docs) == 0 {
		return nil
	}
	if err := c.config.Engine.Index(ctx, docs); err != nil {
		return fmt.Errorf("reindex tool documents: %w", err)
	}

	slog.Info("full catalog rebuild complete",
		slog.Int("documents", len(docs)))
	return nil
}

// applyDiff indexes added/changed skills and deletes removed ones.
//
// The persisted baseline (manifest.Store) carries only skill-name-to-
// content-hash pairs, not full tool/instance bodies, so it cannot tell us
// which exact Tool Document IDs a removed or changed skill previously
// contributed. Instead we look up live document IDs by skill-name prefix
// in the metadata store itself before replacing them.
func (c *Coordinator) applyDiff(ctx context.Context, next *manifest.Manifest, diff manifest.ManifestDiff) error {
	var toIndex []*catalog.ToolDocument
	var toDelete []string

	for _, name := range diff.Removed() {
		ids, err := c.documentIDsForSkill(ctx, name)
		if err != nil {
			return fmt.Errorf("list documents for removed skill %q: %w", name, err)
		}
		toDelete = append(toDelete, ids...)
	}

	for _, name := range diff.Changed() {
		ids, err := c.documentIDsForSkill(ctx, name)
		if err != nil {
			return fmt.Errorf("list documents for changed skill %q: %w", name, err)
		}
		toDelete = append(toDelete, ids...)
		toIndex = append(toIndex, buildToolDocuments(next.Skills[name])...)
	}

	for _, name := range diff.Added() {
		toIndex = append(toIndex, buildToolDocuments(next.Skills[name])...)
	}

	if len(toDelete) > 0 {
		if err := c.config.Engine.Delete(ctx, toDelete); err != nil {
			return fmt.Errorf("delete stale tool documents: %w", err)
		}
	}

	if len(toIndex) > 0 {
		if err := c.config.Engine.Index(ctx, toIndex); err != nil {
			return fmt.Errorf("index tool documents: %w", err)
		}
	}

	slog.Info("manifest reconciliation complete",
		slog.Int("added", len(diff.Added())),
		slog.Int("changed", len(diff.Changed())),
		slog.Int("removed", len(diff.Removed())),
		slog.Int("documents_indexed", len(toIndex)),
		slog.Int("documents_deleted", len(toDelete)))

	return nil
}

// documentIDsForSkill returns every Tool Document ID currently in the
// metadata store belonging to the named skill, found by ID prefix
// ("{skill}@") rather than by reconstructing the skill's old shape.
func (c *Coordinator) documentIDsForSkill(ctx context.Context, skill string) ([]string, error) {
	all, err := c.config.Metadata.AllDocumentIDs(ctx)
	if err != nil {
		return nil, err
	}
	prefix := skill + "@"
	var matched []string
	for _, id := range all {
		if strings.HasPrefix(id, prefix) {
			matched = append(matched, id)
		}
	}
	return matched, nil
}

// instanceNames returns the sorted instance names declared on a skill,
// or a single synthetic entry if it declares none.
func instanceNames(sk *manifest.Skill) []string {
	if len(sk.Instances) == 0 {
		return []string{unboundInstance}
	}
	names := make([]string, 0, len(sk.Instances))
	for name := range sk.Instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buildToolDocuments produces one Tool Document per (instance, tool) pair
// a skill exposes.
func buildToolDocuments(sk *manifest.Skill) []*catalog.ToolDocument {
	if sk == nil {
		return nil
	}

	docs := make([]*catalog.ToolDocument, 0, len(sk.Tools)*len(sk.Instances))
	for _, inst := range instanceNames(sk) {
		for _, t := range sk.Tools {
			if t.Deprecated {
				continue
			}
			docs = append(docs, &catalog.ToolDocument{
				ID:            manifest.ToolID(sk.Name, inst, t.Name),
				Skill:         sk.Name,
				Instance:      inst,
				Tool:          t.Name,
				Description:   toolDescription(sk, t),
				ParameterText: flattenParameters(t.Parameters),
				Examples:      t.Examples,
				ActionVerbs:   leadVerbs(t.Description),
				ContentHash:   sk.ContentHash,
			})
		}
	}
	return docs
}

// toolDescription prefixes the tool's own description with its skill's,
// so a tool with a terse description still carries some retrievable
// context about what system it belongs to.
func toolDescription(sk *manifest.Skill, t *manifest.Tool) string {
	if sk.Description == "" {
		return t.Description
	}
	return sk.Description + ". " + t.Description
}

// flattenParameters renders parameters as "name: description" lines for
// lexical matching against queries that name an argument. Enum values are
// included so a query naming an accepted value ("deploy to staging")
// still matches the tool that takes it.
func flattenParameters(params []manifest.ToolParameter) string {
	var out string
	for i, p := range params {
		if i > 0 {
			out += "\n"
		}
		out += p.Name + ": " + p.Description
		if len(p.Enum) > 0 {
			out += " (" + strings.Join(p.Enum, ", ") + ")"
		}
	}
	return out
}

// leadVerbs extracts the first word of a description, taken as its lead
// verb ("fetch", "convert", "summarize"); no check is made that the word
// is a verb. Used to weight
// the classifier toward LEXICAL for short, verb-led queries.
func leadVerbs(description string) []string {
	var word string
	for _, r := range description {
		if r == ' ' || r == '\t' {
			break
		}
		word += string(r)
	}
	if word == "" {
		return nil
	}
	return []string{word}
}

// ReconcileOnStartup loads the manifest from disk and reconciles the
// index against the persisted baseline. It handles changes made while
// the daemon was stopped.
func (c *Coordinator) ReconcileOnStartup(ctx context.Context) error {
	next, err := manifest.Load(c.config.ManifestPath)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	return c.HandleManifestChange(ctx, next)
}

// HandleManifestFileEvent reacts to a watcher.FileEvent on the manifest
// file by reloading and reconciling. Create/Modify trigger a reload;
// Delete logs a warning (the last-known index is left in place so
// running agents keep seeing the tools they already discovered).
func (c *Coordinator) HandleManifestFileEvent(ctx context.Context, event watcher.FileEvent) error {
	switch event.Operation {
	case watcher.OpCreate, watcher.OpModify:
		return c.ReconcileOnStartup(ctx)
	case watcher.OpDelete:
		slog.Warn("manifest file removed, index left unchanged", slog.String("path", event.Path))
		return nil
	default:
		return nil
	}
}
