// Package scanner walks a skill's source directory and produces the
// deterministic content hash of its artifacts. The hash is the identity
// the Index Manager and the component cache key on: it changes iff any
// artifact's bytes or relative path change.
package scanner

// Artifact is one file of a skill source.
type Artifact struct {
	// Path is the forward-slash relative path from the source root.
	Path string

	// Size is the artifact size in bytes.
	Size int64

	// SHA256 is the lowercase hex digest of the artifact's content.
	SHA256 string
}

// SourceInfo is the result of scanning one skill source directory.
type SourceInfo struct {
	// Root is the absolute path that was scanned.
	Root string

	// Artifacts lists every included file, sorted by Path.
	Artifacts []Artifact

	// ContentHash is the aggregate digest over all artifacts' paths and
	// content hashes. Equal trees hash equal regardless of scan order,
	// file timestamps, or permissions.
	ContentHash string

	// TotalSize sums the artifact sizes.
	TotalSize int64

	// Skipped counts files excluded by ignore rules or the size cap.
	Skipped int
}

// Options configures a scan.
type Options struct {
	// MaxFileSize excludes files larger than this many bytes.
	// Zero selects DefaultMaxFileSize.
	MaxFileSize int64

	// ExcludePatterns are extra ignore patterns applied on top of the
	// source's own ignore files.
	ExcludePatterns []string
}

// DefaultMaxFileSize caps individual artifacts. Compiled components and
// container build contexts stay well under this; anything bigger is
// almost certainly not a skill artifact.
const DefaultMaxFileSize int64 = 256 * 1024 * 1024

// ignoreFileNames are the per-source ignore files honored during a scan,
// in precedence order.
var ignoreFileNames = []string{".skillignore", ".gitignore"}

// alwaysExcludedDirs are never scanned regardless of ignore rules.
var alwaysExcludedDirs = map[string]bool{
	".git": true,
	".hg":  true,
	".svn": true,
}
