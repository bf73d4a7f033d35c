package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/skillrunner/skillrunner/internal/gitignore"
)

// Scan walks root and returns its artifact list and aggregate content
// hash. Symlinks are not followed; ignore files inside the tree apply to
// everything beneath them.
func Scan(ctx context.Context, root string, opts Options) (*SourceInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to access source root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root is not a directory: %s", absRoot)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	matcher := gitignore.New()
	for _, pattern := range opts.ExcludePatterns {
		matcher.AddPattern(pattern)
	}
	for _, name := range ignoreFileNames {
		ignorePath := filepath.Join(absRoot, name)
		if _, err := os.Stat(ignorePath); err == nil {
			if err := matcher.AddFromFile(ignorePath, ""); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", name, err)
			}
		}
	}

	result := &SourceInfo{Root: absRoot}

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if alwaysExcludedDirs[d.Name()] || matcher.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}

		// Skip symlinks and anything that is not a regular file.
		if !d.Type().IsRegular() {
			result.Skipped++
			return nil
		}
		if matcher.Match(rel, false) {
			result.Skipped++
			return nil
		}

		fi, statErr := d.Info()
		if statErr != nil {
			return statErr
		}
		if fi.Size() > maxSize {
			result.Skipped++
			return nil
		}

		digest, hashErr := hashFile(path)
		if hashErr != nil {
			return hashErr
		}

		result.Artifacts = append(result.Artifacts, Artifact{
			Path:   rel,
			Size:   fi.Size(),
			SHA256: digest,
		})
		result.TotalSize += fi.Size()
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result.Artifacts, func(i, j int) bool {
		return result.Artifacts[i].Path < result.Artifacts[j].Path
	})
	result.ContentHash = aggregateHash(result.Artifacts)

	return result, nil
}

// ContentHash is the convenience form of Scan for callers that only need
// the aggregate digest.
func ContentHash(ctx context.Context, root string) (string, error) {
	info, err := Scan(ctx, root, Options{})
	if err != nil {
		return "", err
	}
	return info.ContentHash, nil
}

// hashFile digests one artifact's content.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash artifact: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// aggregateHash folds the sorted artifact list into one digest. Paths are
// separated from digests by NUL so no crafted file name can collide with
// another tree's encoding.
func aggregateHash(artifacts []Artifact) string {
	h := sha256.New()
	for _, a := range artifacts {
		h.Write([]byte(a.Path))
		h.Write([]byte{0})
		h.Write([]byte(a.SHA256))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IsLocalSource reports whether a manifest source reference names a local
// directory (as opposed to a repository URL or container image).
func IsLocalSource(source string) bool {
	return strings.HasPrefix(source, "./") ||
		strings.HasPrefix(source, "../") ||
		strings.HasPrefix(source, "/")
}
