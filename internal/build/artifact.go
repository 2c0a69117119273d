package build

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// Change kinds reported by DiffArtifacts.
const (
	ChangeAdded    = "added"
	ChangeRemoved  = "removed"
	ChangeModified = "modified"
)

// Artifact is a single file in the output directory.
type Artifact struct {
	// Path is relative to the output directory, slash separated.
	Path   string
	Size   int64
	SHA256 string
}

// ArtifactChange describes one difference between two consecutive
// compiles.
type ArtifactChange struct {
	// Kind is one of "added", "removed", or "modified".
	Kind string
	Path string
	// Detail carries the size transition for modified files.
	Detail string
}

// ScanArtifacts lists every regular file below dir, sorted by path.
// A missing dir yields an empty list.
func ScanArtifacts(dir string) ([]Artifact, error) {
	var artifacts []Artifact

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && os.IsNotExist(err) {
				return fs.SkipAll
			}

			return err
		}

		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		a, err := hashFile(path)
		if err != nil {
			return err
		}

		a.Path = filepath.ToSlash(rel)
		artifacts = append(artifacts, a)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning artifacts in %s: %w", dir, err)
	}

	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Path < artifacts[j].Path })

	return artifacts, nil
}

func hashFile(path string) (Artifact, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return Artifact{}, err
	}
	defer f.Close()

	h := sha256.New()

	n, err := io.Copy(h, f)
	if err != nil {
		return Artifact{}, err
	}

	return Artifact{Size: n, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}

// DiffArtifacts compares two artifact sets and returns the changes sorted
// by path.
func DiffArtifacts(prev, curr []Artifact) []ArtifactChange {
	prevMap := indexArtifacts(prev)
	currMap := indexArtifacts(curr)

	var changes []ArtifactChange

	for path, pa := range prevMap {
		if _, ok := currMap[path]; !ok {
			changes = append(changes, ArtifactChange{Kind: ChangeRemoved, Path: path, Detail: formatSize(pa.Size)})
		}
	}

	for path, ca := range currMap {
		pa, existed := prevMap[path]
		if !existed {
			changes = append(changes, ArtifactChange{Kind: ChangeAdded, Path: path, Detail: formatSize(ca.Size)})
			continue
		}

		if pa.SHA256 != ca.SHA256 {
			changes = append(changes, ArtifactChange{
				Kind:   ChangeModified,
				Path:   path,
				Detail: fmt.Sprintf("%s -> %s", formatSize(pa.Size), formatSize(ca.Size)),
			})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })

	return changes
}

// DiffSummary returns a human-readable one-line summary.
func DiffSummary(changes []ArtifactChange) string {
	var added, removed, modified int

	for _, c := range changes {
		switch c.Kind {
		case ChangeAdded:
			added++
		case ChangeRemoved:
			removed++
		case ChangeModified:
			modified++
		}
	}

	if added == 0 && removed == 0 && modified == 0 {
		return "no artifact changes"
	}

	parts := make([]string, 0, 3)

	if added > 0 {
		parts = append(parts, fmt.Sprintf("+%d added", added))
	}

	if removed > 0 {
		parts = append(parts, fmt.Sprintf("-%d removed", removed))
	}

	if modified > 0 {
		parts = append(parts, fmt.Sprintf("~%d modified", modified))
	}

	return strings.Join(parts, ", ")
}

func indexArtifacts(list []Artifact) map[string]Artifact {
	m := make(map[string]Artifact, len(list))
	for _, a := range list {
		m[a.Path] = a
	}

	return m
}

func formatSize(n int64) string {
	if n < 0 {
		n = 0
	}

	return humanize.IBytes(uint64(n))
}
