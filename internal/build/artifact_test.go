package build

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanArtifacts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Todo.js"), []byte("js"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "style.css"), []byte("body{}"), 0o644))

	artifacts, err := ScanArtifacts(dir)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)

	assert.Equal(t, "Todo.js", artifacts[0].Path)
	assert.Equal(t, int64(2), artifacts[0].Size)
	assert.Len(t, artifacts[0].SHA256, 64)
	assert.Equal(t, "assets/style.css", artifacts[1].Path)
}

func TestScanArtifacts_MissingDir(t *testing.T) {
	artifacts, err := ScanArtifacts(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}

func TestDiffArtifacts(t *testing.T) {
	prev := []Artifact{
		{Path: "Todo.js", Size: 10, SHA256: "aaa"},
		{Path: "old.js", Size: 5, SHA256: "bbb"},
		{Path: "same.css", Size: 3, SHA256: "ccc"},
	}
	curr := []Artifact{
		{Path: "Todo.js", Size: 2048, SHA256: "ddd"},
		{Path: "new.js", Size: 7, SHA256: "eee"},
		{Path: "same.css", Size: 3, SHA256: "ccc"},
	}

	changes := DiffArtifacts(prev, curr)
	require.Len(t, changes, 3)

	assert.Equal(t, ArtifactChange{Kind: ChangeModified, Path: "Todo.js", Detail: "10 B -> 2.0 KiB"}, changes[0])
	assert.Equal(t, ChangeAdded, changes[1].Kind)
	assert.Equal(t, "new.js", changes[1].Path)
	assert.Equal(t, ChangeRemoved, changes[2].Kind)
	assert.Equal(t, "old.js", changes[2].Path)
}

func TestDiffArtifacts_NoChanges(t *testing.T) {
	list := []Artifact{{Path: "Todo.js", Size: 1, SHA256: "x"}}
	assert.Empty(t, DiffArtifacts(list, list))
}

func TestDiffSummary(t *testing.T) {
	tests := []struct {
		name    string
		changes []ArtifactChange
		want    string
	}{
		{
			name:    "no changes",
			changes: nil,
			want:    "no artifact changes",
		},
		{
			name: "modified only",
			changes: []ArtifactChange{
				{Kind: ChangeModified, Path: "a"},
			},
			want: "~1 modified",
		},
		{
			name: "mixed",
			changes: []ArtifactChange{
				{Kind: ChangeAdded, Path: "a"},
				{Kind: ChangeAdded, Path: "b"},
				{Kind: ChangeRemoved, Path: "c"},
				{Kind: ChangeModified, Path: "d"},
			},
			want: "+2 added, -1 removed, ~1 modified",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DiffSummary(tt.changes))
		})
	}
}
