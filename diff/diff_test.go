package diff

import (
	"testing"
	"time"

	"github.com/mmp/but/codec"
	"github.com/mmp/but/manifest"
	"github.com/stretchr/testify/assert"
)

func snap(id string, files ...manifest.FileEntry) *manifest.Snapshot {
	return &manifest.Snapshot{
		SchemaVersion: manifest.SchemaVersion,
		ID:            id,
		Target:        "t",
		SourceRoot:    "/src",
		CreatedAt:     time.Now().UTC(),
		Compression:   codec.None,
		Files:         files,
	}
}

func TestCompareDetectsAddedRemovedModified(t *testing.T) {
	old := snap("old",
		manifest.FileEntry{Path: "a.txt", Digest: "d1", Size: 1},
		manifest.FileEntry{Path: "b.txt", Digest: "d2", Size: 2},
	)
	new_ := snap("new",
		manifest.FileEntry{Path: "a.txt", Digest: "d1changed", Size: 3},
		manifest.FileEntry{Path: "c.txt", Digest: "d3", Size: 4},
	)

	d := Compare(old, new_)
	assert.Equal(t, []string{"c.txt"}, d.Added)
	assert.Equal(t, []string{"b.txt"}, d.Removed)
	assert.Equal(t, []string{"a.txt"}, d.Modified)
	assert.Equal(t, 0, d.UnchangedCount)
}

func TestCompareSetsArePairwiseDisjointAndCover(t *testing.T) {
	old := snap("old",
		manifest.FileEntry{Path: "a.txt", Digest: "d1"},
		manifest.FileEntry{Path: "b.txt", Digest: "d2"},
	)
	new_ := snap("new",
		manifest.FileEntry{Path: "a.txt", Digest: "d1"},
		manifest.FileEntry{Path: "c.txt", Digest: "d3"},
	)

	d := Compare(old, new_)
	assert.Equal(t, 1, d.UnchangedCount)
	assert.Equal(t, []string{"c.txt"}, d.Added)
	assert.Equal(t, []string{"b.txt"}, d.Removed)
	assert.Empty(t, d.Modified)
}

func TestCompareNoChanges(t *testing.T) {
	files := []manifest.FileEntry{{Path: "a.txt", Digest: "d1"}}
	old := snap("old", files...)
	new_ := snap("new", files...)

	d := Compare(old, new_)
	assert.False(t, d.HasChanges())
	assert.Equal(t, 1, d.UnchangedCount)
}

func TestModifiedDetailCarriesSizeDelta(t *testing.T) {
	old := snap("old", manifest.FileEntry{Path: "a.txt", Digest: "d1", Size: 5})
	new_ := snap("new", manifest.FileEntry{Path: "a.txt", Digest: "d2", Size: 9})

	d := Compare(old, new_)
	require := assert.New(t)
	require.Len(d.ModifiedDetail, 1)
	require.Equal(int64(5), d.ModifiedDetail[0].OldSize)
	require.Equal(int64(9), d.ModifiedDetail[0].NewSize)
}
