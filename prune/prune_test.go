package prune

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mmp/but/backup"
	"github.com/mmp/but/blobstore"
	"github.com/mmp/but/codec"
	"github.com/mmp/but/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSixBackups(t *testing.T) (*repo.Repository, blobstore.Store) {
	r, err := repo.Open(t.TempDir())
	require.NoError(t, err)
	store := blobstore.NewMemory()
	eng := backup.New(r, store)

	src := t.TempDir()
	for i := 0; i < 6; i++ {
		name := filepath.Join(src, "f.txt")
		require.NoError(t, os.WriteFile(name, []byte{byte(i)}, 0o644))
		_, err := eng.Run(backup.Options{Target: "home", SourceRoot: src, Codec: codec.None})
		require.NoError(t, err)
	}
	return r, store
}

func TestPruneKeepsMostRecentK(t *testing.T) {
	r, store := setupSixBackups(t)

	report, err := New(r, store).Run(Options{Target: "home", KeepLastK: 2})
	require.NoError(t, err)
	assert.Len(t, report.DeletedSnapshots, 4)

	remaining, err := r.ListTarget("home")
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestPruneNeverDeletesReferencedBlobs(t *testing.T) {
	r, store := setupSixBackups(t)

	_, err := New(r, store).Run(Options{Target: "home", KeepLastK: 2})
	require.NoError(t, err)

	remaining, err := r.ListTarget("home")
	require.NoError(t, err)
	for _, id := range remaining {
		snap, err := r.Load(id)
		require.NoError(t, err)
		for d := range snap.Digests() {
			ok, err := store.Has(d)
			require.NoError(t, err)
			assert.True(t, ok)
		}
	}
}

func TestPruneNoOpWhenUnderKeepThreshold(t *testing.T) {
	r, store := setupSixBackups(t)

	report, err := New(r, store).Run(Options{Target: "home", KeepLastK: 100})
	require.NoError(t, err)
	assert.Empty(t, report.DeletedSnapshots)
}

func TestVerifyDetectsCorruption(t *testing.T) {
	r, store := setupSixBackups(t)
	mem := store.(*blobstore.Memory)

	digests, err := mem.Iter()
	require.NoError(t, err)
	require.NotEmpty(t, digests)

	data, err := mem.Get(digests[0])
	require.NoError(t, err)
	data[0] ^= 0xFF
	require.NoError(t, mem.Delete(digests[0]))
	require.NoError(t, mem.Put(digests[0], data))

	report, err := New(r, store).Verify("")
	require.NoError(t, err)
	assert.NotEmpty(t, report.Mismatches)
}

func TestVerifyCleanRepoReportsNoMismatches(t *testing.T) {
	r, store := setupSixBackups(t)
	report, err := New(r, store).Verify("")
	require.NoError(t, err)
	assert.Empty(t, report.Mismatches)
	assert.Empty(t, report.Unreachable)
}
