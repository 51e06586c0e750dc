package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mmp/but/blobstore"
	"github.com/mmp/but/codec"
	"github.com/mmp/but/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) (*Engine, *repo.Repository, blobstore.Store) {
	r, err := repo.Open(t.TempDir())
	require.NoError(t, err)
	store := blobstore.NewMemory()
	return New(r, store), r, store
}

func TestBackupEmptyTree(t *testing.T) {
	eng, _, store := newEngine(t)
	src := t.TempDir()

	report, err := eng.Run(Options{Target: "t", SourceRoot: src, Codec: codec.None})
	require.NoError(t, err)
	assert.Empty(t, report.Snapshot.Files)
	assert.NotEmpty(t, report.RunID)

	digests, err := store.Iter()
	require.NoError(t, err)
	assert.Empty(t, digests)
}

func TestBackupSingleFile(t *testing.T) {
	eng, _, store := newEngine(t)
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello"), 0o644))

	report, err := eng.Run(Options{Target: "t", SourceRoot: src, Codec: codec.None})
	require.NoError(t, err)
	require.Len(t, report.Snapshot.Files, 1)
	assert.Equal(t, "a.txt", report.Snapshot.Files[0].Path)

	digests, err := store.Iter()
	require.NoError(t, err)
	assert.Len(t, digests, 1)
}

func TestBackupSecondRunAddsNoBlobs(t *testing.T) {
	eng, _, store := newEngine(t)
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello"), 0o644))

	_, err := eng.Run(Options{Target: "t", SourceRoot: src, Codec: codec.None})
	require.NoError(t, err)
	before, _ := store.Iter()

	report2, err := eng.Run(Options{Target: "t", SourceRoot: src, Codec: codec.None})
	require.NoError(t, err)
	assert.True(t, report2.Snapshot.Files[0].Deduped)

	after, _ := store.Iter()
	assert.Len(t, after, len(before))
}

func TestBackupDuplicateFilesShareOneBlob(t *testing.T) {
	eng, _, store := newEngine(t)
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "b.txt"), []byte("x"), 0o644))

	report, err := eng.Run(Options{Target: "t", SourceRoot: src, Codec: codec.None})
	require.NoError(t, err)
	require.Len(t, report.Snapshot.Files, 2)
	assert.Equal(t, report.Snapshot.Files[0].Digest, report.Snapshot.Files[1].Digest)

	digests, err := store.Iter()
	require.NoError(t, err)
	assert.Len(t, digests, 1)
}

func TestBackupModifiedFileAddsNewBlob(t *testing.T) {
	eng, _, store := newEngine(t)
	src := t.TempDir()
	path := filepath.Join(src, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	_, err := eng.Run(Options{Target: "t", SourceRoot: src, Codec: codec.None})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("hello!"), 0o644))
	_, err = eng.Run(Options{Target: "t2", SourceRoot: src, Codec: codec.None})
	require.NoError(t, err)

	digests, err := store.Iter()
	require.NoError(t, err)
	assert.Len(t, digests, 2)
}

func TestBackupExcludesGlobPattern(t *testing.T) {
	eng, _, _ := newEngine(t)
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "keep.txt"), []byte("k"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "skip.tmp"), []byte("s"), 0o644))

	report, err := eng.Run(Options{Target: "t", SourceRoot: src, Codec: codec.None, Exclude: []string{"*.tmp"}})
	require.NoError(t, err)
	require.Len(t, report.Snapshot.Files, 1)
	assert.Equal(t, "keep.txt", report.Snapshot.Files[0].Path)
}

func TestBackupExcludesDirectorySubtree(t *testing.T) {
	eng, _, _ := newEngine(t)
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "node_modules", "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "node_modules", "pkg", "f.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "keep.txt"), []byte("k"), 0o644))

	report, err := eng.Run(Options{Target: "t", SourceRoot: src, Codec: codec.None, Exclude: []string{"node_modules/"}})
	require.NoError(t, err)
	for _, fe := range report.Snapshot.Files {
		assert.NotContains(t, fe.Path, "node_modules")
	}
}

func TestBackupEncryptedBlobHidesPlaintext(t *testing.T) {
	eng, _, store := newEngine(t)
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("secret contents"), 0o644))

	report, err := eng.Run(Options{
		Target: "t", SourceRoot: src, Codec: codec.General,
		Encrypt: true, Passphrase: "hunter2",
	})
	require.NoError(t, err)
	assert.True(t, report.Snapshot.Encrypted)

	digests, err := store.Iter()
	require.NoError(t, err)
	require.Len(t, digests, 1)
	raw, err := store.Get(digests[0])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
}
