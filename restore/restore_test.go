package restore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmp/but/backup"
	"github.com/mmp/but/blobstore"
	"github.com/mmp/but/codec"
	"github.com/mmp/but/errs"
	"github.com/mmp/but/hash"
	"github.com/mmp/but/manifest"
	"github.com/mmp/but/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backupTree(t *testing.T, files map[string]string, opts backup.Options) (*backup.Report, blobstore.Store) {
	store := blobstore.NewMemory()
	r, err := repo.Open(t.TempDir())
	require.NoError(t, err)
	src := t.TempDir()
	for name, contents := range files {
		full := filepath.Join(src, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(contents), 0o644))
	}
	opts.SourceRoot = src
	if opts.Target == "" {
		opts.Target = "t"
	}
	report, err := backup.New(r, store).Run(opts)
	require.NoError(t, err)
	return report, store
}

func TestRoundTripByteIdentical(t *testing.T) {
	files := map[string]string{
		"a.txt":        "hello world",
		"sub/b.txt":    "nested content",
		"sub/c/d.txt":  "deeper content",
	}
	report, store := backupTree(t, files, backup.Options{Codec: codec.General})

	out := t.TempDir()
	rep, err := New(store).Run(report.Snapshot, Options{OutputRoot: out})
	require.NoError(t, err)
	assert.Equal(t, len(files), rep.FilesRestored)

	for name, contents := range files {
		got, err := os.ReadFile(filepath.Join(out, name))
		require.NoError(t, err)
		assert.Equal(t, contents, string(got))
	}
}

func TestRoundTripEncrypted(t *testing.T) {
	files := map[string]string{"secret.txt": "top secret payload"}
	report, store := backupTree(t, files, backup.Options{
		Codec: codec.HighRatio, Encrypt: true, Passphrase: "hunter2",
	})

	out := t.TempDir()
	_, err := New(store).Run(report.Snapshot, Options{OutputRoot: out, Passphrase: "hunter2"})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(out, "secret.txt"))
	require.NoError(t, err)
	assert.Equal(t, "top secret payload", string(got))
}

func TestRestoreWithoutPassphraseFailsForEncryptedSnapshot(t *testing.T) {
	report, store := backupTree(t, map[string]string{"a.txt": "x"}, backup.Options{
		Codec: codec.None, Encrypt: true, Passphrase: "hunter2",
	})

	out := t.TempDir()
	_, err := New(store).Run(report.Snapshot, Options{OutputRoot: out})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindConfig))
}

func TestRestoreSelectorFiltersToPrefix(t *testing.T) {
	report, store := backupTree(t, map[string]string{
		"keep/a.txt": "a",
		"skip/b.txt": "b",
	}, backup.Options{Codec: codec.None})

	out := t.TempDir()
	rep, err := New(store).Run(report.Snapshot, Options{OutputRoot: out, Selector: []string{"keep"}})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.FilesRestored)
	_, err = os.Stat(filepath.Join(out, "keep", "a.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(out, "skip", "b.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestCorruptBlobFailsIntegrityCheck(t *testing.T) {
	report, store := backupTree(t, map[string]string{"a.txt": "hello"}, backup.Options{Codec: codec.None})

	mem := store.(*blobstore.Memory)
	digests, err := mem.Iter()
	require.NoError(t, err)
	require.Len(t, digests, 1)

	data, err := mem.Get(digests[0])
	require.NoError(t, err)
	data[0] ^= 0xFF
	require.NoError(t, mem.Delete(digests[0]))
	require.NoError(t, mem.Put(digests[0], data))

	out := t.TempDir()
	_, err = New(store).Run(report.Snapshot, Options{OutputRoot: out})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindIntegrityFailure))
}

func newEmptySnapshot() *manifest.Snapshot {
	return &manifest.Snapshot{
		SchemaVersion: manifest.SchemaVersion,
		ID:            "20260101-000000-empty",
		Target:        "empty",
		SourceRoot:    "/src",
		CreatedAt:     time.Now().UTC(),
		Compression:   codec.None,
	}
}

func TestRestoreEmptySnapshotCreatesEmptyOutputRoot(t *testing.T) {
	store := blobstore.NewMemory()
	out := t.TempDir()
	_, err := New(store).Run(newEmptySnapshot(), Options{OutputRoot: out})
	require.NoError(t, err)
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMissingBlobFails(t *testing.T) {
	store := blobstore.NewMemory()
	snap := newEmptySnapshot()
	snap.Files = append(snap.Files, manifest.FileEntry{
		Path:   "missing.txt",
		Digest: hash.HashBytes([]byte("nope")).String(),
		Size:   4,
	})

	out := t.TempDir()
	_, err := New(store).Run(snap, Options{OutputRoot: out})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindMissingBlob))
}
