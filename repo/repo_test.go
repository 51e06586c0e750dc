package repo

import (
	"testing"
	"time"

	"github.com/mmp/but/codec"
	"github.com/mmp/but/errs"
	"github.com/mmp/but/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repository {
	r, err := Open(t.TempDir())
	require.NoError(t, err)
	return r
}

func testSnapshot(id, target string) *manifest.Snapshot {
	return &manifest.Snapshot{
		SchemaVersion: manifest.SchemaVersion,
		ID:            id,
		Target:        target,
		SourceRoot:    "/src",
		CreatedAt:     time.Now().UTC(),
		Compression:   codec.None,
		Files:         nil,
	}
}

func TestOpenCreatesLayout(t *testing.T) {
	r := newTestRepo(t)
	assert.DirExists(t, r.BlobsDir())
	assert.DirExists(t, r.SnapshotsDir())
}

func TestCommitAndLoadRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	s := testSnapshot("20260101-000000-home", "home")
	require.NoError(t, r.Commit(s))

	got, err := r.Load(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
}

func TestListSortsLexicographically(t *testing.T) {
	r := newTestRepo(t)
	require.NoError(t, r.Commit(testSnapshot("20260101-000002-home", "home")))
	require.NoError(t, r.Commit(testSnapshot("20260101-000001-home", "home")))

	ids, err := r.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"20260101-000001-home", "20260101-000002-home"}, ids)
}

func TestListTargetIsNewestFirst(t *testing.T) {
	r := newTestRepo(t)
	require.NoError(t, r.Commit(testSnapshot("20260101-000001-home", "home")))
	require.NoError(t, r.Commit(testSnapshot("20260101-000002-home", "home")))
	require.NoError(t, r.Commit(testSnapshot("20260101-000003-other", "other")))

	ids, err := r.ListTarget("home")
	require.NoError(t, err)
	assert.Equal(t, []string{"20260101-000002-home", "20260101-000001-home"}, ids)
}

func TestDeleteRemovesManifest(t *testing.T) {
	r := newTestRepo(t)
	s := testSnapshot("20260101-000000-home", "home")
	require.NoError(t, r.Commit(s))
	require.NoError(t, r.Delete(s.ID))

	_, err := r.Load(s.ID)
	assert.Error(t, err)
}

func TestExclusiveLockBlocksSecondWriter(t *testing.T) {
	dir := t.TempDir()
	r1, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, r1.Lock())
	defer r1.Unlock()

	r2, err := Open(dir)
	require.NoError(t, err)
	r2.SetLockRetryBudget(time.Millisecond, 3)

	err = r2.Lock()
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindRepositoryBusy))
}

func TestExclusiveLockBlocksSecondReader(t *testing.T) {
	dir := t.TempDir()
	r1, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, r1.Lock())
	defer r1.Unlock()

	r2, err := Open(dir)
	require.NoError(t, err)
	r2.SetLockRetryBudget(time.Millisecond, 3)

	err = r2.RLock()
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindRepositoryBusy))
}

func TestSharedLocksDoNotBlockEachOther(t *testing.T) {
	dir := t.TempDir()
	r1, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, r1.RLock())
	defer r1.Unlock()

	r2, err := Open(dir)
	require.NoError(t, err)
	r2.SetLockRetryBudget(time.Millisecond, 3)

	require.NoError(t, r2.RLock())
	defer r2.Unlock()
}

func TestNextIDFormatsTimestampAndTarget(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	id := NextID("home", now, nil)
	assert.Equal(t, "20260304-050607-home", id)
}

func TestNextIDBreaksCollisionWithSuffix(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	existing := map[string]struct{}{"20260304-050607-home": {}}
	id := NextID("home", now, existing)
	assert.Equal(t, "20260304-050607-home-2", id)
}
