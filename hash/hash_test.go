package hash

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashBytesDeterministic(t *testing.T) {
	a := HashBytes([]byte("hello"))
	b := HashBytes([]byte("hello"))
	assert.Equal(t, a, b)
}

func TestHashBytesDifferentInputs(t *testing.T) {
	a := HashBytes([]byte("hello"))
	b := HashBytes([]byte("hello!"))
	assert.NotEqual(t, a, b)
}

func TestHashFileMatchesHashBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	fromFile, err := HashFile(path)
	require.NoError(t, err)
	fromBytes := HashBytes([]byte("hello"))
	assert.Equal(t, fromBytes, fromFile)
}

func TestHashFileLargeStreams(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.bin")
	data := make([]byte, 5*chunkSize+17)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, HashBytes(data), got)
}

func TestShardPathSplit(t *testing.T) {
	d := HashBytes([]byte("x"))
	shard, rest := d.ShardPath()
	assert.Len(t, shard, 2)
	assert.Len(t, rest, 62)
	assert.Equal(t, d.String(), shard+rest)
}

func TestParseDigestRoundTrip(t *testing.T) {
	d := HashBytes([]byte("roundtrip"))
	parsed, err := ParseDigest(d.String())
	require.NoError(t, err)
	assert.Equal(t, d, parsed)
}

func TestParseDigestRejectsGarbage(t *testing.T) {
	_, err := ParseDigest("not-a-digest")
	assert.Error(t, err)
}

func TestDeriveKeyDomainSeparation(t *testing.T) {
	k1 := DeriveKey("but-next-key-v1", "hunter2")
	k2 := DeriveKey("some-other-domain", "hunter2")
	assert.NotEqual(t, k1, k2)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	k1 := DeriveKey("but-next-key-v1", "hunter2")
	k2 := DeriveKey("but-next-key-v1", "hunter2")
	assert.Equal(t, k1, k2)
}
