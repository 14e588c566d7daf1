package vectorstore_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	idx, err := vectorstore.NewFlatIndex(3)
	require.NoError(t, err)
	require.NoError(t, idx.Add([][]float32{
		{1, 0, 0},
		{0, 1, 0},
	}, []string{"a", "b"}))
	require.NoError(t, idx.Save(dir))

	loaded, err := vectorstore.LoadFlatIndex(dir, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	assert.Equal(t, []string{"a", "b"}, loaded.IDs())

	hits, err := loaded.Search([]float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)
	assert.InDelta(t, 0.0, float64(hits[0].Distance), 1e-6)
}

func TestLoadMissingPairIsEmpty(t *testing.T) {
	loaded, err := vectorstore.LoadFlatIndex(t.TempDir(), 4)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
	assert.Equal(t, 4, loaded.Dimension())
}

func TestLoadHalfPairIsCorrupt(t *testing.T) {
	dir := t.TempDir()

	idx, err := vectorstore.NewFlatIndex(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add([][]float32{{1, 0}}, []string{"a"}))
	require.NoError(t, idx.Save(dir))

	require.NoError(t, os.Remove(filepath.Join(dir, "index_ids.json")))

	_, err = vectorstore.LoadFlatIndex(dir, 2)
	assert.ErrorIs(t, err, vectorstore.ErrIndexCorrupt)
}

func TestLoadTruncatedIndexIsCorrupt(t *testing.T) {
	dir := t.TempDir()

	idx, err := vectorstore.NewFlatIndex(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add([][]float32{{1, 0}, {0, 1}}, []string{"a", "b"}))
	require.NoError(t, idx.Save(dir))

	path := filepath.Join(dir, "index.bin")
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-4))

	_, err = vectorstore.LoadFlatIndex(dir, 2)
	assert.ErrorIs(t, err, vectorstore.ErrIndexCorrupt)
}

func TestLoadDimensionMismatchIsCorrupt(t *testing.T) {
	dir := t.TempDir()

	idx, err := vectorstore.NewFlatIndex(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add([][]float32{{1, 0}}, []string{"a"}))
	require.NoError(t, idx.Save(dir))

	_, err = vectorstore.LoadFlatIndex(dir, 3)
	assert.ErrorIs(t, err, vectorstore.ErrIndexCorrupt)
}

func TestLoadGarbageIDsIsCorrupt(t *testing.T) {
	dir := t.TempDir()

	idx, err := vectorstore.NewFlatIndex(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add([][]float32{{1, 0}}, []string{"a"}))
	require.NoError(t, idx.Save(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index_ids.json"), []byte("{not json"), 0o600))

	_, err = vectorstore.LoadFlatIndex(dir, 2)
	assert.ErrorIs(t, err, vectorstore.ErrIndexCorrupt)
}

func TestLoadHalfSwappedPairIsCorrupt(t *testing.T) {
	dir := t.TempDir()

	idx, err := vectorstore.NewFlatIndex(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add([][]float32{{1, 0}, {0, 1}}, []string{"a", "b"}))
	require.NoError(t, idx.Save(dir))

	indexPath := filepath.Join(dir, "index.bin")
	stale, err := os.ReadFile(indexPath)
	require.NoError(t, err)

	// Same ids and count, different vectors: only the generation stamp
	// can tell the next pair apart from this one.
	require.NoError(t, idx.Rebuild([][]float32{{0, 1}, {1, 0}}, []string{"a", "b"}))
	require.NoError(t, idx.Save(dir))

	// A crash between the two renames leaves the new ledger next to the
	// previous index.
	require.NoError(t, os.WriteFile(indexPath, stale, 0o644))

	_, err = vectorstore.LoadFlatIndex(dir, 2)
	assert.ErrorIs(t, err, vectorstore.ErrIndexCorrupt)
}

func TestLoadInflatedCountIsCorrupt(t *testing.T) {
	dir := t.TempDir()

	idx, err := vectorstore.NewFlatIndex(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add([][]float32{{1, 0}}, []string{"a"}))
	require.NoError(t, idx.Save(dir))

	// Blow the header's count field up to the uint32 maximum. The load
	// must reject the file on the count and length checks, never size an
	// allocation from the header value.
	path := filepath.Join(dir, "index.bin")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	countOffset := len("RCLD") + 2*4
	binary.LittleEndian.PutUint32(data[countOffset:], 0xFFFFFFFF)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = vectorstore.LoadFlatIndex(dir, 2)
	assert.ErrorIs(t, err, vectorstore.ErrIndexCorrupt)
}

func TestLoadOversizedIndexIsCorrupt(t *testing.T) {
	dir := t.TempDir()

	idx, err := vectorstore.NewFlatIndex(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add([][]float32{{1, 0}}, []string{"a"}))
	require.NoError(t, idx.Save(dir))

	path := filepath.Join(dir, "index.bin")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0, 0, 0, 0})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = vectorstore.LoadFlatIndex(dir, 2)
	assert.ErrorIs(t, err, vectorstore.ErrIndexCorrupt)
}

func TestSaveEmptyIndexRoundTrips(t *testing.T) {
	dir := t.TempDir()

	idx, err := vectorstore.NewFlatIndex(2)
	require.NoError(t, err)
	require.NoError(t, idx.Save(dir))

	loaded, err := vectorstore.LoadFlatIndex(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
}
