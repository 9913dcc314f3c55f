package facestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEncoding(seed float32) []float32 {
	enc := make([]float32, EncodingDimensions)
	for i := range enc {
		enc[i] = seed
	}
	return enc
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.bin")
	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Count())
}

func TestAddPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.bin")
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.Add("Ada", "emp-1", testEncoding(0.1), "/snaps/ada.jpg"))
	require.NoError(t, s.Add("Grace", "emp-2", testEncoding(0.2), ""))
	assert.Equal(t, 2, s.Count())

	reopened, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, 2, reopened.Count())

	entries := reopened.List()
	assert.Equal(t, "Ada", entries[0].Name)
	assert.Equal(t, "emp-1", entries[0].PersonID)
	assert.Equal(t, "/snaps/ada.jpg", entries[0].ImagePath)
	assert.NotZero(t, entries[0].CreatedAt)
}

func TestAddRejectsWrongDimensions(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "faces.bin"))
	require.NoError(t, err)

	err = s.Add("Ada", "emp-1", []float32{1, 2, 3}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 0, s.Count())
}

func TestAddCopiesEncoding(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "faces.bin"))
	require.NoError(t, err)

	enc := testEncoding(0.5)
	require.NoError(t, s.Add("Ada", "emp-1", enc, ""))
	enc[0] = 99

	entries := s.List()
	assert.InDelta(t, 0.5, entries[0].Encoding[0], 1e-6)
}

func TestRemovePerson(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.bin")
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.Add("Ada", "emp-1", testEncoding(0.1), ""))
	require.NoError(t, s.Add("Ada", "emp-1", testEncoding(0.2), ""))
	require.NoError(t, s.Add("Grace", "emp-2", testEncoding(0.3), ""))

	removed, err := s.RemovePerson("emp-1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, s.Count())

	removed, err = s.RemovePerson("emp-404")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.bin")
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.Add("Ada", "emp-1", testEncoding(0.1), ""))
	require.NoError(t, s.Clear())
	assert.Equal(t, 0, s.Count())

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 0, reopened.Count())
}

func TestOpenCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.bin")
	require.NoError(t, os.WriteFile(path, []byte("this is not gob"), 0644))

	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Count())
}

func TestSnapshotReturnsParallelCopies(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "faces.bin"))
	require.NoError(t, err)

	require.NoError(t, s.Add("Ada", "emp-1", testEncoding(0.1), ""))
	require.NoError(t, s.Add("Grace", "emp-2", testEncoding(0.2), ""))

	encodings, names, personIDs := s.Snapshot()
	require.Len(t, encodings, 2)
	assert.Equal(t, []string{"Ada", "Grace"}, names)
	assert.Equal(t, []string{"emp-1", "emp-2"}, personIDs)

	encodings[0][0] = 42
	fresh, _, _ := s.Snapshot()
	assert.InDelta(t, 0.1, fresh[0][0], 1e-6)
}
