package runstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsInactive(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	assert.False(t, f.Snapshot().Active)
}

func TestSetActivePersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	f, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, f.SetActive("rtsp://cam.local/stream1", "rtsp"))

	reloaded, err := Load(path)
	require.NoError(t, err)
	st := reloaded.Snapshot()
	assert.True(t, st.Active)
	assert.Equal(t, "rtsp://cam.local/stream1", st.Source)
	assert.Equal(t, "rtsp", st.SourceType)
}

func TestSetInactiveClearsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	f, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, f.SetActive("0", "webcam"))
	require.NoError(t, f.SetInactive())

	reloaded, err := Load(path)
	require.NoError(t, err)
	st := reloaded.Snapshot()
	assert.False(t, st.Active)
	assert.Empty(t, st.Source)
	assert.Empty(t, st.SourceType)
}

func TestLoadCorruptFileIsInactive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.False(t, f.Snapshot().Active)
}
