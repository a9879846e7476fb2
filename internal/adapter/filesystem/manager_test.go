package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertextoedge/threadfetch/internal/domain"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), "")
	require.NoError(t, err)
	return m
}

func TestManager_MoveIntoPlace(t *testing.T) {
	m := newTestManager(t)

	f, _, err := m.OpenPartial("abc", false)
	require.NoError(t, err)
	_, err = f.WriteString("payload")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	final, err := m.MoveIntoPlace(m.PartialPath("abc"), "board/thread/a.jpg")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(m.RootDir(), "board", "thread", "a.jpg"), final)
	data, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.False(t, m.FileExists(m.PartialPath("abc")))
}

func TestManager_MoveIntoPlaceOverwritesStaleFile(t *testing.T) {
	m := newTestManager(t)

	stale := filepath.Join(m.RootDir(), "a.jpg")
	require.NoError(t, os.WriteFile(stale, []byte("old contents"), 0644))

	tmp := filepath.Join(m.TempDir(), "x.part")
	require.NoError(t, os.WriteFile(tmp, []byte("new"), 0644))

	_, err := m.MoveIntoPlace(tmp, "a.jpg")
	require.NoError(t, err)

	data, err := os.ReadFile(stale)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestManager_MoveIntoPlaceMissingTemp(t *testing.T) {
	m := newTestManager(t)

	_, err := m.MoveIntoPlace(filepath.Join(m.TempDir(), "missing.part"), "a.jpg")
	require.Error(t, err)
	assert.True(t, domain.IsStorageError(err))
}

func TestManager_ResolveRejectsEscapes(t *testing.T) {
	m := newTestManager(t)

	for _, p := range []string{"", "/abs/a.jpg", "../a.jpg"} {
		_, err := m.Resolve(p)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput), "path %q", p)
	}
}

func TestManager_OpenPartialResume(t *testing.T) {
	m := newTestManager(t)

	f, size, err := m.OpenPartial("r1", true)
	require.NoError(t, err)
	assert.Zero(t, size)
	_, _ = f.WriteString("12345")
	require.NoError(t, f.Close())

	f, size, err = m.OpenPartial("r1", true)
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)
	_, _ = f.WriteString("678")
	require.NoError(t, f.Close())

	n, _, err := m.GetTempFileInfo(m.PartialPath("r1"))
	require.NoError(t, err)
	assert.EqualValues(t, 8, n)

	f, size, err = m.OpenPartial("r1", false)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Zero(t, size)
}

func TestManager_CleanOldTempFiles(t *testing.T) {
	m := newTestManager(t)

	old := time.Now().Add(-2 * time.Hour)
	for _, id := range []string{"stale", "active", "fresh"} {
		p := m.PartialPath(id)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
		if id != "fresh" {
			require.NoError(t, os.Chtimes(p, old, old))
		}
	}

	n, err := m.CleanOldTempFiles(time.Hour, func(id string) bool { return id == "active" })
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.False(t, m.FileExists(m.PartialPath("stale")))
	assert.True(t, m.FileExists(m.PartialPath("active")))
	assert.True(t, m.FileExists(m.PartialPath("fresh")))
}

func TestManager_GetTempFileInfoMissing(t *testing.T) {
	m := newTestManager(t)

	size, mod, err := m.GetTempFileInfo(filepath.Join(m.TempDir(), "nope.part"))
	require.NoError(t, err)
	assert.Zero(t, size)
	assert.True(t, mod.IsZero())
}
