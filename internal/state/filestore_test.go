package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "states"))
	require.NoError(t, err)
	return store
}

func TestGetMissingRecord(t *testing.T) {
	store := newStore(t)

	_, ok, err := store.Get("vitals/heartbeat")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutStateAndGet(t *testing.T) {
	store := newStore(t)

	require.NoError(t, store.PutState("vitals/heartbeat", "started"))

	rec, ok, err := store.Get("vitals/heartbeat")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "started", rec.State)
	assert.WithinDuration(t, time.Now(), rec.UpdatedAt, 5*time.Second)
}

func TestPutResultPreservesState(t *testing.T) {
	store := newStore(t)

	require.NoError(t, store.PutState("utils/config-handler", "resolved"))
	require.NoError(t, store.PutResult("utils/config-handler", map[string]interface{}{"ok": float64(1)}))

	rec, ok, err := store.Get("utils/config-handler")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "resolved", rec.State)
	assert.Equal(t, map[string]interface{}{"ok": float64(1)}, rec.Result)
}

func TestSurvivesRestart(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "states")

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.PutState("system/start", "loaded"))
	require.NoError(t, store.PutResult("system/start", map[string]interface{}{"pid": float64(42)}))

	// A fresh store over the same directory models a process restart.
	reopened, err := NewFileStore(dir)
	require.NoError(t, err)

	rec, ok, err := reopened.Get("system/start")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "loaded", rec.State)
	assert.Equal(t, map[string]interface{}{"pid": float64(42)}, rec.Result)
}

func TestDocumentIsHumanReadable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "states")
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.PutState("vitals/heartbeat", "started"))

	data, err := os.ReadFile(filepath.Join(dir, "vitals_heartbeat.json"))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "\"state\": \"started\"")
	assert.True(t, strings.Contains(text, "\n"), "document should be indented")
}

func TestNoTempFilesLeftBehind(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "states")
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.PutState("a/b", "loaded"))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover temp file %s", e.Name())
	}
}

func TestDeleteAndResetAll(t *testing.T) {
	store := newStore(t)

	require.NoError(t, store.PutState("a/b", "loaded"))
	require.NoError(t, store.PutState("c/d", "started"))

	require.NoError(t, store.Delete("a/b"))
	_, ok, err := store.Get("a/b")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting an absent record is fine.
	require.NoError(t, store.Delete("a/b"))

	require.NoError(t, store.ResetAll())
	ids, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestList(t *testing.T) {
	store := newStore(t)

	require.NoError(t, store.PutState("vitals/heartbeat", "started"))
	require.NoError(t, store.PutState("system/start", "loaded"))

	ids, err := store.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"vitals/heartbeat", "system/start"}, ids)
}

func TestPutStopInfo(t *testing.T) {
	store := newStore(t)

	stoppedAt := time.Now().Truncate(time.Second)
	require.NoError(t, store.PutState("vitals/heartbeat", "stopped"))
	require.NoError(t, store.PutStopInfo("vitals/heartbeat", stoppedAt, 12.5))

	rec, ok, err := store.Get("vitals/heartbeat")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, rec.StoppedAt)
	assert.True(t, rec.StoppedAt.Equal(stoppedAt))
	require.NotNil(t, rec.UptimeSeconds)
	assert.Equal(t, 12.5, *rec.UptimeSeconds)
}
