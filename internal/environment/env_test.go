package environment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrecedenceOSWins(t *testing.T) {
	s := NewState()

	// Load in the order a real run would: dotenv, manifest, CLI overlay, OS.
	require.True(t, s.Set("X", "d", SourceDotenv, ".env", false))
	require.True(t, s.Set("X", "m", SourceManifest, "", false))
	require.True(t, s.Set("X", "c", SourceCLIOverlay, "", false))
	require.True(t, s.Set("X", "os_wins", SourceOS, "", false))

	v, ok := s.Get("X")
	require.True(t, ok)
	assert.Equal(t, "os_wins", v.Value)
	assert.Equal(t, SourceOS, v.Source)
}

func TestLowerPriorityNeverDisplacesHigher(t *testing.T) {
	s := NewState()

	require.True(t, s.Set("X", "os_wins", SourceOS, "", false))

	// Later, lower-priority layers are blocked.
	assert.False(t, s.Set("X", "c", SourceCLIOverlay, "", false))
	assert.False(t, s.Set("X", "m", SourceManifest, "", false))
	assert.False(t, s.Set("X", "d", SourceDotenv, ".env", false))

	v, _ := s.Get("X")
	assert.Equal(t, "os_wins", v.Value)
	assert.Equal(t, SourceOS, v.Source)
}

func TestEqualPriorityOverwrites(t *testing.T) {
	s := NewState()
	require.True(t, s.Set("X", "first", SourceManifest, "", false))
	require.True(t, s.Set("X", "second", SourceManifest, "", false))

	v, _ := s.Get("X")
	assert.Equal(t, "second", v.Value)
}

func TestReadonlyBlocksAllOverrides(t *testing.T) {
	s := NewState()
	require.True(t, s.Set("LOCKED", "v", SourceDotenv, ".env", true))

	// Even the OS layer cannot displace a readonly variable.
	assert.False(t, s.Set("LOCKED", "os", SourceOS, "", false))

	v, _ := s.Get("LOCKED")
	assert.Equal(t, "v", v.Value)

	assert.False(t, s.Remove("LOCKED"))
	_, still := s.Get("LOCKED")
	assert.True(t, still)
}

func TestRemoveAndNames(t *testing.T) {
	s := NewState()
	s.Set("B", "1", SourceOS, "", false)
	s.Set("A", "2", SourceOS, "", false)

	assert.Equal(t, []string{"A", "B"}, s.Names())
	assert.True(t, s.Remove("A"))
	assert.Equal(t, []string{"B"}, s.Names())
}
