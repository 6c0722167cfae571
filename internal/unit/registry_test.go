package unit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conceptixx/AEON/internal/manifest"
)

type stubUnit struct {
	*Base
}

func stubConstructor(m manifest.Manifest) (Unit, error) {
	return &stubUnit{Base: NewBase(m)}, nil
}

func TestRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	m := manifest.New("system/start", "1.0.0")

	require.NoError(t, reg.Register(m, stubConstructor))

	got, ok := reg.Manifest("system/start")
	require.True(t, ok)
	assert.Equal(t, "system/start", got.ID)
	assert.Equal(t, 1, reg.Len())
}

func TestRegisterIdempotentForIdenticalManifest(t *testing.T) {
	reg := NewRegistry()
	m := manifest.New("system/start", "1.0.0")

	require.NoError(t, reg.Register(m, stubConstructor))
	assert.NoError(t, reg.Register(m, stubConstructor))
	assert.Equal(t, 1, reg.Len())
}

func TestRegisterDuplicateIDRejected(t *testing.T) {
	reg := NewRegistry()
	m := manifest.New("system/start", "1.0.0")
	require.NoError(t, reg.Register(m, stubConstructor))

	changed := m
	changed.Description = "different body"
	err := reg.Register(changed, stubConstructor)
	require.Error(t, err)
	var dup *DuplicateIDError
	assert.ErrorAs(t, err, &dup)
}

func TestRegisterVersionConflict(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(manifest.New("system/start", "1.0.0"), stubConstructor))

	err := reg.Register(manifest.New("system/start", "2.0.0"), stubConstructor)
	require.Error(t, err)
	var vc *VersionConflictError
	require.ErrorAs(t, err, &vc)
	assert.Equal(t, "1.0.0", vc.Existing)
	assert.Equal(t, "2.0.0", vc.New)
}

func TestRegisterRejectsInvalidManifest(t *testing.T) {
	reg := NewRegistry()
	bad := manifest.New("nogroup", "1.0.0")
	assert.Error(t, reg.Register(bad, stubConstructor))
}

func TestInstantiateCachesInstance(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(manifest.New("system/start", "1.0.0"), stubConstructor))

	first, err := reg.Instantiate("system/start")
	require.NoError(t, err)
	second, err := reg.Instantiate("system/start")
	require.NoError(t, err)
	assert.Same(t, first, second)

	reg.RemoveInstance("system/start")
	_, ok := reg.Instance("system/start")
	assert.False(t, ok)
}

func TestInstantiateUnknownUnit(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Instantiate("ghost/unit")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestManifestsSortedByID(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(manifest.New("b/unit", "1.0.0"), stubConstructor))
	require.NoError(t, reg.Register(manifest.New("a/unit", "1.0.0"), stubConstructor))

	manifests := reg.Manifests()
	require.Len(t, manifests, 2)
	assert.Equal(t, "a/unit", manifests[0].ID)
	assert.Equal(t, "b/unit", manifests[1].ID)
}
