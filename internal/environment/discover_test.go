package environment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "library"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tmp"), 0755))
	return root
}

func TestDetectBaseDirFromEnv(t *testing.T) {
	root := makeRoot(t)
	t.Setenv(BaseDirEnvVar, root)

	got, err := DetectBaseDir(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestDetectBaseDirEnvInvalid(t *testing.T) {
	t.Setenv(BaseDirEnvVar, t.TempDir())

	_, err := DetectBaseDir(".")
	var perr *PathError
	assert.ErrorAs(t, err, &perr)
}

func TestDetectBaseDirUpwardScan(t *testing.T) {
	t.Setenv(BaseDirEnvVar, "")
	os.Unsetenv(BaseDirEnvVar)

	root := makeRoot(t)
	nested := filepath.Join(root, "tmp", "repo", "deep")
	require.NoError(t, os.MkdirAll(nested, 0755))

	got, err := DetectBaseDir(nested)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestValidateRelativePath(t *testing.T) {
	base := t.TempDir()

	full, err := ValidateRelativePath("tmp/repo", base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "tmp", "repo"), full)

	_, err = ValidateRelativePath("/abs/path", base)
	assert.Error(t, err)

	_, err = ValidateRelativePath("../escape", base)
	assert.Error(t, err)
}
