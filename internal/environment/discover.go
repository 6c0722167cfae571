package environment

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/conceptixx/AEON/pkg/logging"
)

// BaseDirEnvVar is the explicit installation root override; it is the
// highest-priority source of that value.
const BaseDirEnvVar = "AEON_BASEDIR"

// PathError reports base-directory discovery or containment failures.
type PathError struct {
	Reason string
}

func (e *PathError) Error() string {
	return e.Reason
}

// DetectBaseDir resolves the installation root:
//
//  1. The AEON_BASEDIR environment variable, if set and valid.
//  2. An upward scan from startDir for a directory holding both library/ and
//     tmp/ subdirectories.
func DetectBaseDir(startDir string) (string, error) {
	if explicit := os.Getenv(BaseDirEnvVar); explicit != "" {
		if isBaseDir(explicit) {
			logging.Info("Environment", "Using base directory from %s: %s", BaseDirEnvVar, explicit)
			return explicit, nil
		}
		return "", &PathError{Reason: fmt.Sprintf("%s=%s is not a valid installation root", BaseDirEnvVar, explicit)}
	}

	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", startDir, err)
	}

	for {
		if isBaseDir(dir) {
			logging.Info("Environment", "Discovered base directory: %s", dir)
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", &PathError{Reason: "could not discover installation root: no directory with library/ and tmp/ found"}
}

// isBaseDir reports whether dir looks like an installation root.
func isBaseDir(dir string) bool {
	for _, sub := range []string{"library", "tmp"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		if err != nil || !info.IsDir() {
			return false
		}
	}
	return true
}

// ValidateRelativePath resolves path against base and rejects anything that
// escapes it.
func ValidateRelativePath(path string, base string) (string, error) {
	if filepath.IsAbs(path) {
		return "", &PathError{Reason: fmt.Sprintf("path %q must be relative", path)}
	}

	full := filepath.Clean(filepath.Join(base, path))
	baseClean := filepath.Clean(base)
	rel, err := filepath.Rel(baseClean, full)
	if err != nil || rel == ".." || len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator) {
		return "", &PathError{Reason: fmt.Sprintf("path escapes base directory: %s", path)}
	}
	return full, nil
}
