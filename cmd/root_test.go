package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conceptixx/AEON/internal/cli"
	"github.com/conceptixx/AEON/internal/dependency"
	"github.com/conceptixx/AEON/internal/instruction"
	"github.com/conceptixx/AEON/internal/manifest"
)

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"usage error", &cli.UsageError{Reason: "bad flag"}, ExitCodeUsage},
		{"user abort", &cli.UserAbortError{}, ExitCodeUserAbort},
		{"document validation", &instruction.ValidationError{Reason: "bad schema"}, ExitCodeValidation},
		{"path security", &instruction.PathSecurityError{Path: "/abs"}, ExitCodeValidation},
		{"expected file", &instruction.ExpectedFileError{Path: "x"}, ExitCodeValidation},
		{"manifest validation", &manifest.ValidationError{ID: "a/b", Reason: "bad"}, ExitCodeValidation},
		{"cycle", &dependency.CycleError{Cycle: "a -> b -> a"}, ExitCodeDependency},
		{"missing dependency", &dependency.MissingDependencyError{ID: "a/b", Missing: "c/d"}, ExitCodeDependency},
		{"version conflict", &dependency.VersionConflictError{ID: "a/b"}, ExitCodeDependency},
		{"sigint", context.Canceled, ExitCodeSigint},
		{"plain failure", errors.New("step failed"), ExitCodeError},
		{"wrapped usage error", errors.Join(errors.New("outer"), &cli.UsageError{Reason: "inner"}), ExitCodeUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, getExitCode(tt.err))
		})
	}
}

func TestVersionAccessors(t *testing.T) {
	SetVersion("9.9.9-test")
	assert.Equal(t, "9.9.9-test", GetVersion())
}
