package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conceptixx/AEON/internal/instruction"
)

func TestNormalizeArgs(t *testing.T) {
	in := []string{"--file:install.json", "--root:/opt/aeon", "--config=x.yaml", "-n", "plain"}
	out := NormalizeArgs(in)
	assert.Equal(t, []string{"--file=install.json", "--root=/opt/aeon", "--config=x.yaml", "-n", "plain"}, out)
}

func TestParseDeclaredFlags(t *testing.T) {
	specs := []instruction.FlagSpec{
		{Name: "scan-range", Type: "string", Default: "192.168.0.0/24"},
		{Name: "scan-timeout", Aliases: []string{"t"}, Type: "int"},
		{Name: "verbose", Type: "bool"},
		{Name: "threshold", Type: "float"},
	}

	values, warnings, err := ParseDeclaredFlags(specs, instruction.UnknownFlagWarn,
		[]string{"--scan-timeout", "5", "--verbose", "--threshold=0.75"})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "192.168.0.0/24", values["scan-range"])
	assert.Equal(t, 5, values["scan-timeout"])
	assert.Equal(t, true, values["verbose"])
	assert.Equal(t, 0.75, values["threshold"])
}

func TestParseDeclaredFlagsAlias(t *testing.T) {
	specs := []instruction.FlagSpec{{Name: "scan-timeout", Aliases: []string{"t"}, Type: "int"}}
	values, _, err := ParseDeclaredFlags(specs, "", []string{"-t", "9"})
	require.NoError(t, err)
	assert.Equal(t, 9, values["scan-timeout"])
}

func TestUnknownFlagPolicies(t *testing.T) {
	specs := []instruction.FlagSpec{{Name: "known", Type: "bool"}}

	_, warnings, err := ParseDeclaredFlags(specs, instruction.UnknownFlagWarn, []string{"--mystery"})
	require.NoError(t, err)
	assert.Len(t, warnings, 1)

	_, warnings, err = ParseDeclaredFlags(specs, instruction.UnknownFlagIgnore, []string{"--mystery"})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	_, _, err = ParseDeclaredFlags(specs, instruction.UnknownFlagError, []string{"--mystery"})
	var uerr *UsageError
	require.ErrorAs(t, err, &uerr)
}

func TestRequiredFlagMissing(t *testing.T) {
	specs := []instruction.FlagSpec{{Name: "target", Type: "string", Required: true}}
	_, _, err := ParseDeclaredFlags(specs, "", nil)
	var uerr *UsageError
	require.ErrorAs(t, err, &uerr)
	assert.Contains(t, uerr.Reason, "--target")
}

func TestBadFlagValues(t *testing.T) {
	specs := []instruction.FlagSpec{{Name: "count", Type: "int"}}
	_, _, err := ParseDeclaredFlags(specs, "", []string{"--count", "many"})
	var uerr *UsageError
	assert.ErrorAs(t, err, &uerr)
}

func TestParseRunArgs(t *testing.T) {
	args, err := ParseRunArgs([]string{
		"--file:install.instruct.json",
		"--file=extra.instruct.json",
		"--config:overlay.yaml",
		"--root:/opt/aeon",
		"-n", "-c",
		"--scan-timeout", "5",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"install.instruct.json", "extra.instruct.json"}, args.Files)
	assert.Equal(t, []string{"overlay.yaml"}, args.Configs)
	assert.Equal(t, "/opt/aeon", args.Root)
	assert.Equal(t, "tmp/repo", args.Repo)
	assert.True(t, args.NonInteractive)
	assert.True(t, args.CLIEnable)
	assert.False(t, args.WebEnable)
	assert.Equal(t, []string{"--scan-timeout", "5"}, args.Rest)
}

func TestParseRunArgsRequiresFile(t *testing.T) {
	_, err := ParseRunArgs([]string{"-n"})
	var uerr *UsageError
	require.ErrorAs(t, err, &uerr)
}
