package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/conceptixx/AEON/internal/instruction"
	"github.com/conceptixx/AEON/pkg/logging"
)

// UsageError reports bad command-line input: unknown flags under the error
// policy, missing required flags, unparsable values.
type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string {
	return e.Reason
}

// UserAbortError reports a cooperative cancellation requested by the user.
type UserAbortError struct{}

func (e *UserAbortError) Error() string {
	return "aborted by user"
}

// NormalizeArgs rewrites the legacy `--flag:value` form into `--flag=value`
// so both spellings are accepted.
func NormalizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if strings.HasPrefix(arg, "--") {
			if idx := strings.Index(arg, ":"); idx > 2 && !strings.Contains(arg[:idx], "=") {
				out[i] = arg[:idx] + "=" + arg[idx+1:]
				continue
			}
		}
		out[i] = arg
	}
	return out
}

// ParseDeclaredFlags parses leftover arguments against the flag schema an
// entry document declares. Unknown flags follow the document's policy: warn
// logs and skips, error fails with UsageError, ignore skips silently.
func ParseDeclaredFlags(specs []instruction.FlagSpec, policy string, args []string) (map[string]interface{}, []string, error) {
	if policy == "" {
		policy = instruction.UnknownFlagWarn
	}

	byName := make(map[string]instruction.FlagSpec)
	for _, spec := range specs {
		byName[spec.Name] = spec
		for _, alias := range spec.Aliases {
			byName[alias] = spec
		}
	}

	values := make(map[string]interface{})
	for _, spec := range specs {
		if spec.Default != nil {
			values[spec.Name] = spec.Default
		}
	}

	var warnings []string
	seen := make(map[string]bool)

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			continue
		}

		name := strings.TrimLeft(arg, "-")
		var inline string
		var hasInline bool
		if idx := strings.Index(name, "="); idx >= 0 {
			inline = name[idx+1:]
			name = name[:idx]
			hasInline = true
		}

		spec, known := byName[name]
		if !known {
			switch policy {
			case instruction.UnknownFlagError:
				return nil, warnings, &UsageError{Reason: fmt.Sprintf("unknown flag %q", arg)}
			case instruction.UnknownFlagWarn:
				warning := fmt.Sprintf("ignoring unknown flag %q", arg)
				warnings = append(warnings, warning)
				logging.Warn("CLI", "%s", warning)
			}
			continue
		}

		raw := inline
		if !hasInline && spec.Type != "bool" {
			if i+1 >= len(args) {
				return nil, warnings, &UsageError{Reason: fmt.Sprintf("flag %q requires a value", arg)}
			}
			i++
			raw = args[i]
		}

		value, err := parseFlagValue(spec, raw, hasInline)
		if err != nil {
			return nil, warnings, err
		}
		values[spec.Name] = value
		seen[spec.Name] = true
	}

	for _, spec := range specs {
		if spec.Required && !seen[spec.Name] {
			return nil, warnings, &UsageError{Reason: fmt.Sprintf("required flag --%s missing", spec.Name)}
		}
	}

	return values, warnings, nil
}

func parseFlagValue(spec instruction.FlagSpec, raw string, hasInline bool) (interface{}, error) {
	switch spec.Type {
	case "bool":
		if !hasInline {
			return true, nil
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, &UsageError{Reason: fmt.Sprintf("flag --%s: %q is not a boolean", spec.Name, raw)}
		}
		return v, nil
	case "int":
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &UsageError{Reason: fmt.Sprintf("flag --%s: %q is not an integer", spec.Name, raw)}
		}
		return v, nil
	case "float":
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &UsageError{Reason: fmt.Sprintf("flag --%s: %q is not a number", spec.Name, raw)}
		}
		return v, nil
	default:
		return raw, nil
	}
}

// RunArgs is the parsed core argument set of the run command.
type RunArgs struct {
	Files          []string
	Configs        []string
	Root           string
	Repo           string
	NonInteractive bool
	CLIEnable      bool
	WebEnable      bool

	// Rest holds everything not consumed above, parsed later against the
	// entry document's declared flag schema.
	Rest []string
}

// ParseRunArgs splits the run command's arguments into the core set and the
// remainder. Both `--flag=value` and `--flag:value` spellings are accepted.
func ParseRunArgs(args []string) (*RunArgs, error) {
	parsed := &RunArgs{Repo: "tmp/repo"}

	for _, arg := range NormalizeArgs(args) {
		switch {
		case strings.HasPrefix(arg, "--file="):
			parsed.Files = append(parsed.Files, strings.TrimPrefix(arg, "--file="))
		case strings.HasPrefix(arg, "--config="):
			parsed.Configs = append(parsed.Configs, strings.TrimPrefix(arg, "--config="))
		case strings.HasPrefix(arg, "--root="):
			parsed.Root = strings.TrimPrefix(arg, "--root=")
		case strings.HasPrefix(arg, "--repo="):
			parsed.Repo = strings.TrimPrefix(arg, "--repo=")
		case arg == "-n" || arg == "--noninteractive":
			parsed.NonInteractive = true
		case arg == "-c" || arg == "--cli-enable":
			parsed.CLIEnable = true
		case arg == "-w" || arg == "--web-enable":
			parsed.WebEnable = true
		default:
			parsed.Rest = append(parsed.Rest, arg)
		}
	}

	if len(parsed.Files) == 0 {
		return nil, &UsageError{Reason: "at least one --file=<path> is required"}
	}
	return parsed, nil
}
