package environment

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/conceptixx/AEON/pkg/logging"
)

// dotenvLine matches `KEY=value` lines with an optional `!` readonly prefix.
var dotenvLine = regexp.MustCompile(`^(!)?\s*([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.*)$`)

// ParseLine parses one dotenv line. Returns ok=false for comments, blank
// lines and anything that is not a key=value assignment.
func ParseLine(line string) (key, value string, readonly, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false, false
	}

	m := dotenvLine.FindStringSubmatch(trimmed)
	if m == nil {
		return "", "", false, false
	}
	readonly = m[1] == "!"
	key = m[2]
	value = m[3]

	if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
		value = unescape(value[1 : len(value)-1])
	}
	return key, value, readonly, true
}

// unescape reverses QuoteValue's escape sequences.
func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i == len(s)-1 {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// QuoteValue renders a value for a dotenv file, escaping backslash first,
// then double quotes, newlines, carriage returns and tabs. Values containing
// escapes, spaces or shell-special characters are double quoted.
func QuoteValue(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)

	if escaped != value || strings.ContainsAny(value, " #'`$&|;<>()") || value == "" {
		return `"` + escaped + `"`
	}
	return escaped
}

// LoadDotenv reads a dotenv file into the state with dotenv-source priority.
func LoadDotenv(s *State, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open dotenv file %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		key, value, readonly, ok := ParseLine(scanner.Text())
		if !ok {
			continue
		}
		if s.Set(key, value, SourceDotenv, path, readonly) {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read dotenv file %s: %w", path, err)
	}

	logging.Debug("Environment", "Loaded %d variables from %s", count, path)
	return nil
}

// WriteDotenv atomically writes variables to a dotenv file: temporary file in
// the same directory, flush, rename. Readonly variables carry the `!` prefix
// so they survive a round trip.
func WriteDotenv(path string, vars []VarMetadata) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	var b strings.Builder
	for _, v := range vars {
		if v.Readonly {
			b.WriteString("!")
		}
		b.WriteString(v.Name)
		b.WriteString("=")
		b.WriteString(QuoteValue(v.Value))
		b.WriteString("\n")
	}

	tmp, err := os.CreateTemp(dir, ".env-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp dotenv file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write dotenv file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync dotenv file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp dotenv file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace dotenv file %s: %w", path, err)
	}
	return nil
}

// SetPersistent durably records a variable and then applies it to the state.
// The dotenv document is written first; if the disk write fails the in-memory
// state is left untouched, so memory never runs ahead of disk.
func SetPersistent(s *State, path, name, value string, readonly bool) error {
	current := make(map[string]VarMetadata)
	for _, n := range s.Names() {
		if v, ok := s.Get(n); ok && v.Source == SourceDotenv {
			current[n] = v
		}
	}
	current[name] = VarMetadata{Name: name, Value: value, Source: SourceDotenv, OriginFile: path, Readonly: readonly}

	names := make([]string, 0, len(current))
	for n := range current {
		names = append(names, n)
	}
	sort.Strings(names)

	vars := make([]VarMetadata, 0, len(names))
	for _, n := range names {
		vars = append(vars, current[n])
	}

	if err := WriteDotenv(path, vars); err != nil {
		return err
	}

	s.Set(name, value, SourceDotenv, path, readonly)
	return nil
}
