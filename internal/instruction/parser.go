package instruction

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sigsyaml "sigs.k8s.io/yaml"

	"github.com/conceptixx/AEON/pkg/logging"
)

// ParseFunc decodes raw document bytes into a Document.
type ParseFunc func(data []byte) (*Document, error)

var (
	parserMu sync.RWMutex
	parsers  = map[string]ParseFunc{
		".json": parseJSON,
		".yaml": parseYAML,
		".yml":  parseYAML,
	}
)

// RegisterParser installs a parser for a file extension (with leading dot).
// The built-in registry covers .json, .yaml and .yml.
func RegisterParser(ext string, fn ParseFunc) {
	parserMu.Lock()
	defer parserMu.Unlock()
	parsers[strings.ToLower(ext)] = fn
}

func parserFor(path string) (ParseFunc, error) {
	ext := strings.ToLower(filepath.Ext(path))
	parserMu.RLock()
	defer parserMu.RUnlock()
	fn, ok := parsers[ext]
	if !ok {
		return nil, fmt.Errorf("no parser registered for %q documents", ext)
	}
	return fn, nil
}

func parseJSON(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// parseYAML converts YAML to JSON semantics first so both formats share one
// set of field tags.
func parseYAML(data []byte) (*Document, error) {
	var doc Document
	if err := sigsyaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Load reads, parses and validates an instruction document.
func Load(path string) (*Document, error) {
	fn, err := parserFor(path)
	if err != nil {
		return nil, &ValidationError{Path: path, Reason: err.Error()}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read instruction document %s: %w", path, err)
	}

	doc, err := fn(data)
	if err != nil {
		return nil, &ValidationError{Path: path, Reason: fmt.Sprintf("parse error: %v", err)}
	}

	if err := doc.Validate(); err != nil {
		if verr, ok := err.(*ValidationError); ok {
			verr.Path = path
			return nil, verr
		}
		return nil, err
	}

	logging.Info("Instruction", "Loaded process %q from %s (%d tasks)", doc.ProcessName, path, len(doc.Tasks))
	return doc, nil
}
