package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/conceptixx/AEON/pkg/logging"
)

// DefaultPath is where the run result document lands unless the instruction
// document routes it elsewhere.
const DefaultPath = "runtime/last_result.json"

// StepStatus is the terminal status of one executed step.
type StepStatus string

const (
	StatusSuccess StepStatus = "success"
	StatusFailed  StepStatus = "failed"
)

// Meta describes the run that produced the document.
type Meta struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Root      string    `json:"root"`
	Mode      string    `json:"mode"`
	Flags     []string  `json:"flags,omitempty"`
	EntryPath string    `json:"entry_path"`
}

// Step records the outcome of one flow step.
type Step struct {
	ID     string                 `json:"id"`
	Action string                 `json:"action"`
	Status StepStatus             `json:"status"`
	Result map[string]interface{} `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// Document is the run result written after every orchestrated run.
type Document struct {
	Meta     Meta     `json:"meta"`
	Warnings []string `json:"warnings"`
	Steps    []Step   `json:"steps"`
}

// NewDocument starts a result document for the given run parameters.
func NewDocument(root, mode, entryPath string, flags []string) *Document {
	return &Document{
		Meta: Meta{
			RunID:     uuid.NewString(),
			Timestamp: time.Now(),
			Root:      root,
			Mode:      mode,
			Flags:     flags,
			EntryPath: entryPath,
		},
		Warnings: []string{},
		Steps:    []Step{},
	}
}

// AddWarning appends a non-fatal warning.
func (d *Document) AddWarning(w string) {
	d.Warnings = append(d.Warnings, w)
}

// AddStep records a step outcome.
func (d *Document) AddStep(step Step) {
	d.Steps = append(d.Steps, step)
}

// Failed reports whether any step failed.
func (d *Document) Failed() bool {
	for _, s := range d.Steps {
		if s.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Write persists the document atomically: temporary file in the target
// directory, flush, rename.
func (d *Document) Write(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create result directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result document: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".result-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp result file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write result document: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync result document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp result file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace result document: %w", err)
	}

	logging.Info("Result", "Wrote run result to %s", path)
	return nil
}
