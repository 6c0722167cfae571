package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/conceptixx/AEON/pkg/logging"
	"github.com/conceptixx/AEON/pkg/metrics"
)

// FileStore persists one human-readable JSON document per unit id. Updates
// are atomic: the document is written to a temporary file in the same
// directory, flushed, then renamed over the target, so partial writes never
// survive a crash.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates the store directory if needed and returns a store
// rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("state store directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, strings.ReplaceAll(id, "/", "_")+".json")
}

// Get returns the record for id.
func (s *FileStore) Get(id string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(id)
}

func (s *FileStore) read(id string) (Record, bool, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("failed to read state for %s: %w", id, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("corrupt state document for %s: %w", id, err)
	}
	return rec, true, nil
}

// PutState updates state and updated_at, writing durably before returning.
func (s *FileStore) PutState(id string, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, _, err := s.read(id)
	if err != nil {
		return err
	}
	rec.State = state
	rec.UpdatedAt = time.Now()
	return s.write(id, rec)
}

// PutResult attaches a result payload, writing durably.
func (s *FileStore) PutResult(id string, payload map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, _, err := s.read(id)
	if err != nil {
		return err
	}
	rec.Result = payload
	rec.UpdatedAt = time.Now()
	return s.write(id, rec)
}

// PutStopInfo records stop bookkeeping for a service unit.
func (s *FileStore) PutStopInfo(id string, stoppedAt time.Time, uptimeSeconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, _, err := s.read(id)
	if err != nil {
		return err
	}
	rec.StoppedAt = &stoppedAt
	rec.UptimeSeconds = &uptimeSeconds
	rec.UpdatedAt = time.Now()
	return s.write(id, rec)
}

// write serializes rec and atomically replaces the document for id.
func (s *FileStore) write(id string, rec Record) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.StateWriteDuration)

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state for %s: %w", id, err)
	}

	target := s.path(id)
	tmp, err := os.CreateTemp(s.dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state for %s: %w", id, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync state for %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state for %s: %w", id, err)
	}

	metrics.StateWrites.Inc()
	logging.Debug("StateStore", "Persisted state for %s", id)
	return nil
}

// Delete clears the record for id. Deleting an absent record is not an error.
func (s *FileStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state for %s: %w", id, err)
	}
	return nil
}

// ResetAll clears the whole store.
func (s *FileStore) ResetAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to list state directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
	}
	logging.Info("StateStore", "Cleared all persisted state under %s", s.dir)
	return nil
}

// List returns the ids of all persisted records.
func (s *FileStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list state directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		// File names flatten group/name to group_name; the first underscore
		// restores the group separator.
		if idx := strings.Index(id, "_"); idx > 0 {
			id = id[:idx] + "/" + id[idx+1:]
		}
		ids = append(ids, id)
	}
	return ids, nil
}
