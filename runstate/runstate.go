package runstate

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// State records whether the processing loop should be running and on which
// source. It survives process restarts so an operator-started stream
// resumes after a crash or deploy.
type State struct {
	Active     bool   `json:"active"`
	Source     string `json:"source"`
	SourceType string `json:"source_type"`
}

// File is the durable run-state record backed by a JSON file. Reads are
// served from the in-memory copy; every mutation rewrites the file through
// an atomic rename.
type File struct {
	path string

	mu    sync.Mutex
	state State
}

// Load reads the run state at path. A missing or unparseable file yields
// the inactive state.
func Load(path string) (*File, error) {
	f := &File{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("runstate: failed to read %s: %w", path, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		log.Printf("runstate: WARNING - state file %s is corrupt (%v), treating as inactive", path, err)
		return f, nil
	}
	f.state = st
	return f, nil
}

// SetActive records that processing is running on the given source.
func (f *File) SetActive(source, sourceType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = State{Active: true, Source: source, SourceType: sourceType}
	return f.writeLocked()
}

// SetInactive records that processing is stopped.
func (f *File) SetInactive() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = State{}
	return f.writeLocked()
}

// Snapshot returns a copy of the current state.
func (f *File) Snapshot() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *File) writeLocked() error {
	data, err := json.Marshal(f.state)
	if err != nil {
		return fmt.Errorf("runstate: failed to marshal state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("runstate: failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".runstate-*.tmp")
	if err != nil {
		return fmt.Errorf("runstate: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("runstate: failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("runstate: failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("runstate: failed to replace %s: %w", f.path, err)
	}
	return nil
}
