package facestore

import (
	"encoding/gob"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EncodingDimensions is the embedding length every stored entry must have.
const EncodingDimensions = 128

var ErrDimensionMismatch = errors.New("facestore: encoding has wrong dimensions")

// Entry is one registered face: the person it belongs to and the encoding
// used for matching.
type Entry struct {
	Name      string
	PersonID  string
	Encoding  []float32
	ImagePath string
	CreatedAt int64
}

// Store is the persistent face encoding store. All entries live in memory
// and are flushed to a single blob file on every mutation; the file is
// replaced atomically so a crash mid-write never corrupts the store.
type Store struct {
	path string

	mu      sync.Mutex
	entries []Entry
}

// Open loads the store at path. A missing or empty file yields an empty
// store; a corrupt file is treated as empty and logged, not fatal.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("facestore: no existing store at %s, starting empty", path)
			return s, nil
		}
		return nil, fmt.Errorf("facestore: failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("facestore: failed to open %s: %w", path, err)
	}
	defer f.Close()

	var entries []Entry
	if err := gob.NewDecoder(f).Decode(&entries); err != nil {
		log.Printf("facestore: WARNING - store file %s is corrupt (%v), starting empty", path, err)
		return s, nil
	}

	kept := entries[:0]
	for _, e := range entries {
		if len(e.Encoding) != EncodingDimensions {
			log.Printf("facestore: dropping entry for %s (person_id=%s): encoding has %d values, expected %d", e.Name, e.PersonID, len(e.Encoding), EncodingDimensions)
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	log.Printf("facestore: loaded %d encodings from %s", len(s.entries), path)
	return s, nil
}

// Add appends an encoding for a person and persists the store.
func (s *Store) Add(name, personID string, encoding []float32, imagePath string) error {
	if len(encoding) != EncodingDimensions {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(encoding), EncodingDimensions)
	}

	enc := make([]float32, len(encoding))
	copy(enc, encoding)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, Entry{
		Name:      name,
		PersonID:  personID,
		Encoding:  enc,
		ImagePath: imagePath,
		CreatedAt: time.Now().Unix(),
	})
	return s.flushLocked()
}

// RemovePerson deletes every entry for the given person id and persists.
// It reports how many entries were removed.
func (s *Store) RemovePerson(personID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.PersonID == personID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return 0, nil
	}
	s.entries = kept
	if err := s.flushLocked(); err != nil {
		return removed, err
	}
	return removed, nil
}

// Clear removes every entry and persists the empty store.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return s.flushLocked()
}

// Count reports the number of stored encodings.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// List returns a copy of every entry.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	for i := range out {
		enc := make([]float32, len(out[i].Encoding))
		copy(enc, out[i].Encoding)
		out[i].Encoding = enc
	}
	return out
}

// Snapshot returns the store contents as parallel slices in the layout the
// matcher consumes.
func (s *Store) Snapshot() (encodings [][]float32, names, personIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	encodings = make([][]float32, 0, len(s.entries))
	names = make([]string, 0, len(s.entries))
	personIDs = make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		enc := make([]float32, len(e.Encoding))
		copy(enc, e.Encoding)
		encodings = append(encodings, enc)
		names = append(names, e.Name)
		personIDs = append(personIDs, e.PersonID)
	}
	return encodings, names, personIDs
}

func (s *Store) flushLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("facestore: failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".facestore-*.tmp")
	if err != nil {
		return fmt.Errorf("facestore: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := gob.NewEncoder(tmp).Encode(s.entries); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("facestore: failed to encode store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("facestore: failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("facestore: failed to replace %s: %w", s.path, err)
	}
	return nil
}
