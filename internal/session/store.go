package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/avasa-home/checkout/internal/domain"
)

// Store persists the client-side session contract: bearer token, temporary
// cart id, and cached profile display fields.
type Store interface {
	Load() (domain.SessionState, error)
	Save(state domain.SessionState) error
	Clear() error
}

// FileStore keeps the session state as a JSON document on disk, standing in
// for the browser's persistent storage.
type FileStore struct {
	path string
}

// NewFileStore constructs a FileStore rooted at the given path.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("session: store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("session: create store dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load reads the persisted state. A missing file yields the zero state.
func (s *FileStore) Load() (domain.SessionState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.SessionState{}, nil
		}
		return domain.SessionState{}, fmt.Errorf("session: read store: %w", err)
	}
	var state domain.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		// Corrupt state is discarded rather than wedging the session.
		return domain.SessionState{}, nil
	}
	return state, nil
}

// Save writes the state atomically.
func (s *FileStore) Save(state domain.SessionState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("session: write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("session: replace state: %w", err)
	}
	return nil
}

// Clear removes the persisted state.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: clear state: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store used by tests and ephemeral sessions.
type MemoryStore struct {
	mu    sync.Mutex
	state domain.SessionState
	saved bool
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Seed replaces the stored state wholesale.
func (s *MemoryStore) Seed(state domain.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.saved = true
}

// Load returns the current state.
func (s *MemoryStore) Load() (domain.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

// Save replaces the current state.
func (s *MemoryStore) Save(state domain.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.saved = true
	return nil
}

// Clear resets the state to zero.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = domain.SessionState{}
	s.saved = false
	return nil
}
