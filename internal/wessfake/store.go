package wessfake

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/wess-dev/wess-e2e/internal/client"
)

// Module is a stored module as the service keeps it.
type Module struct {
	Wasm     client.Bytes `json:"wasm"`
	Metadata Metadata     `json:"metadata"`
}

// Metadata is the invocation signature of a stored module.
type Metadata struct {
	Func       string   `json:"func"`
	ReturnType []string `json:"return_type"`
	Args       []string `json:"args"`
}

// Store is a thread-safe module store. When Dir is set every module is also
// persisted as <Dir>/<id>.json so runs leave a storage directory behind, the
// way the real service does.
type Store struct {
	mu    sync.RWMutex
	items map[string]Module
	order []string // insertion order for deterministic listing
	fs    afero.Fs
	dir   string
}

// NewStore creates an empty store. An empty dir keeps everything in memory.
func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{
		items: make(map[string]Module),
		order: make([]string, 0),
		fs:    fs,
		dir:   dir,
	}
}

// NextID returns a fresh version-4 UUID.
func (s *Store) NextID() string {
	return uuid.NewString()
}

// Set stores a module under id. If the ID already exists it is overwritten
// but its position in the insertion order is preserved.
func (s *Store) Set(id string, m Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(id, m); err != nil {
		return err
	}
	if _, exists := s.items[id]; !exists {
		s.order = append(s.order, id)
	}
	s.items[id] = m
	return nil
}

// Get retrieves a module by ID.
func (s *Store) Get(id string) (Module, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.items[id]
	return m, ok
}

// Delete removes a module by ID. Returns true if the module existed.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; !exists {
		return false, nil
	}
	if s.dir != "" {
		if err := s.fs.Remove(s.path(id)); err != nil {
			return true, fmt.Errorf("removing %s: %w", id, err)
		}
	}
	delete(s.items, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// IDs returns all IDs in insertion order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Count returns the number of stored modules.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) persist(id string, m Module) error {
	if s.dir == "" {
		return nil
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating storage dir: %w", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return afero.WriteFile(s.fs, s.path(id), data, 0o644)
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}
