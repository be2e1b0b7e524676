package participant

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrNameRequired is returned when saving a participant without a name.
var ErrNameRequired = errors.New("participant name is required")

// Store exposes participant lookup for the assessment service and HTTP handlers.
type Store interface {
	List() []Participant
	FindByID(id string) (Participant, bool)
	Save(p Participant) (Participant, error)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Participant
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied participants.
func NewMemoryStore(items []Participant) *MemoryStore {
	return &MemoryStore{items: append([]Participant(nil), items...)}
}

// List returns all known participants.
func (s *MemoryStore) List() []Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Participant(nil), s.items...)
}

// FindByID looks up a participant by identifier.
func (s *MemoryStore) FindByID(id string) (Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Participant{}, false
}

// Save inserts or replaces a participant. A missing ID is generated.
func (s *MemoryStore) Save(p Participant) (Participant, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return Participant{}, ErrNameRequired
	}
	if strings.TrimSpace(p.ID) == "" {
		p.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.items {
		if item.ID == p.ID {
			s.items[i] = p
			return p, nil
		}
	}
	s.items = append(s.items, p)
	return p, nil
}
