package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/zhouzirui/z-assess/backend/internal/model/assessment"
)

// MemorySessionStore keeps sessions in an expiring in-process cache.
// Each write refreshes the idle TTL.
type MemorySessionStore struct {
	cache *cache.Cache
	locks *KeyedMutex
}

// NewMemorySessionStore creates a cache that drops sessions idle for ttl.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	cleanup := ttl / 4
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &MemorySessionStore{
		cache: cache.New(ttl, cleanup),
		locks: NewKeyedMutex(),
	}
}

func (m *MemorySessionStore) Create(_ context.Context, s *assessment.Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("%w: session without id", assessment.ErrInvariantViolation)
	}
	if err := m.cache.Add(s.ID, s.Clone(), cache.DefaultExpiration); err != nil {
		return fmt.Errorf("%w: session %s already exists", assessment.ErrInvariantViolation, s.ID)
	}
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (*assessment.Session, error) {
	s, ok := m.load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", assessment.ErrSessionNotFound, id)
	}
	return s.Clone(), nil
}

func (m *MemorySessionStore) Update(ctx context.Context, id string, fn UpdateFunc) (*assessment.Session, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, ok := m.load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", assessment.ErrSessionNotFound, id)
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	m.cache.Set(id, working, cache.DefaultExpiration)
	return working.Clone(), nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.cache.Delete(id)
	return nil
}

func (m *MemorySessionStore) load(id string) (*assessment.Session, bool) {
	x, found := m.cache.Get(id)
	if !found {
		return nil, false
	}
	return x.(*assessment.Session), true
}

// MemoryReportStore keeps reports and decisions in maps guarded by an RWMutex.
type MemoryReportStore struct {
	mu            sync.RWMutex
	reports       map[string]assessment.Report
	byParticipant map[string][]string
	decisions     map[string][]assessment.Decision
}

// NewMemoryReportStore creates an empty report log.
func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{
		reports:       make(map[string]assessment.Report),
		byParticipant: make(map[string][]string),
		decisions:     make(map[string][]assessment.Decision),
	}
}

func (m *MemoryReportStore) SaveReport(_ context.Context, r assessment.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reports[r.ID]; exists {
		return fmt.Errorf("%w: %s", ErrReportExists, r.ID)
	}
	m.reports[r.ID] = r.Clone()
	m.byParticipant[r.ParticipantID] = append(m.byParticipant[r.ParticipantID], r.ID)
	return nil
}

func (m *MemoryReportStore) GetReport(_ context.Context, id string) (assessment.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reports[id]
	if !ok {
		return assessment.Report{}, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return r.Clone(), nil
}

// ListReports returns the participant's reports, newest first.
func (m *MemoryReportStore) ListReports(_ context.Context, participantID string) ([]assessment.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byParticipant[participantID]
	out := make([]assessment.Report, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.reports[id].Clone())
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryReportStore) DeleteReport(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reports[id]
	if !ok {
		return nil
	}
	delete(m.reports, id)
	delete(m.decisions, id)

	ids := m.byParticipant[r.ParticipantID]
	kept := ids[:0]
	for _, other := range ids {
		if other != id {
			kept = append(kept, other)
		}
	}
	if len(kept) == 0 {
		delete(m.byParticipant, r.ParticipantID)
	} else {
		m.byParticipant[r.ParticipantID] = kept
	}
	return nil
}

func (m *MemoryReportStore) SaveDecision(_ context.Context, d assessment.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.reports[d.ReportID]; !ok {
		return fmt.Errorf("%w: %s", ErrReportNotFound, d.ReportID)
	}
	m.decisions[d.ReportID] = append(m.decisions[d.ReportID], d)
	return nil
}

func (m *MemoryReportStore) Decisions(_ context.Context, reportID string) ([]assessment.Decision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]assessment.Decision(nil), m.decisions[reportID]...), nil
}

func sortNewestFirst(reports []assessment.Report) {
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
}
