// Package memstore is an in-memory implementation of the booking stores and directories.
// Safe for concurrent access. Used by tests and by the admin CLI's -memory mode.
package memstore

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtapi/booking-engine/internal/core"
	"github.com/dtapi/booking-engine/internal/domain/model"
	apperrors "github.com/dtapi/booking-engine/internal/errors"
)

var (
	_ core.JobStore            = (*Store)(nil)
	_ core.DistanceStore       = (*Store)(nil)
	_ core.TranslatorDirectory = (*Store)(nil)
	_ core.CustomerDirectory   = (*Store)(nil)
)

// Store keeps every record in maps guarded by one RWMutex.
type Store struct {
	mu sync.RWMutex

	jobs        map[string]*model.Job
	distances   map[string]*model.Distance
	translators map[string]*model.Translator
	customers   map[string]*model.Customer

	now func() time.Time
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:        make(map[string]*model.Job),
		distances:   make(map[string]*model.Distance),
		translators: make(map[string]*model.Translator),
		customers:   make(map[string]*model.Customer),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source for CreatedAt/UpdatedAt.
func (m *Store) WithClock(c core.Clock) *Store {
	m.now = c.Now
	return m
}

// ──────────────────────────────────────────────────
// Directory seeding
// ──────────────────────────────────────────────────

// PutTranslator inserts or replaces a translator.
func (m *Store) PutTranslator(t *model.Translator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.translators[t.ID] = &cp
}

// PutCustomer inserts or replaces a customer.
func (m *Store) PutCustomer(c *model.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.customers[c.ID] = &cp
}

// GetTranslator returns a translator by id.
func (m *Store) GetTranslator(_ context.Context, id string) (*model.Translator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.translators[id]
	if !ok {
		return nil, apperrors.NotFoundf("translator %s not found", id)
	}
	cp := *t
	return &cp, nil
}

// ListTranslators returns every translator sorted by id.
func (m *Store) ListTranslators(_ context.Context) ([]*model.Translator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Translator, 0, len(m.translators))
	for _, t := range m.translators {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetCustomer returns a customer by id.
func (m *Store) GetCustomer(_ context.Context, id string) (*model.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, apperrors.NotFoundf("customer %s not found", id)
	}
	cp := *c
	return &cp, nil
}

// ──────────────────────────────────────────────────
// Job store
// ──────────────────────────────────────────────────

// Create persists a new job with version 1. An empty ID is filled with a UUID.
func (m *Store) Create(_ context.Context, job *model.Job) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.customers[job.CustomerID]; !ok {
		return nil, apperrors.ForeignKey("referenced customer does not exist")
	}

	cp := job.Clone()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if _, exists := m.jobs[cp.ID]; exists {
		return nil, apperrors.Conflictf("job %s already exists", cp.ID)
	}
	now := m.now()
	cp.Version = 1
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.jobs[cp.ID] = cp
	return cp.Clone(), nil
}

// Get returns a copy of the job.
func (m *Store) Get(_ context.Context, id string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	return j.Clone(), nil
}

// Save replaces the job when the stored version equals expectedVersion.
func (m *Store) Save(_ context.Context, job *model.Job, expectedVersion int64) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.jobs[job.ID]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", job.ID)
	}
	if cur.Version != expectedVersion {
		return nil, apperrors.Conflictf("job %s was modified concurrently (version %d, expected %d)",
			job.ID, cur.Version, expectedVersion)
	}
	cp := job.Clone()
	cp.Version = cur.Version + 1
	cp.CreatedAt = cur.CreatedAt
	cp.UpdatedAt = m.now()
	m.jobs[cp.ID] = cp
	return cp.Clone(), nil
}

// UpdateAdminFields writes the admin block and bumps the version.
func (m *Store) UpdateAdminFields(_ context.Context, jobID string, f model.AdminFields) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.jobs[jobID]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", jobID)
	}
	cur.AdminComments = f.AdminComments
	cur.Flagged = f.Flagged
	cur.SessionTime = f.SessionTime
	cur.ManuallyHandled = f.ManuallyHandled
	cur.ByAdmin = f.ByAdmin
	cur.Version++
	cur.UpdatedAt = m.now()
	return cur.Clone(), nil
}

// Query returns jobs matching filter, ordered per filter.SortBy/SortOrder with id as tie-breaker.
func (m *Store) Query(_ context.Context, f model.JobFilter) ([]*model.Job, error) {
	m.mu.RLock()
	out := make([]*model.Job, 0)
	for _, j := range m.jobs {
		if matches(j, f) {
			out = append(out, j.Clone())
		}
	}
	m.mu.RUnlock()

	less := sortKey(f.SortBy)
	desc := !strings.EqualFold(f.SortOrder, "asc")
	sort.Slice(out, func(i, k int) bool {
		a, b := out[i], out[k]
		if c := less(a, b); c != 0 {
			if desc {
				return c > 0
			}
			return c < 0
		}
		return a.ID < b.ID
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*model.Job{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(j *model.Job, f model.JobFilter) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, j.Status) {
		return false
	}
	if f.CustomerID != "" && j.CustomerID != f.CustomerID {
		return false
	}
	if f.TranslatorID != "" && !j.AssignedTo(f.TranslatorID) {
		return false
	}
	if f.CandidateID != "" && !j.IsCandidate(f.CandidateID) {
		return false
	}
	if f.OfferedBefore != nil && (j.OfferedAt == nil || j.OfferedAt.After(*f.OfferedBefore)) {
		return false
	}
	return true
}

func sortKey(by string) func(a, b *model.Job) int {
	switch by {
	case "due_at":
		return func(a, b *model.Job) int { return a.DueAt.Compare(b.DueAt) }
	case "updated_at":
		return func(a, b *model.Job) int { return a.UpdatedAt.Compare(b.UpdatedAt) }
	default:
		return func(a, b *model.Job) int { return a.CreatedAt.Compare(b.CreatedAt) }
	}
}

// ──────────────────────────────────────────────────
// Distance store
// ──────────────────────────────────────────────────

// GetDistance returns the distance record of a job.
func (m *Store) GetDistance(_ context.Context, jobID string) (*model.Distance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.distances[jobID]
	if !ok {
		return nil, apperrors.NotFoundf("distance for job %s not found", jobID)
	}
	cp := *d
	return &cp, nil
}

// UpsertDistance creates the record lazily and changes only the supplied fields.
func (m *Store) UpsertDistance(_ context.Context, jobID string, u model.DistanceUpdate) (*model.Distance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[jobID]; !ok {
		return nil, apperrors.ForeignKey("referenced job does not exist")
	}
	d, ok := m.distances[jobID]
	if !ok {
		d = &model.Distance{JobID: jobID}
		m.distances[jobID] = d
	}
	if u.Distance != nil {
		d.Distance = *u.Distance
	}
	if u.Time != nil {
		d.Time = *u.Time
	}
	d.UpdatedAt = m.now()
	cp := *d
	return &cp, nil
}
