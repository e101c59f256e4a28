// Package memory is a fully in-memory backend for tests and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nickd290/jobtrail/internal/domain"
	"github.com/nickd290/jobtrail/internal/jobs"
	"github.com/nickd290/jobtrail/internal/ledger"
	"github.com/nickd290/jobtrail/internal/thread"
)

// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ thread.Store = (*Store)(nil)
	_ ledger.Store = (*Store)(nil)
	_ jobs.Store   = (*Store)(nil)
)

type storedThread struct {
	domain.Thread
	seq int64
}

type storedEvent struct {
	domain.Event
	seq int64
}

// Store implements every store contract in memory. Safe for concurrent use.
type Store struct {
	mu  sync.RWMutex
	seq int64

	threads   map[string]*storedThread
	events    map[string]*storedEvent // key: event id
	byMessage map[string]string       // message id -> event id

	jobs   map[string]*domain.Job
	pos    map[string][]domain.PurchaseOrder
	comps  map[string][]domain.Component
	splits map[string]domain.ProfitSplit
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		threads:   make(map[string]*storedThread),
		events:    make(map[string]*storedEvent),
		byMessage: make(map[string]string),
		jobs:      make(map[string]*domain.Job),
		pos:       make(map[string][]domain.PurchaseOrder),
		comps:     make(map[string][]domain.Component),
		splits:    make(map[string]domain.ProfitSplit),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

func (m *Store) next() int64 {
	m.seq++
	return m.seq
}

// ──────────────────────────────────────────────────
// Thread Store
// ──────────────────────────────────────────────────

// UpsertThread inserts or refreshes a thread; PO and domain are first-seen-wins.
func (m *Store) UpsertThread(_ context.Context, t *domain.Thread) (*domain.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.threads[t.ThreadID]
	if !ok {
		cp := copyThread(*t)
		cp.JobID = ""
		m.threads[t.ThreadID] = &storedThread{Thread: *cp, seq: m.next()}
		return copyThread(*cp), nil
	}

	if t.LastMessageAt != nil {
		lm := *t.LastMessageAt
		cur.LastMessageAt = &lm
	}
	cur.LastSyncedAt = t.LastSyncedAt
	if cur.PONumber == "" {
		cur.PONumber = t.PONumber
	}
	if cur.CustomerDomain == "" {
		cur.CustomerDomain = t.CustomerDomain
	}
	return copyThread(cur.Thread), nil
}

// GetThread retrieves a thread.
func (m *Store) GetThread(_ context.Context, threadID string) (*domain.Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("get thread %s: %w", threadID, domain.ErrThreadNotFound)
	}
	return copyThread(t.Thread), nil
}

// LinkThread sets the thread's job and claims its unlinked events.
func (m *Store) LinkThread(_ context.Context, threadID, jobID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.threads[threadID]
	if !ok {
		return 0, fmt.Errorf("link thread %s: %w", threadID, domain.ErrThreadNotFound)
	}
	t.JobID = jobID

	n := 0
	for _, e := range m.events {
		if e.ThreadID == threadID && e.JobID == "" {
			e.JobID = jobID
			n++
		}
	}
	return n, nil
}

// ListOrphanThreads returns threads with no job, newest first.
func (m *Store) ListOrphanThreads(_ context.Context, limit int) ([]domain.Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var orphans []*storedThread
	for _, t := range m.threads {
		if t.JobID == "" {
			orphans = append(orphans, t)
		}
	}
	sort.Slice(orphans, func(i, j int) bool {
		a, b := orphans[i], orphans[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := []domain.Thread{}
	for _, t := range orphans {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, *copyThread(t.Thread))
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Ledger Store
// ──────────────────────────────────────────────────

// InsertEvent stores e unless its message id already exists.
func (m *Store) InsertEvent(_ context.Context, e *domain.Event) (*domain.Event, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byMessage[e.MessageID]; ok {
		return copyEvent(m.events[id].Event), false, nil
	}
	if _, ok := m.threads[e.ThreadID]; !ok {
		return nil, false, fmt.Errorf("insert event: %w", domain.ErrThreadNotFound)
	}
	if _, ok := m.events[e.ID]; ok {
		return nil, false, fmt.Errorf("insert event: duplicate id %s", e.ID)
	}

	stored := copyEvent(*e)
	if stored.Signals == nil {
		stored.Signals = []string{}
	}
	if stored.Links == nil {
		stored.Links = []string{}
	}
	m.events[e.ID] = &storedEvent{Event: *stored, seq: m.next()}
	m.byMessage[e.MessageID] = e.ID
	return copyEvent(*stored), true, nil
}

// GetEvent retrieves an event by id.
func (m *Store) GetEvent(_ context.Context, eventID string) (*domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[eventID]
	if !ok {
		return nil, fmt.Errorf("get event %s: %w", eventID, domain.ErrEventNotFound)
	}
	return copyEvent(e.Event), nil
}

// GetEventByMessageID retrieves an event by message id.
func (m *Store) GetEventByMessageID(_ context.Context, messageID string) (*domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byMessage[messageID]
	if !ok {
		return nil, fmt.Errorf("get event by message %s: %w", messageID, domain.ErrEventNotFound)
	}
	return copyEvent(m.events[id].Event), nil
}

// ResolveEventReview clears the flag and backfills job and note when given.
func (m *Store) ResolveEventReview(_ context.Context, eventID, jobID, note string) (*domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[eventID]
	if !ok {
		return nil, fmt.Errorf("resolve review %s: %w", eventID, domain.ErrEventNotFound)
	}
	e.NeedsReview = false
	if jobID != "" {
		e.JobID = jobID
	}
	if note != "" {
		e.ReviewNote = note
	}
	return copyEvent(e.Event), nil
}

// ListNeedsReview returns flagged events, newest first.
func (m *Store) ListNeedsReview(_ context.Context, limit int) ([]domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := m.filterEvents(func(e *storedEvent) bool { return e.NeedsReview })
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.seq > b.seq
	})
	return collectEvents(matched, limit), nil
}

// ListJobEvents returns a job's events, oldest first.
func (m *Store) ListJobEvents(_ context.Context, jobID string) ([]domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := m.filterEvents(func(e *storedEvent) bool { return e.JobID == jobID })
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.seq < b.seq
	})
	return collectEvents(matched, 0), nil
}

func (m *Store) filterEvents(keep func(*storedEvent) bool) []*storedEvent {
	var out []*storedEvent
	for _, e := range m.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func collectEvents(events []*storedEvent, limit int) []domain.Event {
	out := []domain.Event{}
	for _, e := range events {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, *copyEvent(e.Event))
	}
	return out
}

func copyThread(t domain.Thread) *domain.Thread {
	cp := t
	if t.LastMessageAt != nil {
		lm := *t.LastMessageAt
		cp.LastMessageAt = &lm
	}
	return &cp
}

func copyEvent(e domain.Event) *domain.Event {
	cp := e
	if e.Signals != nil {
		cp.Signals = append([]string{}, e.Signals...)
	}
	if e.Links != nil {
		cp.Links = append([]string{}, e.Links...)
	}
	return &cp
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// PutJob inserts or replaces a job.
func (m *Store) PutJob(j domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if j.Status == "" {
		j.Status = domain.JobStatusActive
	}
	if j.WorkflowStage == "" {
		j.WorkflowStage = domain.StageNewJob
	}
	if j.Version == 0 {
		j.Version = 1
	}
	m.jobs[j.ID] = &j
}

// PutPurchaseOrder appends a purchase order to its job.
func (m *Store) PutPurchaseOrder(po domain.PurchaseOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos[po.JobID] = append(m.pos[po.JobID], po)
}

// PutComponent appends a component to its job.
func (m *Store) PutComponent(c domain.Component) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comps[c.JobID] = append(m.comps[c.JobID], c)
}

// PutProfitSplit sets a job's profit split.
func (m *Store) PutProfitSplit(p domain.ProfitSplit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.splits[p.JobID] = p
}

// GetJob retrieves a job.
func (m *Store) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("get job %s: %w", jobID, domain.ErrJobNotFound)
	}
	cp := *j
	return &cp, nil
}

// FindJobsByPO returns jobs with the customer PO created since, newest first.
func (m *Store) FindJobsByPO(_ context.Context, po string, since time.Time) ([]domain.JobCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.JobCandidate{}
	for _, j := range m.jobs {
		if j.CustomerPONumber == "" || !strings.EqualFold(j.CustomerPONumber, po) {
			continue
		}
		if j.CreatedAt.Before(since) {
			continue
		}
		out = append(out, domain.JobCandidate{
			ID:            j.ID,
			JobNumber:     j.JobNumber,
			PONumber:      j.CustomerPONumber,
			CustomerEmail: j.CustomerEmail,
			CreatedAt:     j.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateJobStage compare-and-sets the workflow stage.
func (m *Store) UpdateJobStage(_ context.Context, jobID string, from, to domain.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("update job stage %s: %w", jobID, domain.ErrJobNotFound)
	}
	if j.WorkflowStage != from {
		return fmt.Errorf("update job stage %s from %s: %w", jobID, from, domain.ErrStageConflict)
	}
	j.WorkflowStage = to
	j.Version++
	return nil
}

// LoadSnapshot returns the job with its cost records.
func (m *Store) LoadSnapshot(_ context.Context, jobID string) (*jobs.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("load snapshot %s: %w", jobID, domain.ErrJobNotFound)
	}
	snap := &jobs.Snapshot{
		Job:            *j,
		PurchaseOrders: append([]domain.PurchaseOrder{}, m.pos[jobID]...),
		Components:     append([]domain.Component{}, m.comps[jobID]...),
	}
	if split, ok := m.splits[jobID]; ok {
		snap.Split = &split
	}
	return snap, nil
}

// RecentJobIDs returns the newest job ids.
func (m *Store) RecentJobIDs(_ context.Context, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*domain.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		all = append(all, j)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	ids := []string{}
	for _, j := range all {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, j.ID)
	}
	return ids, nil
}
