package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eargollo/archiver/internal/metrics"
	"github.com/eargollo/archiver/internal/store"
)

// ErrAlreadyRunning is returned when a batch is started while one is in progress.
var ErrAlreadyRunning = errors.New("an ingestion batch is already in progress")

// ErrUnknownProfile is returned when a batch names a profile that does not exist.
var ErrUnknownProfile = errors.New("unknown profile")

// ErrEmptyBatch is returned when a batch has no paths.
var ErrEmptyBatch = errors.New("no paths to ingest")

// ProfileStore is the slice of the record store a Manager needs.
type ProfileStore interface {
	Inserter
	GetProfile(ctx context.Context, id int64) (store.Profile, error)
}

// Batch holds live information about the running batch.
type Batch struct {
	ID          int64     `json:"id"`
	ProfileID   int64     `json:"profile_id"`
	Total       int       `json:"total"`
	StartedAt   time.Time `json:"started_at"`
	TriggeredBy string    `json:"triggered_by"`
}

// Manager enforces a single-active-batch invariant, since every batch writes
// through the same store connection. It owns one Session that is reset for
// each batch. It is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	store   ProfileStore
	policy  FailurePolicy
	session *Session
	nextID  int64

	active *Batch
	last   *Result
}

// NewManager creates an idle Manager.
func NewManager(s ProfileStore, policy FailurePolicy) *Manager {
	return &Manager{
		store:   s,
		policy:  policy,
		session: NewSession(),
	}
}

// SetPolicy changes the failure policy used by future batches.
func (m *Manager) SetPolicy(p FailurePolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy = p
}

// Start validates the profile and launches an asynchronous batch. It returns
// ErrAlreadyRunning while another batch is in flight.
func (m *Manager) Start(ctx context.Context, profileID int64, paths []string, triggeredBy string) (*Batch, *Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, nil, ErrAlreadyRunning
	}
	if len(paths) == 0 {
		return nil, nil, ErrEmptyBatch
	}
	if _, err := m.store.GetProfile(ctx, profileID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %d", ErrUnknownProfile, profileID)
		}
		return nil, nil, fmt.Errorf("check profile %d: %w", profileID, err)
	}

	m.nextID++
	batch := &Batch{
		ID:          m.nextID,
		ProfileID:   profileID,
		Total:       len(paths),
		StartedAt:   time.Now(),
		TriggeredBy: triggeredBy,
	}
	m.active = batch
	metrics.IngestRunning.Set(1)

	// The worker gets its own copy so callers may reuse their slice.
	own := append([]string(nil), paths...)
	w := &Worker{store: m.store, digest: defaultDigest, policy: m.policy}
	w.startInto(ctx, m.session, profileID, own, func(res Result) {
		m.mu.Lock()
		m.active = nil
		m.last = &res
		m.mu.Unlock()
		metrics.IngestRunning.Set(0)
	})

	snap := *batch
	return &snap, m.session, nil
}

// ActiveBatch returns a snapshot of the running batch, or nil when idle.
func (m *Manager) ActiveBatch() *Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	snap := *m.active
	return &snap
}

// LastResult returns the summary of the most recently finished batch.
func (m *Manager) LastResult() (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Result{}, false
	}
	return *m.last, true
}

// Session returns the session reporting on the current or last batch.
func (m *Manager) Session() *Session {
	return m.session
}
