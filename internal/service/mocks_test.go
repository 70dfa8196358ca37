package service_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
	"github.com/pkordes/dreamtrip/backend/internal/repo"
	"github.com/pkordes/dreamtrip/backend/internal/service"
	"github.com/pkordes/dreamtrip/backend/internal/triplock"
)

// ---- in-memory store --------------------------------------------------------

// memStore is a hand-written stand-in for the three Postgres repos. Commit
// has the same compare-and-swap semantics as the SQL version.
type memStore struct {
	mu       sync.Mutex
	trips    map[uuid.UUID]domain.Trip
	versions map[uuid.UUID][]domain.ItineraryVersion
	sessions map[uuid.UUID]domain.ChatSession

	commitErr   error
	commitDelay time.Duration
	commits     int
}

func newMemStore() *memStore {
	return &memStore{
		trips:    map[uuid.UUID]domain.Trip{},
		versions: map[uuid.UUID][]domain.ItineraryVersion{},
		sessions: map[uuid.UUID]domain.ChatSession{},
	}
}

func (m *memStore) current(id uuid.UUID) domain.ItineraryVersion {
	m.mu.Lock()
	defer m.mu.Unlock()
	vs := m.versions[id]
	return vs[m.trips[id].CurrentVersion]
}

func (m *memStore) session(id uuid.UUID) domain.ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

type memTrips struct{ *memStore }

func (m memTrips) Create(_ context.Context, trip domain.Trip, initial domain.ItineraryVersion) (domain.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	trip.CreatedAt, trip.UpdatedAt = now, now
	trip.CurrentVersion = initial.Version
	initial.TripID, initial.CreatedAt = trip.ID, now
	m.trips[trip.ID] = trip
	m.versions[trip.ID] = []domain.ItineraryVersion{initial}
	return trip, nil
}

func (m memTrips) GetByID(_ context.Context, id uuid.UUID) (domain.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return domain.Trip{}, domain.ErrNotFound
	}
	return t, nil
}

func (m memTrips) ListByOwner(_ context.Context, ownerID string, p domain.PaginationParams) ([]domain.Trip, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []domain.Trip
	for _, t := range m.trips {
		if t.OwnerID == ownerID {
			all = append(all, t)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartDate.After(all[j].StartDate) })
	total := int64(len(all))
	lo := min(p.Offset(), len(all))
	hi := min(lo+p.Limit, len(all))
	return all[lo:hi], total, nil
}

func (m memTrips) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trips[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.trips, id)
	delete(m.versions, id)
	return nil
}

type memVersions struct{ *memStore }

func (m memVersions) Current(_ context.Context, tripID uuid.UUID) (domain.ItineraryVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok {
		return domain.ItineraryVersion{}, domain.ErrNotFound
	}
	return m.versions[tripID][t.CurrentVersion], nil
}

func (m memVersions) GetVersion(_ context.Context, tripID uuid.UUID, version int) (domain.ItineraryVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vs := m.versions[tripID]
	if version < 0 || version >= len(vs) {
		return domain.ItineraryVersion{}, domain.ErrNotFound
	}
	return vs[version], nil
}

func (m memVersions) ListVersions(_ context.Context, tripID uuid.UUID) ([]domain.VersionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.VersionSummary{}
	vs := m.versions[tripID]
	for i := len(vs) - 1; i >= 0; i-- {
		out = append(out, vs[i].Summarize())
	}
	return out, nil
}

func (m memVersions) Commit(_ context.Context, trip domain.Trip, base int, v domain.ItineraryVersion) (domain.Trip, domain.ItineraryVersion, error) {
	if m.commitDelay > 0 {
		time.Sleep(m.commitDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.trips[trip.ID]
	if !ok {
		return domain.Trip{}, domain.ItineraryVersion{}, domain.ErrNotFound
	}
	if stored.CurrentVersion != base {
		ce := domain.Conflict(domain.ConflictStaleVersion, "base %d, current %d", base, stored.CurrentVersion)
		ce.CurrentVersion = stored.CurrentVersion
		return domain.Trip{}, domain.ItineraryVersion{}, ce
	}
	if m.commitErr != nil {
		return domain.Trip{}, domain.ItineraryVersion{}, fmt.Errorf("%w: %w", domain.ErrPersistence, m.commitErr)
	}
	trip.CurrentVersion = v.Version
	trip.CreatedAt = stored.CreatedAt
	trip.UpdatedAt = time.Now().UTC()
	v.TripID, v.CreatedAt = trip.ID, trip.UpdatedAt
	m.trips[trip.ID] = trip
	m.versions[trip.ID] = append(m.versions[trip.ID], v)
	m.commits++
	return trip, v, nil
}

type memSessions struct{ *memStore }

func (m memSessions) Create(_ context.Context, s domain.ChatSession) (domain.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return domain.ChatSession{}, domain.ErrAlreadyExists
	}
	s.Messages = []domain.Message{}
	s.CreatedAt = time.Now().UTC()
	m.sessions[s.ID] = s
	return s, nil
}

func (m memSessions) GetByID(_ context.Context, id uuid.UUID) (domain.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return domain.ChatSession{}, domain.ErrNotFound
	}
	s.Messages = append([]domain.Message{}, s.Messages...)
	return s, nil
}

func (m memSessions) Append(_ context.Context, id uuid.UUID, msgs ...domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.Messages = append(s.Messages, msgs...)
	m.sessions[id] = s
	return nil
}

// racingSessions behaves as if another request inserted each new session just
// before this one's insert.
type racingSessions struct{ memSessions }

func (r racingSessions) Create(ctx context.Context, s domain.ChatSession) (domain.ChatSession, error) {
	if _, err := r.memSessions.Create(ctx, s); err != nil {
		return domain.ChatSession{}, err
	}
	return domain.ChatSession{}, fmt.Errorf("repo.SessionRepo.Create: %w", domain.ErrAlreadyExists)
}

// compile-time checks: the in-memory repos must satisfy the repo interfaces.
var (
	_ repo.TripRepo      = memTrips{}
	_ repo.ItineraryRepo = memVersions{}
	_ repo.SessionRepo   = memSessions{}
)

// ---- collaborators ----------------------------------------------------------

// mockInterpreter is a hand-written test double for service.Interpreter.
type mockInterpreter struct {
	interpret func(ctx context.Context, req domain.InterpretRequest) (domain.Interpretation, error)
}

func (m *mockInterpreter) Interpret(ctx context.Context, req domain.InterpretRequest) (domain.Interpretation, error) {
	return m.interpret(ctx, req)
}

// proposing returns an interpreter that always proposes p.
func proposing(p domain.EditProposal) *mockInterpreter {
	return &mockInterpreter{interpret: func(context.Context, domain.InterpretRequest) (domain.Interpretation, error) {
		return domain.Interpretation{Proposal: &p, Reply: "On it."}, nil
	}}
}

type fixedEstimator float64

func (f fixedEstimator) Estimate(context.Context, domain.Trip, domain.ActivityDraft) (float64, error) {
	return float64(f), nil
}

type mockGenerator struct {
	generate func(ctx context.Context, trip domain.Trip, current domain.ItineraryVersion) (domain.Plan, error)
}

func (m *mockGenerator) Generate(ctx context.Context, trip domain.Trip, current domain.ItineraryVersion) (domain.Plan, error) {
	return m.generate(ctx, trip, current)
}

// ---- harness ----------------------------------------------------------------

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	store *memStore
	heads *service.Heads
	locks *triplock.Local
	rec   *service.Reconciler
	conv  *service.ConversationService
	coord *service.Coordinator
	trips *service.TripService
}

type harnessOpts struct {
	interp    service.Interpreter
	timeout   time.Duration
	estimator service.CostEstimator
	generator service.ProposalGenerator
	sessions  func(*memStore) repo.SessionRepo
}

func newHarness(t *testing.T, o harnessOpts) *harness {
	t.Helper()
	store := newMemStore()
	heads := service.NewHeads(0)
	locks := triplock.NewLocal()
	logger := discard()
	if o.interp == nil {
		o.interp = &mockInterpreter{interpret: func(context.Context, domain.InterpretRequest) (domain.Interpretation, error) {
			return domain.Interpretation{Reply: "Noted."}, nil
		}}
	}

	rec := service.NewReconciler(memTrips{store}, memVersions{store}, locks, heads, logger)
	var sessions repo.SessionRepo = memSessions{store}
	if o.sessions != nil {
		sessions = o.sessions(store)
	}
	conv := service.NewConversationService(sessions, o.interp, o.timeout, 0, logger)
	return &harness{
		store: store,
		heads: heads,
		locks: locks,
		rec:   rec,
		conv:  conv,
		coord: service.NewCoordinator(memTrips{store}, memVersions{store}, conv, rec, heads, o.estimator, o.generator, logger),
		trips: service.NewTripService(memTrips{store}, memVersions{store}, rec, heads, locks),
	}
}

func lisbonInput() service.CreateTripInput {
	return service.CreateTripInput{
		OwnerID:     "user-1",
		Destination: "Lisbon",
		StartDate:   june(1),
		EndDate:     june(5),
		Budget:      1000,
	}
}

func (h *harness) lisbon(t *testing.T) domain.Trip {
	t.Helper()
	snap, err := h.coord.CreateTrip(context.Background(), lisbonInput())
	require.NoError(t, err)
	return snap.Trip
}

func june(d int) time.Time {
	return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func addActivity(base int, name string, day int, cost float64) domain.EditProposal {
	return domain.EditProposal{
		ID:          uuid.New(),
		Kind:        domain.KindAddDayActivity,
		BaseVersion: base,
		Activity:    &domain.ActivityDraft{Date: june(day), Name: name, Cost: ptr(cost)},
	}
}
