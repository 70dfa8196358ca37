package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
	"github.com/pkordes/dreamtrip/backend/internal/itinerary"
	"github.com/pkordes/dreamtrip/backend/internal/repo"
	"github.com/pkordes/dreamtrip/backend/internal/triplock"
)

const instrumentation = "github.com/pkordes/dreamtrip/backend/internal/service"

// State is the reconciler's phase for one trip.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateCommitting State = "committing"
	StateRejected   State = "rejected"
)

// Publisher receives every committed snapshot.
type Publisher interface {
	Publish(ctx context.Context, trip domain.Trip, v domain.ItineraryVersion)
}

// DefaultCommitTimeout bounds how long a submission may wait for the trip
// lock plus its validation and commit.
const DefaultCommitTimeout = 15 * time.Second

// Reconciler applies edit proposals to trips, one at a time per trip.
//
// A submission detaches from the caller's cancellation: once the reconciler
// has accepted a proposal it either commits it or rejects it, whether or not
// anyone is still waiting for the answer.
type Reconciler struct {
	trips     repo.TripRepo
	versions  repo.ItineraryRepo
	locks     triplock.Locker
	heads     *Heads
	publisher Publisher
	logger    *slog.Logger
	timeout   time.Duration

	tracer    trace.Tracer
	commits   metric.Int64Counter
	rejects   metric.Int64Counter
	durations metric.Float64Histogram

	mu     sync.Mutex
	states map[uuid.UUID]State
}

// ReconcilerOption customises a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithPublisher registers p to receive committed snapshots.
func WithPublisher(p Publisher) ReconcilerOption {
	return func(r *Reconciler) { r.publisher = p }
}

// WithCommitTimeout overrides DefaultCommitTimeout.
func WithCommitTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithTelemetry replaces the global tracer and meter providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) ReconcilerOption {
	return func(r *Reconciler) {
		r.instrument(tp.Tracer(instrumentation), mp.Meter(instrumentation))
	}
}

// NewReconciler constructs a Reconciler. locks serializes work per trip;
// heads receives every committed snapshot.
func NewReconciler(trips repo.TripRepo, versions repo.ItineraryRepo, locks triplock.Locker, heads *Heads, logger *slog.Logger, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		trips:    trips,
		versions: versions,
		locks:    locks,
		heads:    heads,
		logger:   logger,
		timeout:  DefaultCommitTimeout,
		states:   map[uuid.UUID]State{},
	}
	r.instrument(otel.Tracer(instrumentation), otel.Meter(instrumentation))
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) instrument(tracer trace.Tracer, meter metric.Meter) {
	r.tracer = tracer
	r.commits, _ = meter.Int64Counter("dreamtrip.reconciler.commits",
		metric.WithDescription("Itinerary versions committed"))
	r.rejects, _ = meter.Int64Counter("dreamtrip.reconciler.rejections",
		metric.WithDescription("Edit proposals rejected, by conflict code"))
	r.durations, _ = meter.Float64Histogram("dreamtrip.reconciler.duration",
		metric.WithDescription("Time from lock acquisition to commit or rejection"),
		metric.WithUnit("s"))
}

// State returns the phase the reconciler is in for tripID.
func (r *Reconciler) State(tripID uuid.UUID) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[tripID]; ok {
		return s
	}
	return StateIdle
}

func (r *Reconciler) transition(tripID uuid.UUID, to State) {
	r.mu.Lock()
	from := r.states[tripID]
	if to == StateIdle {
		delete(r.states, tripID)
	} else {
		r.states[tripID] = to
	}
	r.mu.Unlock()
	r.logger.Debug("reconciler transition", "trip_id", tripID, "from", string(orIdle(from)), "to", string(to))
}

func orIdle(s State) State {
	if s == "" {
		return StateIdle
	}
	return s
}

// Submit validates p against tripID's current version and commits the result.
// A proposal whose BaseVersion is not the current version is rejected with a
// StaleVersion conflict, so a proposal can commit at most once.
//
// Rejections are returned as errors wrapping *domain.ConflictError.
func (r *Reconciler) Submit(ctx context.Context, tripID uuid.UUID, p domain.EditProposal) (Snapshot, error) {
	snap, err := r.SubmitBatch(ctx, tripID, p.BaseVersion, []domain.EditProposal{p})
	if err != nil {
		return Snapshot{}, fmt.Errorf("service.Reconciler.Submit: %w", err)
	}
	return snap, nil
}

// SubmitBatch commits several proposals derived against base as one version.
func (r *Reconciler) SubmitBatch(ctx context.Context, tripID uuid.UUID, base int, proposals []domain.EditProposal) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	ctx, span := r.tracer.Start(ctx, "Reconciler.SubmitBatch", trace.WithAttributes(
		attribute.String("trip.id", tripID.String()),
		attribute.Int("itinerary.base_version", base),
		attribute.Int("proposals", len(proposals)),
	))
	defer span.End()

	unlock, err := r.locks.Lock(ctx, tripID.String())
	if err != nil {
		span.SetStatus(codes.Error, "lock")
		return Snapshot{}, fmt.Errorf("service.Reconciler.SubmitBatch: %w: %w", domain.ErrPersistence, err)
	}
	defer unlock()

	start := time.Now()
	defer func() {
		r.durations.Record(ctx, time.Since(start).Seconds())
	}()

	r.transition(tripID, StateValidating)
	next, err := r.validate(ctx, tripID, base, proposals)
	if err != nil {
		if ce, ok := domain.AsConflict(err); ok {
			r.reject(ctx, span, tripID, ce)
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "validate")
			r.transition(tripID, StateIdle)
		}
		return Snapshot{}, fmt.Errorf("service.Reconciler.SubmitBatch: %w", err)
	}

	r.transition(tripID, StateCommitting)
	trip, v, err := r.versions.Commit(ctx, next.Trip, base, next.Version)
	if err != nil {
		if ce, ok := domain.AsConflict(err); ok {
			r.reject(ctx, span, tripID, ce)
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "commit")
			r.transition(tripID, StateIdle)
			r.logger.Error("itinerary commit failed", "trip_id", tripID, "base_version", base, "error", err)
		}
		return Snapshot{}, fmt.Errorf("service.Reconciler.SubmitBatch: %w", err)
	}

	snap := Snapshot{Trip: trip, Version: v}
	r.heads.Put(snap)
	if r.publisher != nil {
		r.publisher.Publish(ctx, trip, v)
	}
	r.commits.Add(ctx, 1, metric.WithAttributes(attribute.String("proposal.kind", string(v.ProposalKind))))
	span.SetAttributes(attribute.Int("itinerary.version", v.Version))
	r.transition(tripID, StateIdle)

	r.logger.Info("itinerary committed",
		"trip_id", tripID,
		"version", v.Version,
		"kind", string(v.ProposalKind),
		"total_cost", v.TotalCost,
		"over_budget", v.OverBudget,
	)
	return snap, nil
}

// validate reads the trip fresh under the lock and applies proposals to it.
func (r *Reconciler) validate(ctx context.Context, tripID uuid.UUID, base int, proposals []domain.EditProposal) (itinerary.Result, error) {
	trip, err := r.trips.GetByID(ctx, tripID)
	if errors.Is(err, domain.ErrNotFound) {
		return itinerary.Result{}, domain.Conflict(domain.ConflictNotFound, "trip %s does not exist", tripID)
	}
	if err != nil {
		return itinerary.Result{}, err
	}
	if trip.CurrentVersion != base {
		ce := domain.Conflict(domain.ConflictStaleVersion,
			"itinerary changed: proposal is based on version %d, current version is %d", base, trip.CurrentVersion)
		ce.CurrentVersion = trip.CurrentVersion
		return itinerary.Result{}, ce
	}
	for _, p := range proposals {
		if p.BaseVersion != base {
			ce := domain.Conflict(domain.ConflictStaleVersion,
				"itinerary changed: proposal is based on version %d, current version is %d", p.BaseVersion, base)
			ce.CurrentVersion = base
			return itinerary.Result{}, ce
		}
	}

	current, err := r.versions.Current(ctx, tripID)
	if err != nil {
		return itinerary.Result{}, err
	}

	res, err := itinerary.ApplyAll(trip, current, proposals)
	if ce, ok := domain.AsConflict(err); ok {
		ce.CurrentVersion = current.Version
	}
	return res, err
}

func (r *Reconciler) reject(ctx context.Context, span trace.Span, tripID uuid.UUID, ce *domain.ConflictError) {
	r.transition(tripID, StateRejected)
	r.rejects.Add(ctx, 1, metric.WithAttributes(attribute.String("conflict.code", string(ce.Code))))
	span.SetAttributes(attribute.String("conflict.code", string(ce.Code)))
	r.logger.Info("edit rejected", "trip_id", tripID, "code", string(ce.Code), "reason", ce.Message)
	r.transition(tripID, StateIdle)
}
