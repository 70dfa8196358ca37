package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
)

// ItineraryRepo persists the append-only version history of each trip.
type ItineraryRepo interface {
	// Current returns the version the trip's current_version points at.
	Current(ctx context.Context, tripID uuid.UUID) (domain.ItineraryVersion, error)

	// GetVersion returns one historical version.
	// Returns domain.ErrNotFound if the trip has no such version.
	GetVersion(ctx context.Context, tripID uuid.UUID, version int) (domain.ItineraryVersion, error)

	// ListVersions returns the version history, newest first.
	ListVersions(ctx context.Context, tripID uuid.UUID) ([]domain.VersionSummary, error)

	// Commit writes v and moves the trip's pointer from base to v.Version in
	// a single transaction, storing trip's mutable fields alongside. If the
	// trip is no longer at base the transaction is rolled back and a
	// StaleVersion conflict is returned.
	Commit(ctx context.Context, trip domain.Trip, base int, v domain.ItineraryVersion) (domain.Trip, domain.ItineraryVersion, error)
}

type pgItineraryRepo struct {
	db db
}

// NewItineraryRepo constructs an ItineraryRepo backed by the provided db connection.
func NewItineraryRepo(db db) ItineraryRepo {
	return &pgItineraryRepo{db: db}
}

const versionColumns = `trip_id, version, days, accommodations, transportation, total_cost,
	over_budget, proposal_id, proposal_kind, summary, created_at`

func (r *pgItineraryRepo) Current(ctx context.Context, tripID uuid.UUID) (domain.ItineraryVersion, error) {
	const q = `
		SELECT v.trip_id, v.version, v.days, v.accommodations, v.transportation, v.total_cost,
		       v.over_budget, v.proposal_id, v.proposal_kind, v.summary, v.created_at
		FROM itinerary_versions v
		JOIN trips t ON t.id = v.trip_id AND t.current_version = v.version
		WHERE v.trip_id = @trip_id`

	v, err := scanVersion(r.db.QueryRow(ctx, q, pgx.NamedArgs{"trip_id": tripID}))
	if err != nil {
		return domain.ItineraryVersion{}, persistence("repo.ItineraryRepo.Current", err)
	}
	return v, nil
}

func (r *pgItineraryRepo) GetVersion(ctx context.Context, tripID uuid.UUID, version int) (domain.ItineraryVersion, error) {
	q := `SELECT ` + versionColumns + `
		FROM itinerary_versions
		WHERE trip_id = @trip_id AND version = @version`

	v, err := scanVersion(r.db.QueryRow(ctx, q, pgx.NamedArgs{"trip_id": tripID, "version": version}))
	if err != nil {
		return domain.ItineraryVersion{}, persistence("repo.ItineraryRepo.GetVersion", err)
	}
	return v, nil
}

func (r *pgItineraryRepo) ListVersions(ctx context.Context, tripID uuid.UUID) ([]domain.VersionSummary, error) {
	const q = `
		SELECT version, total_cost, over_budget, proposal_kind, summary, created_at
		FROM itinerary_versions
		WHERE trip_id = @trip_id
		ORDER BY version DESC`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"trip_id": tripID})
	if err != nil {
		return nil, persistence("repo.ItineraryRepo.ListVersions", err)
	}
	defer rows.Close()

	out := []domain.VersionSummary{}
	for rows.Next() {
		var (
			s    domain.VersionSummary
			kind string
		)
		if err := rows.Scan(&s.Version, &s.TotalCost, &s.OverBudget, &kind, &s.Summary, &s.CreatedAt); err != nil {
			return nil, persistence("repo.ItineraryRepo.ListVersions: scan", err)
		}
		s.ProposalKind = domain.ProposalKind(kind)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("repo.ItineraryRepo.ListVersions: rows", err)
	}
	return out, nil
}

// Commit is a compare-and-swap on trips.current_version followed by the
// version insert, inside one transaction.
func (r *pgItineraryRepo) Commit(ctx context.Context, trip domain.Trip, base int, v domain.ItineraryVersion) (domain.Trip, domain.ItineraryVersion, error) {
	prefs, err := json.Marshal(trip.Preferences)
	if err != nil {
		return domain.Trip{}, domain.ItineraryVersion{}, fmt.Errorf("repo.ItineraryRepo.Commit: marshal preferences: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Trip{}, domain.ItineraryVersion{}, persistence("repo.ItineraryRepo.Commit: begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := `
		UPDATE trips
		SET destination     = @destination,
		    start_date      = @start_date,
		    end_date        = @end_date,
		    budget          = @budget,
		    mood            = @mood,
		    travelers       = @travelers,
		    preferences     = @preferences,
		    status          = @status,
		    current_version = @version,
		    updated_at      = now()
		WHERE id = @id AND current_version = @base
		RETURNING ` + tripColumns

	updated, err := scanTrip(tx.QueryRow(ctx, q, pgx.NamedArgs{
		"id":          trip.ID,
		"base":        base,
		"version":     v.Version,
		"destination": trip.Destination,
		"start_date":  trip.StartDate,
		"end_date":    trip.EndDate,
		"budget":      trip.Budget,
		"mood":        trip.Mood,
		"travelers":   trip.Travelers,
		"preferences": string(prefs),
		"status":      string(trip.Status),
	}))
	if errors.Is(err, domain.ErrNotFound) {
		// Either the trip is gone or someone else moved the pointer.
		var current int
		err = tx.QueryRow(ctx, `SELECT current_version FROM trips WHERE id = @id`,
			pgx.NamedArgs{"id": trip.ID}).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trip{}, domain.ItineraryVersion{}, fmt.Errorf("repo.ItineraryRepo.Commit: %w", domain.ErrNotFound)
		}
		if err != nil {
			return domain.Trip{}, domain.ItineraryVersion{}, persistence("repo.ItineraryRepo.Commit: read version", err)
		}
		ce := domain.Conflict(domain.ConflictStaleVersion, "itinerary changed: base version %d, current version %d", base, current)
		ce.CurrentVersion = current
		return domain.Trip{}, domain.ItineraryVersion{}, fmt.Errorf("repo.ItineraryRepo.Commit: %w", ce)
	}
	if err != nil {
		return domain.Trip{}, domain.ItineraryVersion{}, persistence("repo.ItineraryRepo.Commit: move pointer", err)
	}

	v.TripID = updated.ID
	stored, err := insertVersion(ctx, tx, v)
	if err != nil {
		return domain.Trip{}, domain.ItineraryVersion{}, persistence("repo.ItineraryRepo.Commit: insert version", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Trip{}, domain.ItineraryVersion{}, persistence("repo.ItineraryRepo.Commit: commit", err)
	}
	return updated, stored, nil
}

// insertVersion writes one version row and returns it with created_at set.
func insertVersion(ctx context.Context, tx pgx.Tx, v domain.ItineraryVersion) (domain.ItineraryVersion, error) {
	days, stays, legs, err := encodePlan(v.Plan)
	if err != nil {
		return domain.ItineraryVersion{}, err
	}

	const q = `
		INSERT INTO itinerary_versions (trip_id, version, days, accommodations, transportation,
		                                total_cost, over_budget, proposal_id, proposal_kind, summary)
		VALUES (@trip_id, @version, @days, @accommodations, @transportation,
		        @total_cost, @over_budget, @proposal_id, @proposal_kind, @summary)
		RETURNING created_at`

	err = tx.QueryRow(ctx, q, pgx.NamedArgs{
		"trip_id":        v.TripID,
		"version":        v.Version,
		"days":           days,
		"accommodations": stays,
		"transportation": legs,
		"total_cost":     v.TotalCost,
		"over_budget":    v.OverBudget,
		"proposal_id":    v.ProposalID, // nil becomes NULL
		"proposal_kind":  string(v.ProposalKind),
		"summary":        v.Summary,
	}).Scan(&v.CreatedAt)
	if err != nil {
		return domain.ItineraryVersion{}, err
	}
	return v, nil
}

func encodePlan(p domain.Plan) (days, stays, legs string, err error) {
	if p.Days == nil {
		p.Days = []domain.DayPlan{}
	}
	if p.Accommodations == nil {
		p.Accommodations = []domain.Accommodation{}
	}
	if p.Transportation == nil {
		p.Transportation = []domain.TransportLeg{}
	}
	var b []byte
	if b, err = json.Marshal(p.Days); err != nil {
		return "", "", "", fmt.Errorf("encode days: %w", err)
	}
	days = string(b)
	if b, err = json.Marshal(p.Accommodations); err != nil {
		return "", "", "", fmt.Errorf("encode accommodations: %w", err)
	}
	stays = string(b)
	if b, err = json.Marshal(p.Transportation); err != nil {
		return "", "", "", fmt.Errorf("encode transportation: %w", err)
	}
	legs = string(b)
	return days, stays, legs, nil
}

func scanVersion(s scanner) (domain.ItineraryVersion, error) {
	var (
		v                 domain.ItineraryVersion
		days, stays, legs []byte
		proposalID        pgtype.UUID
		kind              string
	)
	err := s.Scan(&v.TripID, &v.Version, &days, &stays, &legs, &v.TotalCost,
		&v.OverBudget, &proposalID, &kind, &v.Summary, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ItineraryVersion{}, domain.ErrNotFound
		}
		return domain.ItineraryVersion{}, err
	}

	v.ProposalKind = domain.ProposalKind(kind)
	if proposalID.Valid {
		id := uuid.UUID(proposalID.Bytes)
		v.ProposalID = &id
	}
	if err := json.Unmarshal(days, &v.Plan.Days); err != nil {
		return domain.ItineraryVersion{}, fmt.Errorf("decode days: %w", err)
	}
	if err := json.Unmarshal(stays, &v.Plan.Accommodations); err != nil {
		return domain.ItineraryVersion{}, fmt.Errorf("decode accommodations: %w", err)
	}
	if err := json.Unmarshal(legs, &v.Plan.Transportation); err != nil {
		return domain.ItineraryVersion{}, fmt.Errorf("decode transportation: %w", err)
	}
	return v, nil
}
