// Package repo contains all database access logic for the DreamTrip API.
// Each resource has its own file with an interface and a Postgres implementation.
// No business logic lives here, only SQL and type mapping.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Tx, and
// pgxmock's pool. Accepting this interface instead of *pgxpool.Pool directly
// allows integration tests to pass a transaction that is rolled back after
// each test; Begin on a pgx.Tx opens a savepoint, so multi-statement writes
// still nest inside it.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TripRepo defines the persistence operations for Trips.
// Trip fields change only through ItineraryRepo.Commit, which moves the
// version pointer in the same transaction.
type TripRepo interface {
	// Create inserts a new trip together with its initial itinerary version in
	// one transaction and returns the persisted trip.
	Create(ctx context.Context, trip domain.Trip, initial domain.ItineraryVersion) (domain.Trip, error)

	// GetByID retrieves a single trip by its UUID primary key.
	// Returns domain.ErrNotFound if no trip with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error)

	// ListByOwner returns one page of an owner's trips, newest start date
	// first, plus the owner's total trip count.
	ListByOwner(ctx context.Context, ownerID string, p domain.PaginationParams) ([]domain.Trip, int64, error)

	// Delete removes a trip and, by cascade, its versions.
	// Returns domain.ErrNotFound if it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}

// pgTripRepo is the Postgres implementation of TripRepo.
type pgTripRepo struct {
	db db
}

// NewTripRepo constructs a TripRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewTripRepo(db db) TripRepo {
	return &pgTripRepo{db: db}
}

const tripColumns = `id, owner_id, destination, start_date, end_date, budget, mood,
	travelers, preferences, status, current_version, created_at, updated_at`

// Create inserts the trip and its version-0 row atomically.
func (r *pgTripRepo) Create(ctx context.Context, trip domain.Trip, initial domain.ItineraryVersion) (domain.Trip, error) {
	prefs, err := json.Marshal(trip.Preferences)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.Create: marshal preferences: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Trip{}, persistence("repo.TripRepo.Create: begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `
		INSERT INTO trips (id, owner_id, destination, start_date, end_date, budget, mood,
		                   travelers, preferences, status, current_version)
		VALUES (@id, @owner_id, @destination, @start_date, @end_date, @budget, @mood,
		        @travelers, @preferences, @status, @current_version)
		RETURNING ` + tripColumns

	args := pgx.NamedArgs{
		"id":              trip.ID,
		"owner_id":        trip.OwnerID,
		"destination":     trip.Destination,
		"start_date":      trip.StartDate,
		"end_date":        trip.EndDate,
		"budget":          trip.Budget,
		"mood":            trip.Mood,
		"travelers":       trip.Travelers,
		"preferences":     string(prefs),
		"status":          string(trip.Status),
		"current_version": initial.Version,
	}

	created, err := scanTrip(tx.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Trip{}, persistence("repo.TripRepo.Create", err)
	}

	initial.TripID = created.ID
	if _, err := insertVersion(ctx, tx, initial); err != nil {
		return domain.Trip{}, persistence("repo.TripRepo.Create: initial version", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Trip{}, persistence("repo.TripRepo.Create: commit", err)
	}
	return created, nil
}

// GetByID retrieves a trip by primary key.
func (r *pgTripRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips WHERE id = @id`

	result, err := scanTrip(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Trip{}, persistence("repo.TripRepo.GetByID", err)
	}
	return result, nil
}

// ListByOwner returns one page of trips for ownerID and the total count.
func (r *pgTripRepo) ListByOwner(ctx context.Context, ownerID string, p domain.PaginationParams) ([]domain.Trip, int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM trips WHERE owner_id = @owner_id`,
		pgx.NamedArgs{"owner_id": ownerID}).Scan(&total)
	if err != nil {
		return nil, 0, persistence("repo.TripRepo.ListByOwner: count", err)
	}

	q := `SELECT ` + tripColumns + `
		FROM trips
		WHERE owner_id = @owner_id
		ORDER BY start_date DESC, created_at DESC
		LIMIT @limit OFFSET @offset`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{
		"owner_id": ownerID,
		"limit":    p.Limit,
		"offset":   p.Offset(),
	})
	if err != nil {
		return nil, 0, persistence("repo.TripRepo.ListByOwner", err)
	}
	defer rows.Close()

	trips := []domain.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, 0, persistence("repo.TripRepo.ListByOwner: scan", err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, persistence("repo.TripRepo.ListByOwner: rows", err)
	}

	return trips, total, nil
}

// Delete removes a trip by primary key.
func (r *pgTripRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM trips WHERE id = @id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id})
	if err != nil {
		return persistence("repo.TripRepo.Delete", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.TripRepo.Delete: %w", domain.ErrNotFound)
	}
	return nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing the scan
// helpers to be reused for both QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

// scanTrip maps a single database row into a domain.Trip.
func scanTrip(s scanner) (domain.Trip, error) {
	var (
		t         domain.Trip
		startDate pgtype.Date
		endDate   pgtype.Date
		prefs     []byte
		status    string
	)

	err := s.Scan(&t.ID, &t.OwnerID, &t.Destination, &startDate, &endDate, &t.Budget, &t.Mood,
		&t.Travelers, &prefs, &status, &t.CurrentVersion, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trip{}, domain.ErrNotFound
		}
		return domain.Trip{}, err
	}

	t.StartDate = startDate.Time
	t.EndDate = endDate.Time
	t.Status = domain.TripStatus(status)
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &t.Preferences); err != nil {
			return domain.Trip{}, fmt.Errorf("decode preferences: %w", err)
		}
	}
	return t, nil
}

// persistence wraps a storage failure so callers can tell it apart from
// domain outcomes. ErrNotFound and conflicts pass through unchanged.
func persistence(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, ok := domain.AsConflict(err); ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}
