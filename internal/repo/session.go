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

// SessionRepo persists chat sessions and their ordered message logs.
type SessionRepo interface {
	// Create inserts an empty session. The trip binding cannot change later.
	// Returns domain.ErrAlreadyExists if a session with that ID exists.
	Create(ctx context.Context, s domain.ChatSession) (domain.ChatSession, error)

	// GetByID returns a session with its full message log.
	// Returns domain.ErrNotFound if no session with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.ChatSession, error)

	// Append adds messages to the end of the session's log in one statement.
	// Returns domain.ErrNotFound if the session does not exist.
	Append(ctx context.Context, id uuid.UUID, msgs ...domain.Message) error
}

type pgSessionRepo struct {
	db db
}

// NewSessionRepo constructs a SessionRepo backed by the provided db connection.
func NewSessionRepo(db db) SessionRepo {
	return &pgSessionRepo{db: db}
}

// uniqueViolation is the Postgres SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

const sessionColumns = `id, owner_id, trip_id, messages, created_at, updated_at`

func (r *pgSessionRepo) Create(ctx context.Context, s domain.ChatSession) (domain.ChatSession, error) {
	const q = `
		INSERT INTO chat_sessions (id, owner_id, trip_id)
		VALUES (@id, @owner_id, @trip_id)
		RETURNING ` + sessionColumns

	created, err := scanSession(r.db.QueryRow(ctx, q, pgx.NamedArgs{
		"id":       s.ID,
		"owner_id": s.OwnerID,
		"trip_id":  s.TripID,
	}))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ChatSession{}, fmt.Errorf("repo.SessionRepo.Create: %w", domain.ErrAlreadyExists)
	}
	if err != nil {
		return domain.ChatSession{}, persistence("repo.SessionRepo.Create", err)
	}
	return created, nil
}

func (r *pgSessionRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.ChatSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE id = @id`

	s, err := scanSession(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.ChatSession{}, persistence("repo.SessionRepo.GetByID", err)
	}
	return s, nil
}

// Append concatenates onto the jsonb array, so concurrent appends to one
// session never lose each other's messages.
func (r *pgSessionRepo) Append(ctx context.Context, id uuid.UUID, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("repo.SessionRepo.Append: marshal: %w", err)
	}

	const q = `
		UPDATE chat_sessions
		SET messages = messages || @msgs::jsonb, updated_at = now()
		WHERE id = @id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "msgs": string(b)})
	if err != nil {
		return persistence("repo.SessionRepo.Append", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.SessionRepo.Append: %w", domain.ErrNotFound)
	}
	return nil
}

func scanSession(s scanner) (domain.ChatSession, error) {
	var (
		cs     domain.ChatSession
		tripID pgtype.UUID
		msgs   []byte
	)
	err := s.Scan(&cs.ID, &cs.OwnerID, &tripID, &msgs, &cs.CreatedAt, &cs.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ChatSession{}, domain.ErrNotFound
		}
		return domain.ChatSession{}, err
	}
	if tripID.Valid {
		id := uuid.UUID(tripID.Bytes)
		cs.TripID = &id
	}
	cs.Messages = []domain.Message{}
	if len(msgs) > 0 {
		if err := json.Unmarshal(msgs, &cs.Messages); err != nil {
			return domain.ChatSession{}, fmt.Errorf("decode messages: %w", err)
		}
	}
	return cs, nil
}
