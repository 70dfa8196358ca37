package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
	"github.com/pkordes/dreamtrip/backend/internal/repo"
)

// Interpreter turns the tail of a conversation into at most one edit proposal
// and a reply draft. Implementations must honour ctx's deadline.
type Interpreter interface {
	Interpret(ctx context.Context, req domain.InterpretRequest) (domain.Interpretation, error)
}

// ClarificationReply is the assistant's answer when the interpreter could not
// produce a usable result.
const ClarificationReply = "Clarification needed: I couldn't work out what to change. " +
	"Could you rephrase, for example \"add a museum visit on June 2 costing 20\"?"

// Default conversation limits.
const (
	DefaultInterpreterTimeout = 4 * time.Second
	DefaultHistoryLimit       = 20
)

// ConversationService owns chat session logs and the boundary to the
// interpreter.
type ConversationService struct {
	sessions repo.SessionRepo
	interp   Interpreter
	timeout  time.Duration
	history  int
	logger   *slog.Logger
	now      func() time.Time
}

// NewConversationService constructs a ConversationService. A zero timeout or
// history falls back to the defaults.
func NewConversationService(sessions repo.SessionRepo, interp Interpreter, timeout time.Duration, history int, logger *slog.Logger) *ConversationService {
	if timeout <= 0 {
		timeout = DefaultInterpreterTimeout
	}
	if history <= 0 {
		history = DefaultHistoryLimit
	}
	return &ConversationService{
		sessions: sessions,
		interp:   interp,
		timeout:  timeout,
		history:  history,
		logger:   logger,
		now:      time.Now,
	}
}

// Start creates an empty session. id may be uuid.Nil to have one generated.
func (s *ConversationService) Start(ctx context.Context, id uuid.UUID, ownerID string, tripID *uuid.UUID) (domain.ChatSession, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}
	cs, err := s.sessions.Create(ctx, domain.ChatSession{ID: id, OwnerID: ownerID, TripID: tripID})
	if err != nil {
		return domain.ChatSession{}, fmt.Errorf("service.ConversationService.Start: %w", err)
	}
	return cs, nil
}

// Session returns a session with its full log.
func (s *ConversationService) Session(ctx context.Context, id uuid.UUID) (domain.ChatSession, error) {
	cs, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return domain.ChatSession{}, fmt.Errorf("service.ConversationService.Session: %w", err)
	}
	return cs, nil
}

// Append adds msg to the end of the session's log and to session itself.
// ID and Timestamp are filled when unset.
func (s *ConversationService) Append(ctx context.Context, session *domain.ChatSession, msg domain.Message) (domain.Message, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now().UTC()
	}
	if err := s.sessions.Append(ctx, session.ID, msg); err != nil {
		return domain.Message{}, fmt.Errorf("service.ConversationService.Append: %w", err)
	}
	session.Messages = append(session.Messages, msg)
	return msg, nil
}

// DeriveProposal asks the interpreter about the tail of session. The call is
// bounded by the service timeout even if the interpreter ignores ctx. Any
// interpreter error, including a timeout, degrades to ClarificationReply with
// no proposal; degraded reports whether that happened.
func (s *ConversationService) DeriveProposal(ctx context.Context, session domain.ChatSession, snap *Snapshot) (out domain.Interpretation, degraded bool) {
	req := domain.InterpretRequest{History: session.Tail(s.history)}
	if snap != nil {
		trip, current := snap.Trip, snap.Version
		req.Trip, req.Current = &trip, &current
	}

	ictx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type answer struct {
		out domain.Interpretation
		err error
	}
	done := make(chan answer, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				done <- answer{err: fmt.Errorf("%w: panic: %v", domain.ErrInterpreterFailure, v)}
			}
		}()
		out, err := s.interp.Interpret(ictx, req)
		done <- answer{out, err}
	}()

	var err error
	select {
	case a := <-done:
		out, err = a.out, a.err
	case <-ictx.Done():
		err = fmt.Errorf("%w: %w", domain.ErrInterpreterTimeout, ictx.Err())
	}
	if err != nil {
		s.logger.Warn("interpreter degraded",
			"session_id", session.ID,
			"timeout", errors.Is(err, domain.ErrInterpreterTimeout),
			"error", err)
		return domain.Interpretation{Reply: ClarificationReply}, true
	}
	if out.Reply == "" && out.Proposal == nil {
		out.Reply = ClarificationReply
	}
	return out, false
}
