package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
	"github.com/pkordes/dreamtrip/backend/internal/repo"
)

// CostEstimator prices an activity the traveller did not price.
type CostEstimator interface {
	Estimate(ctx context.Context, trip domain.Trip, d domain.ActivityDraft) (float64, error)
}

// ProposalGenerator builds a fresh plan for a regenerate_itinerary proposal.
type ProposalGenerator interface {
	Generate(ctx context.Context, trip domain.Trip, current domain.ItineraryVersion) (domain.Plan, error)
}

// ChatRequest is one inbound chat message. A nil SessionID starts a new
// session; TripID binds a new session to a trip and must match an existing
// session's binding.
type ChatRequest struct {
	SessionID *uuid.UUID
	TripID    *uuid.UUID
	UserID    string
	Message   string
}

// ChatResult is the coordinator's answer to a chat message.
// Itinerary is set only when an edit was committed and is the committed
// version. Conflict is set when the edit was rejected.
type ChatResult struct {
	SessionID   uuid.UUID
	Reply       string
	Suggestions []string
	Itinerary   *Snapshot
	Conflict    *domain.ConflictError
	ProposalID  *uuid.UUID
	Degraded    bool
	// Message is the assistant message as logged in the session.
	Message domain.Message
}

// CreateTripInput carries the fields of a new trip.
// Generate asks for an initial itinerary on top of the empty version 0.
type CreateTripInput struct {
	OwnerID     string
	Destination string
	StartDate   time.Time
	EndDate     time.Time
	Budget      float64
	Mood        string
	Travelers   int
	Preferences domain.Preferences
	Generate    bool
}

// Coordinator ties chat sessions to trips: it runs each message through the
// conversation service, hands derived proposals to the reconciler, and
// records the outcome in the session log.
type Coordinator struct {
	trips     repo.TripRepo
	versions  repo.ItineraryRepo
	conv      *ConversationService
	rec       *Reconciler
	heads     *Heads
	estimator CostEstimator
	generator ProposalGenerator
	logger    *slog.Logger
	printer   *message.Printer
}

// NewCoordinator constructs a Coordinator. estimator and generator may be nil,
// in which case unpriced activities and regenerate requests are rejected.
func NewCoordinator(
	trips repo.TripRepo,
	versions repo.ItineraryRepo,
	conv *ConversationService,
	rec *Reconciler,
	heads *Heads,
	estimator CostEstimator,
	generator ProposalGenerator,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		trips:     trips,
		versions:  versions,
		conv:      conv,
		rec:       rec,
		heads:     heads,
		estimator: estimator,
		generator: generator,
		logger:    logger,
		printer:   message.NewPrinter(language.English),
	}
}

// CreateTrip validates in and persists a trip with an empty version 0.
func (c *Coordinator) CreateTrip(ctx context.Context, in CreateTripInput) (Snapshot, error) {
	trip, err := newTrip(in)
	if err != nil {
		return Snapshot{}, err
	}

	v0 := domain.ItineraryVersion{
		TripID:       trip.ID,
		Version:      0,
		Plan:         domain.Plan{Days: []domain.DayPlan{}, Accommodations: []domain.Accommodation{}, Transportation: []domain.TransportLeg{}},
		ProposalKind: domain.KindCreate,
		Summary:      "trip created",
	}
	created, err := c.trips.Create(ctx, trip, v0)
	if err != nil {
		return Snapshot{}, fmt.Errorf("service.Coordinator.CreateTrip: %w", err)
	}
	// Both rows are written in one transaction, so they share now().
	v0.CreatedAt = created.CreatedAt
	snap := Snapshot{Trip: created, Version: v0}
	c.heads.Put(snap)
	c.logger.Info("trip created", "trip_id", created.ID, "destination", created.Destination)

	if !in.Generate || c.generator == nil {
		return snap, nil
	}

	plan, err := c.generator.Generate(ctx, created, v0)
	if err != nil {
		c.logger.Warn("initial itinerary generation failed", "trip_id", created.ID, "error", err)
		return snap, nil
	}
	generated, err := c.rec.Submit(ctx, created.ID, domain.EditProposal{
		ID:          uuid.New(),
		Kind:        domain.KindRegenerateItinerary,
		BaseVersion: 0,
		Regenerate:  &plan,
	})
	if err != nil {
		c.logger.Warn("initial itinerary rejected", "trip_id", created.ID, "error", err)
		return snap, nil
	}
	return generated, nil
}

func newTrip(in CreateTripInput) (domain.Trip, error) {
	in.Destination = strings.TrimSpace(in.Destination)
	switch {
	case in.Destination == "":
		return domain.Trip{}, fmt.Errorf("%w: destination is required", domain.ErrValidation)
	case in.StartDate.IsZero() || in.EndDate.IsZero():
		return domain.Trip{}, fmt.Errorf("%w: start_date and end_date are required", domain.ErrValidation)
	case domain.DateOf(in.EndDate).Before(domain.DateOf(in.StartDate)):
		return domain.Trip{}, fmt.Errorf("%w: end_date must not be before start_date", domain.ErrValidation)
	case in.Budget <= 0:
		return domain.Trip{}, fmt.Errorf("%w: budget must be positive", domain.ErrValidation)
	case in.Travelers < 0:
		return domain.Trip{}, fmt.Errorf("%w: travelers must be at least 1", domain.ErrValidation)
	}
	if in.Travelers == 0 {
		in.Travelers = 1
	}
	return domain.Trip{
		ID:          uuid.New(),
		OwnerID:     in.OwnerID,
		Destination: in.Destination,
		StartDate:   domain.DateOf(in.StartDate),
		EndDate:     domain.DateOf(in.EndDate),
		Budget:      in.Budget,
		Mood:        strings.TrimSpace(in.Mood),
		Travelers:   in.Travelers,
		Preferences: in.Preferences,
		Status:      domain.StatusPlanning,
	}, nil
}

// GetItinerary returns the trip's current snapshot.
func (c *Coordinator) GetItinerary(ctx context.Context, tripID uuid.UUID) (Snapshot, error) {
	if snap, ok := c.heads.Get(tripID); ok {
		return snap, nil
	}

	// The trip row and the version row are read separately; a commit landing
	// in between shows up as a pointer mismatch, so read again.
	for attempt := 0; attempt < 3; attempt++ {
		trip, err := c.trips.GetByID(ctx, tripID)
		if err != nil {
			return Snapshot{}, fmt.Errorf("service.Coordinator.GetItinerary: %w", err)
		}
		v, err := c.versions.Current(ctx, tripID)
		if err != nil {
			return Snapshot{}, fmt.Errorf("service.Coordinator.GetItinerary: %w", err)
		}
		if v.Version == trip.CurrentVersion {
			snap := Snapshot{Trip: trip, Version: v}
			c.heads.Put(snap)
			return snap, nil
		}
	}
	return Snapshot{}, fmt.Errorf("service.Coordinator.GetItinerary: %w: trip %s is changing too fast to read", domain.ErrPersistence, tripID)
}

// Session returns a chat session with its full log.
func (c *Coordinator) Session(ctx context.Context, id uuid.UUID) (domain.ChatSession, error) {
	return c.conv.Session(ctx, id)
}

// SubmitMessage appends req's message to its session, derives at most one
// edit proposal from it, and reconciles that proposal against the trip.
//
// Rejections are not errors: they come back in ChatResult.Conflict, and the
// reply quotes the reason. Once the user message is logged the rest runs to
// completion even if ctx is cancelled.
func (c *Coordinator) SubmitMessage(ctx context.Context, req ChatRequest) (ChatResult, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return ChatResult{}, fmt.Errorf("%w: message is required", domain.ErrValidation)
	}

	session, err := c.resolveSession(ctx, req)
	if err != nil {
		return ChatResult{}, fmt.Errorf("service.Coordinator.SubmitMessage: %w", err)
	}

	var snap *Snapshot
	if session.TripID != nil {
		s, err := c.GetItinerary(ctx, *session.TripID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// The trip was deleted; the session lives on unbound.
		case err != nil:
			return ChatResult{}, fmt.Errorf("service.Coordinator.SubmitMessage: %w", err)
		default:
			snap = &s
		}
	}

	if _, err := c.conv.Append(ctx, &session, domain.Message{Role: domain.RoleUser, Text: text}); err != nil {
		return ChatResult{}, fmt.Errorf("service.Coordinator.SubmitMessage: %w", err)
	}
	ctx = context.WithoutCancel(ctx)

	interp, degraded := c.conv.DeriveProposal(ctx, session, snap)
	res := ChatResult{
		SessionID:   session.ID,
		Reply:       interp.Reply,
		Suggestions: interp.Suggestions,
		Degraded:    degraded,
	}

	if interp.Proposal != nil {
		if err := c.reconcile(ctx, snap, *interp.Proposal, &res); err != nil {
			return ChatResult{}, fmt.Errorf("service.Coordinator.SubmitMessage: %w", err)
		}
	}

	logged, err := c.conv.Append(ctx, &session, domain.Message{
		Role:       domain.RoleAssistant,
		Text:       res.Reply,
		ProposalID: res.ProposalID,
	})
	if err != nil {
		return ChatResult{}, fmt.Errorf("service.Coordinator.SubmitMessage: %w", err)
	}
	res.Message = logged
	return res, nil
}

// resolveSession loads the session named by req or starts one. A client may
// choose the ID of a new session; when two first messages race on that ID the
// loser of the insert continues in the winner's session.
func (c *Coordinator) resolveSession(ctx context.Context, req ChatRequest) (domain.ChatSession, error) {
	chosen := req.SessionID != nil && *req.SessionID != uuid.Nil
	if chosen {
		s, err := c.existingSession(ctx, *req.SessionID, req.TripID)
		if !errors.Is(err, domain.ErrNotFound) {
			return s, err
		}
	}

	if req.TripID != nil {
		if _, err := c.trips.GetByID(ctx, *req.TripID); err != nil {
			return domain.ChatSession{}, err
		}
	}
	id := uuid.Nil
	if req.SessionID != nil {
		id = *req.SessionID
	}
	s, err := c.conv.Start(ctx, id, req.UserID, req.TripID)
	if chosen && errors.Is(err, domain.ErrAlreadyExists) {
		return c.existingSession(ctx, id, req.TripID)
	}
	return s, err
}

// existingSession loads session id and checks it is bound to tripID when the
// request names a trip.
func (c *Coordinator) existingSession(ctx context.Context, id uuid.UUID, tripID *uuid.UUID) (domain.ChatSession, error) {
	s, err := c.conv.Session(ctx, id)
	if err != nil {
		return domain.ChatSession{}, err
	}
	if tripID != nil && (s.TripID == nil || *s.TripID != *tripID) {
		return domain.ChatSession{}, fmt.Errorf("%w: session %s belongs to a different trip", domain.ErrValidation, s.ID)
	}
	return s, nil
}

// reconcile completes p, submits it, and folds the outcome into res.
// Only storage failures are returned as errors.
func (c *Coordinator) reconcile(ctx context.Context, snap *Snapshot, p domain.EditProposal, res *ChatResult) error {
	p.ID = uuid.New()
	res.ProposalID = &p.ID

	if snap == nil {
		ce := domain.Conflict(domain.ConflictNotFound, "this conversation is not linked to a trip yet; create a trip first")
		res.Conflict = ce
		res.Reply = rejection(ce)
		return nil
	}
	p.BaseVersion = snap.Version.Version

	if err := c.complete(ctx, *snap, &p); err != nil {
		c.logger.Warn("proposal completion failed", "trip_id", snap.Trip.ID, "kind", string(p.Kind), "error", err)
		res.ProposalID = nil
		res.Reply = ClarificationReply
		return nil
	}

	committed, err := c.rec.Submit(ctx, snap.Trip.ID, p)
	if ce, ok := domain.AsConflict(err); ok {
		res.Conflict = ce
		res.Reply = rejection(ce)
		return nil
	}
	if errors.Is(err, domain.ErrValidation) {
		res.Reply = "I couldn't apply that: " + validationReason(err)
		return nil
	}
	if err != nil {
		return err
	}

	res.Itinerary = &committed
	res.Reply = c.committedReply(res.Reply, committed)
	return nil
}

// complete fills what the interpreter may leave out: prices from the
// estimator and the plan of a regeneration from the generator.
func (c *Coordinator) complete(ctx context.Context, snap Snapshot, p *domain.EditProposal) error {
	switch p.Kind {
	case domain.KindAddDayActivity:
		if p.Activity == nil || p.Activity.Cost != nil || c.estimator == nil {
			return nil
		}
		draft := *p.Activity
		cost, err := c.estimator.Estimate(ctx, snap.Trip, draft)
		if err != nil {
			return fmt.Errorf("estimate %q: %w", draft.Name, err)
		}
		draft.Cost = &cost
		p.Activity = &draft
	case domain.KindRegenerateItinerary:
		if p.Regenerate != nil || c.generator == nil {
			return nil
		}
		plan, err := c.generator.Generate(ctx, snap.Trip, snap.Version)
		if err != nil {
			return fmt.Errorf("generate: %w", err)
		}
		p.Regenerate = &plan
	}
	return nil
}

func (c *Coordinator) committedReply(draft string, s Snapshot) string {
	status := c.printer.Sprintf("Itinerary updated to version %d; total cost is now %.2f of your %.2f budget.",
		s.Version.Version, s.Version.TotalCost, s.Trip.Budget)
	if s.Version.OverBudget {
		status += " Heads up: this puts the trip over budget."
	}
	if draft == "" {
		return status
	}
	return draft + " " + status
}

func rejection(ce *domain.ConflictError) string {
	return fmt.Sprintf("I couldn't make that change (%s): %s", ce.Code, ce.Message)
}

// validationReason strips the call-site prefixes from a validation error.
func validationReason(err error) string {
	msg := err.Error()
	marker := domain.ErrValidation.Error() + ": "
	if i := strings.Index(msg, marker); i >= 0 {
		return msg[i+len(marker):]
	}
	return msg
}
