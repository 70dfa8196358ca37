package handler

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
	"github.com/pkordes/dreamtrip/backend/internal/service"
)

// PlanTripRequest is the body of POST /api/plan-trip.
type PlanTripRequest struct {
	UserID      string             `json:"userId"`
	Destination string             `json:"destination"`
	StartDate   openapi_types.Date `json:"startDate"`
	EndDate     openapi_types.Date `json:"endDate"`
	Budget      float64            `json:"budget"`
	Mood        string             `json:"mood"`
	Travelers   int                `json:"travelers"`
	Preferences domain.Preferences `json:"preferences"`
	// Generate asks for an initial itinerary on top of the empty version 0.
	Generate bool `json:"generate"`
}

// PlanTripResponse is the body of a successful plan-trip call.
type PlanTripResponse struct {
	Success   bool              `json:"success"`
	Trip      TripResponse      `json:"trip"`
	Itinerary ItineraryResponse `json:"itinerary"`
	Message   string            `json:"message"`
}

// UpdateTripRequest is the body of PUT /api/trips/{id}. Every field is
// optional; the present ones are reconciled as one new version.
type UpdateTripRequest struct {
	BaseVersion    *int                `json:"baseVersion,omitempty"`
	StartDate      *openapi_types.Date `json:"startDate,omitempty"`
	EndDate        *openapi_types.Date `json:"endDate,omitempty"`
	Budget         *float64            `json:"budget,omitempty"`
	Mood           *string             `json:"mood,omitempty"`
	Status         *string             `json:"status,omitempty"`
	ForceRecompute bool                `json:"forceRecompute,omitempty"`
}

// TripResponse is the JSON shape of a trip.
type TripResponse struct {
	ID             openapi_types.UUID `json:"id"`
	UserID         string             `json:"userId"`
	Destination    string             `json:"destination"`
	StartDate      openapi_types.Date `json:"startDate"`
	EndDate        openapi_types.Date `json:"endDate"`
	Budget         float64            `json:"budget"`
	Mood           string             `json:"mood"`
	Travelers      int                `json:"travelers"`
	Preferences    domain.Preferences `json:"preferences"`
	Status         string             `json:"status"`
	CurrentVersion int                `json:"currentVersion"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// ItineraryResponse is the JSON shape of one itinerary version.
type ItineraryResponse struct {
	TripID         openapi_types.UUID     `json:"tripId"`
	Version        int                    `json:"version"`
	Days           []domain.DayPlan       `json:"days"`
	Accommodations []domain.Accommodation `json:"accommodations"`
	Transportation []domain.TransportLeg  `json:"transportation"`
	TotalCost      float64                `json:"totalCost"`
	OverBudget     bool                   `json:"overBudget"`
	ProposalID     *openapi_types.UUID    `json:"proposalId,omitempty"`
	ProposalKind   string                 `json:"proposalKind"`
	Summary        string                 `json:"summary,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
}

// SnapshotResponse pairs a trip with its current itinerary.
type SnapshotResponse struct {
	Trip      TripResponse      `json:"trip"`
	Itinerary ItineraryResponse `json:"itinerary"`
}

// VersionSummaryResponse is one entry of the version history.
type VersionSummaryResponse struct {
	Version      int       `json:"version"`
	TotalCost    float64   `json:"totalCost"`
	OverBudget   bool      `json:"overBudget"`
	ProposalKind string    `json:"proposalKind"`
	Summary      string    `json:"summary,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Pagination describes one page of a list.
type Pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

// TripListResponse is the body of GET /api/trips.
type TripListResponse struct {
	Data       []TripResponse `json:"data"`
	Pagination Pagination     `json:"pagination"`
}

// ChatRequestBody is the body of POST /api/chat.
type ChatRequestBody struct {
	Message   string              `json:"message"`
	SessionID *openapi_types.UUID `json:"sessionId,omitempty"`
	TripID    *openapi_types.UUID `json:"tripId,omitempty"`
	UserID    string              `json:"userId"`
}

// ChatMessage is one logged message.
type ChatMessage struct {
	ID         openapi_types.UUID  `json:"id"`
	Role       string              `json:"role"`
	Content    string              `json:"content"`
	Timestamp  time.Time           `json:"timestamp"`
	ProposalID *openapi_types.UUID `json:"proposalId,omitempty"`
}

// ConflictResponse is a rejected edit as reported in a chat reply.
type ConflictResponse struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	CurrentVersion *int   `json:"currentVersion,omitempty"`
}

// ChatResponse is the body of a successful chat call. UpdatedItinerary is
// present only when the message committed a new version.
type ChatResponse struct {
	Success          bool               `json:"success"`
	SessionID        openapi_types.UUID `json:"sessionId"`
	Reply            string             `json:"reply"`
	Message          ChatMessage        `json:"message"`
	Suggestions      []string           `json:"suggestions"`
	UpdatedItinerary *SnapshotResponse  `json:"updatedItinerary,omitempty"`
	Conflict         *ConflictResponse  `json:"conflict,omitempty"`
	Degraded         bool               `json:"degraded,omitempty"`
}

// ChatSessionResponse is a session with its full log.
type ChatSessionResponse struct {
	ID        openapi_types.UUID  `json:"id"`
	UserID    string              `json:"userId"`
	TripID    *openapi_types.UUID `json:"tripId,omitempty"`
	Messages  []ChatMessage       `json:"messages"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// --- mapping helpers --------------------------------------------------------

func tripToResponse(t domain.Trip) TripResponse {
	return TripResponse{
		ID:             t.ID,
		UserID:         t.OwnerID,
		Destination:    t.Destination,
		StartDate:      openapi_types.Date{Time: t.StartDate},
		EndDate:        openapi_types.Date{Time: t.EndDate},
		Budget:         t.Budget,
		Mood:           t.Mood,
		Travelers:      t.Travelers,
		Preferences:    t.Preferences,
		Status:         string(t.Status),
		CurrentVersion: t.CurrentVersion,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func versionToResponse(v domain.ItineraryVersion) ItineraryResponse {
	resp := ItineraryResponse{
		TripID:         v.TripID,
		Version:        v.Version,
		Days:           v.Plan.Days,
		Accommodations: v.Plan.Accommodations,
		Transportation: v.Plan.Transportation,
		TotalCost:      v.TotalCost,
		OverBudget:     v.OverBudget,
		ProposalID:     v.ProposalID,
		ProposalKind:   string(v.ProposalKind),
		Summary:        v.Summary,
		CreatedAt:      v.CreatedAt,
	}
	// Empty lists encode as [] so clients never see null.
	if resp.Days == nil {
		resp.Days = []domain.DayPlan{}
	}
	if resp.Accommodations == nil {
		resp.Accommodations = []domain.Accommodation{}
	}
	if resp.Transportation == nil {
		resp.Transportation = []domain.TransportLeg{}
	}
	return resp
}

func snapshotToResponse(s service.Snapshot) SnapshotResponse {
	return SnapshotResponse{Trip: tripToResponse(s.Trip), Itinerary: versionToResponse(s.Version)}
}

func summaryToResponse(v domain.VersionSummary) VersionSummaryResponse {
	return VersionSummaryResponse{
		Version:      v.Version,
		TotalCost:    v.TotalCost,
		OverBudget:   v.OverBudget,
		ProposalKind: string(v.ProposalKind),
		Summary:      v.Summary,
		CreatedAt:    v.CreatedAt,
	}
}

func messageToResponse(m domain.Message) ChatMessage {
	return ChatMessage{
		ID:         m.ID,
		Role:       m.Role,
		Content:    m.Text,
		Timestamp:  m.Timestamp,
		ProposalID: m.ProposalID,
	}
}

func conflictToResponse(ce *domain.ConflictError) *ConflictResponse {
	if ce == nil {
		return nil
	}
	resp := &ConflictResponse{Code: string(ce.Code), Message: ce.Message}
	if ce.Code == domain.ConflictStaleVersion {
		v := ce.CurrentVersion
		resp.CurrentVersion = &v
	}
	return resp
}

func sessionToResponse(s domain.ChatSession) ChatSessionResponse {
	msgs := make([]ChatMessage, len(s.Messages))
	for i, m := range s.Messages {
		msgs[i] = messageToResponse(m)
	}
	return ChatSessionResponse{
		ID:        s.ID,
		UserID:    s.OwnerID,
		TripID:    s.TripID,
		Messages:  msgs,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
