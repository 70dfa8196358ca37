package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in a chat session's append-only log.
type Message struct {
	ID         uuid.UUID  `json:"id"`
	Role       string     `json:"role"`
	Text       string     `json:"text"`
	Timestamp  time.Time  `json:"timestamp"`
	ProposalID *uuid.UUID `json:"proposalId,omitempty"`
}

// ChatSession is a conversation, optionally bound to a trip.
// The trip binding is fixed at creation; afterwards the session only grows
// by appending messages.
type ChatSession struct {
	ID        uuid.UUID
	OwnerID   string
	TripID    *uuid.UUID
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tail returns at most n of the most recent messages.
func (s ChatSession) Tail(n int) []Message {
	if n <= 0 || len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// InterpretRequest is what an interpreter sees: the tail of the log (the new
// user message last) and, when the session is bound to a trip, the trip and
// its current itinerary.
type InterpretRequest struct {
	History []Message
	Trip    *Trip
	Current *ItineraryVersion
}

// Interpretation is an interpreter's answer: zero or one proposal plus a reply draft.
type Interpretation struct {
	Proposal    *EditProposal
	Reply       string
	Suggestions []string
}
