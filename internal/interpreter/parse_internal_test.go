package interpreter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
)

func TestFirstObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, true},
		{"prose around", "here you go: {\"a\":{\"b\":2}} hope it helps", `{"a":{"b":2}}`, true},
		{"brace in string", `{"reply":"use } carefully"}`, `{"reply":"use } carefully"}`, true},
		{"escaped quote", `{"reply":"say \"}\" twice"}`, `{"reply":"say \"}\" twice"}`, true},
		{"unterminated", `{"a":`, "", false},
		{"none", "no json here", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := firstObject(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseAnswer_TransportAndStay(t *testing.T) {
	in, err := parseAnswer(`{"reply":"ok","proposal":{"kind":"add_transport","transport":{"type":"train","from":"Lisbon","to":"Porto","departure":"2025-06-04T08:30","cost":35}}}`)
	require.NoError(t, err)
	require.NotNil(t, in.Proposal.Transport)
	assert.Equal(t, time.Date(2025, 6, 4, 8, 30, 0, 0, time.UTC), in.Proposal.Transport.Departure)

	in, err = parseAnswer(`{"reply":"ok","proposal":{"kind":"add_accommodation","accommodation":{"name":"Casa","checkIn":"2025-06-01","checkOut":"2025-06-03","costPerNight":80}}}`)
	require.NoError(t, err)
	require.NotNil(t, in.Proposal.Accommodation)
	assert.Equal(t, 80.0, in.Proposal.Accommodation.CostPerNight)
}

func TestParseAnswer_BadDateIsFailure(t *testing.T) {
	_, err := parseAnswer(`{"reply":"ok","proposal":{"kind":"set_dates","start":"next tuesday","end":"2025-06-09"}}`)
	assert.ErrorIs(t, err, domain.ErrInterpreterFailure)
}

func TestTripContext_ListsPlan(t *testing.T) {
	trip := &domain.Trip{Destination: "Lisbon", StartDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)}
	cur := &domain.ItineraryVersion{Version: 3, Plan: domain.Plan{Days: []domain.DayPlan{{
		Date:       time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Activities: []domain.Activity{{ID: "act_1", Name: "Museum visit", Cost: 20}},
	}}}}

	got := tripContext(domain.InterpretRequest{Trip: trip, Current: cur})

	assert.Contains(t, got, "Lisbon, 2025-06-01 to 2025-06-05")
	assert.Contains(t, got, "Itinerary version 3")
	assert.Contains(t, got, "Museum visit (id act_1)")
	assert.Equal(t, "The traveller has no trip yet.", tripContext(domain.InterpretRequest{}))
}
