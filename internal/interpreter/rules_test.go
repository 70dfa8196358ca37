package interpreter_test

import (
	"context"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
	"github.com/pkordes/dreamtrip/backend/internal/interpreter"
)

func lisbon() *domain.Trip {
	return &domain.Trip{
		Destination: "Lisbon",
		StartDate:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
		Budget:      1000,
		Status:      domain.StatusPlanning,
	}
}

func say(trip *domain.Trip, text string) domain.InterpretRequest {
	return domain.InterpretRequest{
		History: []domain.Message{
			{Role: domain.RoleAssistant, Text: "How can I help?"},
			{Role: domain.RoleUser, Text: text},
		},
		Trip: trip,
	}
}

func interpret(t *testing.T, text string) domain.Interpretation {
	t.Helper()
	in, err := interpreter.NewRules().Interpret(context.Background(), say(lisbon(), text))
	require.NoError(t, err)
	return in
}

func june(d int) time.Time {
	return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
}

func TestRules_AddActivity(t *testing.T) {
	in := interpret(t, "Add a museum visit on June 2 costing 20")

	require.NotNil(t, in.Proposal)
	assert.Equal(t, domain.KindAddDayActivity, in.Proposal.Kind)
	a := in.Proposal.Activity
	require.NotNil(t, a)
	assert.Equal(t, "Museum visit", a.Name)
	assert.Equal(t, june(2), a.Date)
	require.NotNil(t, a.Cost)
	assert.Equal(t, 20.0, *a.Cost)
	assert.Equal(t, domain.CategoryAttraction, a.Category)
	assert.Equal(t, "Lisbon", a.Location.Name)
	assert.Contains(t, in.Reply, "Museum visit")
}

func TestRules_AddActivity_AccentedName(t *testing.T) {
	in := interpret(t, "add éclair tasting on June 2 costing 5")

	require.NotNil(t, in.Proposal)
	a := in.Proposal.Activity
	require.NotNil(t, a)
	assert.Equal(t, "Éclair tasting", a.Name)
	assert.True(t, utf8.ValidString(a.Name))
	assert.True(t, utf8.ValidString(in.Reply))
}

func TestRules_AddActivity_DayNumberAndTime(t *testing.T) {
	in := interpret(t, "please schedule a fado dinner for day 3 at 8pm")

	require.NotNil(t, in.Proposal)
	a := in.Proposal.Activity
	assert.Equal(t, june(3), a.Date)
	assert.Equal(t, "20:00", a.StartTime)
	assert.Nil(t, a.Cost, "cost is left for the estimator")
	assert.Equal(t, domain.CategoryDining, a.Category)
}

func TestRules_SetBudget(t *testing.T) {
	in := interpret(t, "set budget to 10")

	require.NotNil(t, in.Proposal)
	assert.Equal(t, domain.KindSetBudget, in.Proposal.Kind)
	assert.Equal(t, 10.0, *in.Proposal.Budget)
	assert.False(t, in.Proposal.ForceRecompute)
}

func TestRules_SetBudget_Force(t *testing.T) {
	in := interpret(t, "Lower my budget to 1,500 anyway")

	require.NotNil(t, in.Proposal)
	assert.Equal(t, 1500.0, *in.Proposal.Budget)
	assert.True(t, in.Proposal.ForceRecompute)
}

func TestRules_SetDates(t *testing.T) {
	in := interpret(t, "Move the trip to June 3 - June 8")

	require.NotNil(t, in.Proposal)
	assert.Equal(t, domain.KindSetDates, in.Proposal.Kind)
	assert.Equal(t, june(3), in.Proposal.Dates.Start)
	assert.Equal(t, june(8), in.Proposal.Dates.End)
}

func TestRules_SetMood(t *testing.T) {
	in := interpret(t, "change the mood to adventurous")

	require.NotNil(t, in.Proposal)
	assert.Equal(t, domain.KindSetMood, in.Proposal.Kind)
	assert.Equal(t, "adventurous", *in.Proposal.Mood)
}

func TestRules_SetStatus(t *testing.T) {
	in := interpret(t, "Confirm the trip")

	require.NotNil(t, in.Proposal)
	assert.Equal(t, domain.KindSetStatus, in.Proposal.Kind)
	assert.Equal(t, domain.StatusConfirmed, *in.Proposal.Status)
}

func TestRules_RemoveActivity(t *testing.T) {
	in := interpret(t, "remove the museum visit on June 2 from the itinerary")

	require.NotNil(t, in.Proposal)
	assert.Equal(t, domain.KindRemoveDayActivity, in.Proposal.Kind)
	assert.Equal(t, "museum visit", in.Proposal.Remove.Name)
	require.NotNil(t, in.Proposal.Remove.Date)
	assert.Equal(t, june(2), *in.Proposal.Remove.Date)
}

func TestRules_AddStay(t *testing.T) {
	in := interpret(t, `Book a hotel called "Casa do Largo" from June 1 to June 4 at 90 per night`)

	require.NotNil(t, in.Proposal)
	s := in.Proposal.Accommodation
	require.NotNil(t, s)
	assert.Equal(t, "Casa do Largo", s.Name)
	assert.Equal(t, domain.StayHotel, s.Type)
	assert.Equal(t, june(1), s.CheckIn)
	assert.Equal(t, june(4), s.CheckOut)
	assert.Equal(t, 90.0, s.CostPerNight)
}

func TestRules_AddTransport(t *testing.T) {
	in := interpret(t, "add a train from Lisbon to Porto on June 4 at 8:30 costing 35")

	require.NotNil(t, in.Proposal)
	leg := in.Proposal.Transport
	require.NotNil(t, leg)
	assert.Equal(t, domain.TransportTrain, leg.Type)
	assert.Equal(t, "Lisbon", leg.From.Name)
	assert.Equal(t, "Porto", leg.To.Name)
	assert.Equal(t, time.Date(2025, 6, 4, 8, 30, 0, 0, time.UTC), leg.Departure)
	assert.Equal(t, 35.0, leg.Cost)
}

func TestRules_AddTransport_NoDateAsksBack(t *testing.T) {
	in := interpret(t, "book a flight from Lisbon to Madeira")

	assert.Nil(t, in.Proposal)
	assert.Contains(t, in.Reply, "Which day")
	assert.NotEmpty(t, in.Suggestions)
}

func TestRules_Regenerate(t *testing.T) {
	in := interpret(t, "Can you replan everything?")

	require.NotNil(t, in.Proposal)
	assert.Equal(t, domain.KindRegenerateItinerary, in.Proposal.Kind)
	assert.Nil(t, in.Proposal.Regenerate)
}

func TestRules_Unrecognised(t *testing.T) {
	in := interpret(t, "what's the weather like?")

	assert.Nil(t, in.Proposal)
	assert.NotEmpty(t, in.Reply)
	assert.NotEmpty(t, in.Suggestions)
}

func TestRules_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := interpreter.NewRules().Interpret(ctx, say(lisbon(), "set budget to 10"))

	assert.ErrorIs(t, err, domain.ErrInterpreterFailure)
}
