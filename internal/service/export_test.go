package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/dreamtrip/backend/internal/domain"
	"github.com/pkordes/dreamtrip/backend/internal/export"
	"github.com/pkordes/dreamtrip/backend/internal/service"
)

func TestExportService_Diff(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	trip := h.lisbon(t)
	_, err := h.rec.Submit(context.Background(), trip.ID, addActivity(0, "Museum visit", 2, 20))
	require.NoError(t, err)
	svc := service.NewExportService(memTrips{h.store}, memVersions{h.store}, nil)

	d, err := svc.Diff(context.Background(), trip.ID, 0, nil)

	require.NoError(t, err)
	assert.Equal(t, 0, d.From)
	assert.Equal(t, 1, d.To, "defaults to the current version")
	assert.True(t, d.Changed())
	assert.Contains(t, d.Lines, export.Line{Type: export.LineAdded, Text: "  Museum visit [other] 20.00", NewLine: 4})
}

func TestExportService_Diff_Errors(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	trip := h.lisbon(t)
	svc := service.NewExportService(memTrips{h.store}, memVersions{h.store}, nil)

	_, err := svc.Diff(context.Background(), trip.ID, 0, ptr(3))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Diff(context.Background(), trip.ID, -1, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Diff(context.Background(), uuid.New(), 0, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExportService_Calendar(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	trip := h.lisbon(t)
	_, err := h.rec.Submit(context.Background(), trip.ID, addActivity(0, "Museum visit", 2, 20))
	require.NoError(t, err)
	svc := service.NewExportService(memTrips{h.store}, memVersions{h.store}, nil)

	cal, err := svc.Calendar(context.Background(), trip.ID)

	require.NoError(t, err)
	assert.Contains(t, cal, "SUMMARY:Museum visit")
	assert.Contains(t, cal, "X-WR-TIMEZONE:UTC")

	_, err = svc.Calendar(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
