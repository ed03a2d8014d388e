package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linlinbupt123-crypto/energy_share_service/entity"
)

func TestSweepSchedulerRunOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	second := solarProject()
	second.Name = "Breeze"
	second.ProjectType = "Wind"
	h.ledger.AddProject(second)

	s := NewSweepScheduler(h.projects, h.positions, time.Minute, nil)
	s.RunOnce(ctx)

	list, err := h.projects.List(ctx, entity.ProjectFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Test Project", list[0].Name)
	assert.Equal(t, "Breeze", list[1].Name)

	wind, err := h.projects.List(ctx, entity.ProjectFilter{ProjectType: "Wind"})
	require.NoError(t, err)
	require.Len(t, wind, 1)
}

func TestSweepSchedulerRejectsBadSchedule(t *testing.T) {
	h := newHarness(t)
	s := NewSweepScheduler(h.projects, h.positions, time.Minute, nil)
	assert.Error(t, s.Start("every full moon"))

	require.NoError(t, s.ScheduleStaleRefresh(time.Minute))
	require.NoError(t, s.Start("@every 1h"))
	s.Stop()
}
