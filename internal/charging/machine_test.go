package charging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkaro/internal/apperr"
	"parkaro/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func active(level int) domain.ChargingSession {
	return domain.ChargingSession{
		ID: 1, StartChargeLevel: level, CurrentChargeLevel: level,
		Status: domain.ChargingActive, StartTime: t0,
	}
}

func TestApplyCharging(t *testing.T) {
	cs, outcome, err := Apply(active(20), 55, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCharging, outcome)
	assert.Equal(t, 55, cs.CurrentChargeLevel)
	assert.False(t, cs.CompletionTime.Valid)
}

func TestApplyNeverRegresses(t *testing.T) {
	cs, outcome, err := Apply(active(60), 40, t0)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCharging, outcome)
	assert.Equal(t, 60, cs.CurrentChargeLevel)
}

func TestApplyFirstTimeThenAlreadyComplete(t *testing.T) {
	first := t0.Add(10 * time.Minute)
	cs, outcome, err := Apply(active(30), 100, first)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFirstTimeComplete, outcome)
	assert.Equal(t, domain.ChargingComplete, cs.Status)
	assert.Equal(t, first, cs.CompletionTime.Time)

	again, outcome, err := Apply(cs, 100, first.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyComplete, outcome)
	assert.Equal(t, first, again.CompletionTime.Time)

	lower, outcome, err := Apply(cs, 90, first.Add(6*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyComplete, outcome)
	assert.Equal(t, 100, lower.CurrentChargeLevel)
}

func TestApplyStartedAtFullStillFiresOnce(t *testing.T) {
	cs, outcome, err := Apply(active(100), 100, t0)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFirstTimeComplete, outcome)
	assert.True(t, cs.CompletionTime.Valid)
}

func TestApplyRejectsOutOfRange(t *testing.T) {
	for _, level := range []int{-1, 101} {
		_, _, err := Apply(active(10), level, t0)
		assert.ErrorIs(t, err, apperr.ErrInvalidLevel)
	}
}

func TestApplyStoppedIsNotFound(t *testing.T) {
	cs := active(10)
	cs.Status = domain.ChargingStopped
	_, _, err := Apply(cs, 50, t0)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStopIsIdempotent(t *testing.T) {
	cs := active(20)
	cs.CurrentChargeLevel = 70

	stopped, changed := Stop(cs, t0.Add(time.Hour), 40)
	require.True(t, changed)
	assert.Equal(t, domain.ChargingStopped, stopped.Status)
	assert.Equal(t, int64(70), stopped.EndChargeLevel.Int64)
	assert.InDelta(t, 20.0, stopped.TotalEnergyKWh, 0.0001)

	again, changed := Stop(stopped, t0.Add(2*time.Hour), 40)
	assert.False(t, changed)
	assert.Equal(t, stopped, again)
}

func TestFullFor(t *testing.T) {
	cs, _, err := Apply(active(50), 100, t0.Add(10*time.Minute))
	require.NoError(t, err)

	d, ok := FullFor(cs, t0.Add(40*time.Minute))
	require.True(t, ok)
	assert.Equal(t, 30*time.Minute, d)

	_, ok = FullFor(active(50), t0)
	assert.False(t, ok)
}
