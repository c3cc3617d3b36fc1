// Package charging tracks charge level per session and detects the first
// time a vehicle reaches full charge.
package charging

import (
	"time"

	"gopkg.in/guregu/null.v4"

	"parkaro/internal/apperr"
	"parkaro/internal/domain"
)

// Apply runs one level update against a copy of cs and returns the new
// state. The level never regresses: a reading below the current level is
// recorded as the current level. Once complete, completion_time is fixed.
func Apply(cs domain.ChargingSession, level int, now time.Time) (domain.ChargingSession, domain.ChargeOutcome, error) {
	if level < 0 || level > domain.FullChargeLevel {
		return cs, "", apperr.Newf(apperr.KindInvalidLevel, "charge level %d is outside [0,100]", level)
	}

	switch cs.Status {
	case domain.ChargingComplete:
		return cs, domain.OutcomeAlreadyComplete, nil
	case domain.ChargingActive:
	default:
		return cs, "", apperr.Newf(apperr.KindNotFound, "charging session %d is not active", cs.ID)
	}

	if level > cs.CurrentChargeLevel {
		cs.CurrentChargeLevel = level
	}
	if level < domain.FullChargeLevel {
		return cs, domain.OutcomeCharging, nil
	}

	cs.CurrentChargeLevel = domain.FullChargeLevel
	cs.Status = domain.ChargingComplete
	cs.CompletionTime = null.TimeFrom(now)
	return cs, domain.OutcomeFirstTimeComplete, nil
}

// Stop ends the session. It reports false, leaving cs untouched, when the
// session was already stopped.
func Stop(cs domain.ChargingSession, now time.Time, batteryKWh float64) (domain.ChargingSession, bool) {
	if cs.Status == domain.ChargingStopped {
		return cs, false
	}
	cs.Status = domain.ChargingStopped
	cs.EndTime = null.TimeFrom(now)
	cs.EndChargeLevel = null.IntFrom(int64(cs.CurrentChargeLevel))
	if gained := cs.CurrentChargeLevel - cs.StartChargeLevel; gained > 0 {
		cs.TotalEnergyKWh = float64(gained) / 100 * batteryKWh
	}
	return cs, true
}

// FullFor is how long the battery has been full at now, or false if it
// never completed.
func FullFor(cs domain.ChargingSession, now time.Time) (time.Duration, bool) {
	if !cs.CompletionTime.Valid {
		return 0, false
	}
	end := now
	if cs.EndTime.Valid && cs.EndTime.Time.Before(now) {
		end = cs.EndTime.Time
	}
	d := end.Sub(cs.CompletionTime.Time)
	if d < 0 {
		d = 0
	}
	return d, true
}
