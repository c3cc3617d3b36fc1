// Package pricing turns a parking duration into a fee.
package pricing

import (
	"fmt"
	"math"

	"parkaro/internal/apperr"
)

type Tier string

const (
	TierFree  Tier = "free"
	TierShort Tier = "short_stay"
	TierLong  Tier = "long_stay"
)

// Engine holds the tariff. The long-stay rate is a flat discount applied to
// the whole stay once it exceeds LongStayAfter, not a marginal bracket.
type Engine struct {
	ShortRate        float64
	LongRate         float64
	FreeMinutes      int
	LongStayAfter    int
	Currency         string
	ClampNonPositive bool
}

type Quote struct {
	Minutes         int     `json:"minutes"`
	Amount          float64 `json:"amount"`
	RateDescription string  `json:"rate_description"`
	Tier            Tier    `json:"tier"`
}

func Default() Engine {
	return Engine{
		ShortRate:        1.25,
		LongRate:         1.05,
		FreeMinutes:      5,
		LongStayAfter:    60,
		Currency:         "₹",
		ClampNonPositive: true,
	}
}

func (e Engine) Validate() error {
	switch {
	case e.ShortRate <= 0 || e.LongRate <= 0:
		return apperr.New(apperr.KindValidation, "pricing rates must be positive")
	case e.LongRate >= e.ShortRate:
		return apperr.New(apperr.KindValidation, "long-stay rate must be lower than short-stay rate")
	case e.FreeMinutes < 0:
		return apperr.New(apperr.KindValidation, "free minutes cannot be negative")
	case e.LongStayAfter < e.FreeMinutes:
		return apperr.New(apperr.KindValidation, "long-stay threshold must not be below the free tier")
	}
	return nil
}

// Price quotes a stay of the given whole minutes. A non-positive duration
// only happens under clock skew; it is billed as one minute when
// ClampNonPositive is set and rejected otherwise (zero is allowed).
func (e Engine) Price(minutes int) (Quote, error) {
	if minutes <= 0 && e.ClampNonPositive {
		minutes = 1
	}
	if minutes < 0 {
		return Quote{}, apperr.Newf(apperr.KindValidation, "negative duration: %d minutes", minutes)
	}

	q := Quote{Minutes: minutes}
	switch {
	case minutes <= e.FreeMinutes:
		q.Tier = TierFree
		q.RateDescription = fmt.Sprintf("Free (0-%d minutes)", e.FreeMinutes)
	case minutes <= e.LongStayAfter:
		q.Tier = TierShort
		q.Amount = round2(float64(minutes) * e.ShortRate)
		q.RateDescription = e.perMinute(e.ShortRate, minutes)
	default:
		q.Tier = TierLong
		q.Amount = round2(float64(minutes) * e.LongRate)
		q.RateDescription = e.perMinute(e.LongRate, minutes)
	}
	return q, nil
}

func (e Engine) perMinute(rate float64, minutes int) string {
	return fmt.Sprintf("%s%.2f/min (%d minutes)", e.Currency, rate, minutes)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
