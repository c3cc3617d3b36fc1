// Package sensor provides the physical occupancy feeds the reconciler polls.
// Every source answers with the set of slot indices a detector currently
// sees as occupied, or an error when it cannot vouch for that set.
package sensor

import (
	"context"
	"errors"
	"slices"
)

// ErrUnavailable marks a source that cannot report right now.
var ErrUnavailable = errors.New("sensor unavailable")

// Static always reports the same slots. An empty Static stands in when no
// detector is deployed.
type Static struct {
	slots []int
}

func NewStatic(slots ...int) *Static {
	return &Static{slots: slices.Clone(slots)}
}

func (s *Static) OccupiedSlots(context.Context) ([]int, error) {
	return slices.Clone(s.slots), nil
}
