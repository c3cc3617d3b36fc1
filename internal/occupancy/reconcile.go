// Package occupancy merges the physical sensor view with the reservation
// ledger into one free/occupied classification of every slot.
package occupancy

import (
	"time"

	"parkaro/internal/domain"
)

// Reconcile classifies slots 1..total. A slot is occupied when either source
// reports it; indices outside the range are ignored. Free and Occupied come
// back sorted.
func Reconcile(sensorOccupied, reservedOccupied []int, total int, at time.Time) domain.OccupancySnapshot {
	occupied := make([]bool, total+1)
	for _, src := range [][]int{sensorOccupied, reservedOccupied} {
		for _, slot := range src {
			if slot >= 1 && slot <= total {
				occupied[slot] = true
			}
		}
	}

	snap := domain.OccupancySnapshot{
		Free:      make([]int, 0, total),
		Occupied:  make([]int, 0, total),
		Total:     total,
		Timestamp: at,
	}
	for slot := 1; slot <= total; slot++ {
		if occupied[slot] {
			snap.Occupied = append(snap.Occupied, slot)
		} else {
			snap.Free = append(snap.Free, slot)
		}
	}
	return snap
}
