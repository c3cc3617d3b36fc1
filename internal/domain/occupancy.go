package domain

import (
	"sort"
	"time"
)

// Slot is a 1-based parking space index.
type Slot = int

// OccupancySnapshot classifies every configured slot as free or occupied at
// one instant. A published snapshot is never mutated; the reconciler replaces
// it wholesale on each cycle.
type OccupancySnapshot struct {
	Free           []Slot    `json:"free"`
	Occupied       []Slot    `json:"occupied"`
	Total          int       `json:"total"`
	Timestamp      time.Time `json:"timestamp"`
	SensorDegraded bool      `json:"sensor_degraded"`
}

func (s *OccupancySnapshot) FreeCount() int {
	return len(s.Free)
}

// LowestFree returns the lowest-numbered free slot. Free is kept sorted.
func (s *OccupancySnapshot) LowestFree() (Slot, bool) {
	if len(s.Free) == 0 {
		return 0, false
	}
	return s.Free[0], true
}

func (s *OccupancySnapshot) IsFree(slot Slot) bool {
	i := sort.SearchInts(s.Free, slot)
	return i < len(s.Free) && s.Free[i] == slot
}

// ParkingStatusView is the read-only status payload served to displays.
type ParkingStatusView struct {
	TotalSpaces    int       `json:"total_spaces"`
	FreeSpaces     int       `json:"free_spaces"`
	FreeSlots      []Slot    `json:"free_slots"`
	OccupiedSlots  []Slot    `json:"occupied_slots"`
	SensorDegraded bool      `json:"sensor_degraded"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func NewParkingStatusView(s *OccupancySnapshot) ParkingStatusView {
	return ParkingStatusView{
		TotalSpaces:    s.Total,
		FreeSpaces:     len(s.Free),
		FreeSlots:      s.Free,
		OccupiedSlots:  s.Occupied,
		SensorDegraded: s.SensorDegraded,
		UpdatedAt:      s.Timestamp,
	}
}
