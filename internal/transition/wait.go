package transition

import (
	"sort"
	"time"
)

// waitMinutes truncates toward zero, so 90 seconds count as one minute.
func waitMinutes(arrived, seen time.Time) float64 {
	return float64(seen.Sub(arrived) / time.Minute)
}

// AverageWait averages every Arrived x In Session pair of the same appointment.
//
// This is an unconstrained self-join: an appointment that arrived twice and
// was seen once contributes two pairs. Good enough for a dashboard figure,
// wrong for per-appointment drill-down; see FirstMatchWait.
func AverageWait(transitions []Transition) float64 {
	arrivals := make(map[int64][]time.Time)
	seen := make(map[int64][]time.Time)

	for _, t := range transitions {
		switch t.Status {
		case StatusArrived:
			arrivals[t.AppointmentID] = append(arrivals[t.AppointmentID], t.UpdatedAt)
		case StatusInSession:
			seen[t.AppointmentID] = append(seen[t.AppointmentID], t.UpdatedAt)
		}
	}

	var sum float64
	var n int
	for apptID, arrivedAt := range arrivals {
		for _, a := range arrivedAt {
			for _, s := range seen[apptID] {
				sum += waitMinutes(a, s)
				n++
			}
		}
	}

	if n == 0 {
		return NoData
	}
	return sum / float64(n)
}

// FirstMatchWait pairs each appointment's earliest Arrived with the earliest
// In Session at or after it and averages over appointments that have both.
func FirstMatchWait(transitions []Transition) float64 {
	ordered := make([]Transition, len(transitions))
	copy(ordered, transitions)
	sortByAppointment(ordered)

	arrivedAt := make(map[int64]time.Time)
	seenAt := make(map[int64]time.Time)

	for _, t := range ordered {
		if t.Status != StatusArrived {
			continue
		}
		if _, ok := arrivedAt[t.AppointmentID]; !ok {
			arrivedAt[t.AppointmentID] = t.UpdatedAt
		}
	}

	for _, t := range ordered {
		if t.Status != StatusInSession {
			continue
		}
		a, arrived := arrivedAt[t.AppointmentID]
		if !arrived || t.UpdatedAt.Before(a) {
			continue
		}
		if _, ok := seenAt[t.AppointmentID]; !ok {
			seenAt[t.AppointmentID] = t.UpdatedAt
		}
	}

	var sum float64
	for apptID, s := range seenAt {
		sum += waitMinutes(arrivedAt[apptID], s)
	}

	if len(seenAt) == 0 {
		return NoData
	}
	return sum / float64(len(seenAt))
}

// sortByAppointment orders by (appointment_id, updated_at, id).
func sortByAppointment(ts []Transition) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].AppointmentID != ts[j].AppointmentID {
			return ts[i].AppointmentID < ts[j].AppointmentID
		}
		if !ts[i].UpdatedAt.Equal(ts[j].UpdatedAt) {
			return ts[i].UpdatedAt.Before(ts[j].UpdatedAt)
		}
		return ts[i].ID < ts[j].ID
	})
}
