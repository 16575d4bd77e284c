package transition

import (
	"context"
)

// Store is the append-only transition log. There is no update or
// delete method; retention belongs to an external data-lifecycle policy.
type Store interface {
	// Append persists t and returns its id. Replays are not detected.
	Append(ctx context.Context, t Transition) (int64, error)

	// Query returns every transition for the given appointments ordered by
	// (appointment_id, updated_at) ascending.
	Query(ctx context.Context, appointmentIDs []int64) ([]Transition, error)

	// AverageArrivedToSeenMinutes is the whole-history self-join average.
	AverageArrivedToSeenMinutes(ctx context.Context) (float64, error)

	// FirstMatchArrivedToSeenMinutes pairs each appointment's first Arrived
	// with the first In Session at or after it.
	FirstMatchArrivedToSeenMinutes(ctx context.Context) (float64, error)
}
