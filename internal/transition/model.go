package transition

import (
	"time"
)

// Statuses the analytics depend on. Other statuses (Scheduled, Complete,
// Cancelled, ...) are stored verbatim and never interpreted.
const (
	StatusArrived   = "Arrived"
	StatusInSession = "In Session"
)

// NoData is returned by the wait-time computations when no Arrived/In Session
// pair exists. It is a sentinel, not a duration.
const NoData float64 = -1

// Transition is one immutable record of an appointment's status at a point in time.
type Transition struct {
	ID            int64
	AppointmentID int64
	PatientID     int64
	DoctorID      int64
	Status        string
	Event         *string   // CREATE, DELETE or MODIFY
	ScheduledTime time.Time // the appointment's calendar slot
	UpdatedAt     time.Time // when the remote status change happened; ordering key
	CreatedAt     time.Time
}
