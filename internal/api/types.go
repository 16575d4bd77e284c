package api

import (
	"github.com/hackgods/kiosk-checkin/internal/directory"
	"github.com/hackgods/kiosk-checkin/internal/roster"
	"github.com/hackgods/kiosk-checkin/internal/transition"
)

type RosterResponse struct {
	Data []roster.Entry `json:"data"`
}

type WelcomeResponse struct {
	Doctor         directory.Record `json:"doctor"`
	AvgWait        float64          `json:"avg_wait"`
	FirstMatchWait float64          `json:"first_match_wait"`
}

type WaitTimeResponse = transition.WaitSummary

type CheckInResponse struct {
	AppointmentID int64  `json:"appointment_id"`
	ConfirmURL    string `json:"confirm_url"`
}

type ConfirmResponse struct {
	AppointmentID int64  `json:"appointment_id"`
	Status        string `json:"status"`
	Next          string `json:"next"`
}

type ThanksResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
