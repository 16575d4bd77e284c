package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/kiosk-checkin/internal/auth"
	"github.com/hackgods/kiosk-checkin/internal/checkin"
	"github.com/hackgods/kiosk-checkin/internal/directory"
	"github.com/hackgods/kiosk-checkin/internal/roster"
	"github.com/hackgods/kiosk-checkin/internal/transition"
)

var errNoDoctor = errors.New("no doctor in the practice")

func rosterHandler(builder RosterBuilder, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q roster.Query

		if raw := r.URL.Query().Get("doctor"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor", "doctor must be an integer id")
				return
			}
			q.DoctorID = &id
		}

		if raw := r.URL.Query().Get("date"); raw != "" {
			day, err := time.ParseInLocation(roster.DateLayout, raw, loc)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			q.Date = day
		}

		entries, err := builder.Build(r.Context(), q)
		if err != nil {
			handleDirectoryError(w, err)
			return
		}
		if entries == nil {
			entries = []roster.Entry{}
		}

		writeJSON(w, http.StatusOK, RosterResponse{Data: entries})
	}
}

func patchAppointmentHandler(appointments directory.Resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		var fields map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil || fields == nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "body must be a JSON object")
			return
		}

		if err := appointments.Update(r.Context(), id, fields); err != nil {
			handleDirectoryError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func welcomeHandler(doctors roster.Lister, analytics WaitAnalytics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := doctors.List(r.Context(), nil)
		if err != nil {
			handleDirectoryError(w, err)
			return
		}
		if len(list) == 0 {
			handleDirectoryError(w, errNoDoctor)
			return
		}

		summary, err := analytics.Summary(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, WelcomeResponse{
			Doctor:         list[0],
			AvgWait:        summary.AverageWaitMinutes,
			FirstMatchWait: summary.FirstMatchWaitMinutes,
		})
	}
}

func waitTimeHandler(analytics WaitAnalytics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := analytics.Summary(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, WaitTimeResponse(summary))
	}
}

func checkInHandler(svc CheckinService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkin.Name
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		id, err := svc.CheckIn(r.Context(), req)
		if err != nil {
			handleCheckinError(w, err)
			return
		}

		confirmURL := fmt.Sprintf("/confirm/%d", id)
		w.Header().Set("Location", confirmURL)
		writeJSON(w, http.StatusOK, CheckInResponse{AppointmentID: id, ConfirmURL: confirmURL})
	}
}

func prefillHandler(svc CheckinService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		form, err := svc.Prefill(r.Context(), id)
		if err != nil {
			handleCheckinError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, form)
	}
}

func confirmHandler(svc CheckinService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		var form checkin.Demographics
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if err := svc.Confirm(r.Context(), id, form); err != nil {
			handleCheckinError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ConfirmResponse{
			AppointmentID: id,
			Status:        transition.StatusArrived,
			Next:          "/thanks",
		})
	}
}

func thanksHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ThanksResponse{Message: "You're checked in. Please have a seat."})
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be an integer")
		return 0, false
	}
	return id, true
}

func handleCheckinError(w http.ResponseWriter, err error) {
	var verr *checkin.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "invalid_form", verr.Error())
	case errors.Is(err, checkin.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, checkin.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	default:
		handleDirectoryError(w, err)
	}
}

func handleDirectoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNoDoctor):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, auth.ErrNoLinkedAccount):
		writeError(w, http.StatusServiceUnavailable, "no_linked_account", "kiosk is not linked to the scheduling platform")
	case errors.Is(err, auth.ErrRefreshFailed):
		writeError(w, http.StatusServiceUnavailable, "auth_refresh_failed", err.Error())
	case directory.IsRemote(err):
		writeError(w, http.StatusBadGateway, "directory_error", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
