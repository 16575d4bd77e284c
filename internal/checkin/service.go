package checkin

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/kiosk-checkin/internal/directory"
	"github.com/hackgods/kiosk-checkin/internal/observability/metrics"
	"github.com/hackgods/kiosk-checkin/internal/transition"
	"github.com/hackgods/kiosk-checkin/pkg/logging"
)

var tracer = otel.Tracer("kiosk.internal.checkin")

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Service drives the kiosk flow: find the patient and today's appointment,
// confirm demographics, mark the appointment Arrived. Nothing is kept between
// steps; the caller carries the appointment id.
type Service struct {
	patients     directory.Resource
	appointments directory.Resource
	loc          *time.Location
	metrics      *metrics.KioskMetrics
	logger       *logging.Logger
	now          func() time.Time
}

func NewService(patients, appointments directory.Resource, loc *time.Location, m *metrics.KioskMetrics, logger *logging.Logger) *Service {
	if patients == nil || appointments == nil {
		panic("checkin: directory resources required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		patients:     patients,
		appointments: appointments,
		loc:          loc,
		metrics:      m,
		logger:       logger,
		now:          time.Now,
	}
}

// CheckIn finds the patient by name and returns the id of their first
// appointment today.
//
// An unknown patient or a patient without an appointment today stops the
// flow here. Earlier versions of the kiosk built the "not found" response but
// carried on with the missing record.
func (s *Service) CheckIn(ctx context.Context, name Name) (int64, error) {
	ctx, span := tracer.Start(ctx, "checkin.check_in")
	defer span.End()

	if err := name.Validate(); err != nil {
		s.metrics.ObserveCheckin("check_in", "invalid")
		return 0, err
	}

	patients, err := s.patients.List(ctx, url.Values{
		"first_name": {name.First},
		"last_name":  {name.Last},
	})
	if err != nil {
		s.metrics.ObserveCheckin("check_in", "error")
		span.RecordError(err)
		return 0, fmt.Errorf("find patient: %w", err)
	}
	if len(patients) == 0 {
		s.metrics.ObserveCheckin("check_in", "patient_not_found")
		return 0, ErrPatientNotFound
	}
	patientID, ok := patients[0].Int("id")
	if !ok {
		return 0, fmt.Errorf("find patient: record has no integer id")
	}
	span.SetAttributes(attribute.Int64("patient.id", patientID))

	today := s.now().In(s.loc).Format("2006-01-02")
	appts, err := s.appointments.List(ctx, url.Values{
		"patient": {strconv.FormatInt(patientID, 10)},
		"date":    {today},
	})
	if err != nil {
		s.metrics.ObserveCheckin("check_in", "error")
		span.RecordError(err)
		return 0, fmt.Errorf("find appointment: %w", err)
	}
	if len(appts) == 0 {
		s.metrics.ObserveCheckin("check_in", "appointment_not_found")
		return 0, ErrAppointmentNotFound
	}
	apptID, ok := appts[0].Int("id")
	if !ok {
		return 0, fmt.Errorf("find appointment: record has no integer id")
	}
	span.SetAttributes(attribute.Int64("appointment.id", apptID))

	s.metrics.ObserveCheckin("check_in", "ok")
	s.logger.Info().
		Int64("patient_id", patientID).
		Int64("appointment_id", apptID).
		Msg("patient checked in")
	return apptID, nil
}

// Prefill loads the confirm form for an appointment.
func (s *Service) Prefill(ctx context.Context, appointmentID int64) (Demographics, error) {
	ctx, span := tracer.Start(ctx, "checkin.prefill")
	defer span.End()
	span.SetAttributes(attribute.Int64("appointment.id", appointmentID))

	_, patient, err := s.lookup(ctx, appointmentID)
	if err != nil {
		s.metrics.ObserveCheckin("prefill", outcome(err))
		span.RecordError(err)
		return Demographics{}, err
	}

	s.metrics.ObserveCheckin("prefill", "ok")
	return Demographics{
		FirstName:         patient.FirstName,
		LastName:          patient.LastName,
		Email:             patient.Email,
		Gender:            patient.Gender,
		Race:              patient.Race,
		Ethnicity:         patient.Ethnicity,
		PreferredLanguage: patient.PreferredLanguage,
	}, nil
}

// Confirm overwrites the patient's demographics and marks the appointment
// Arrived. The scheduling platform reports the status change back through
// the webhook, which is what records the transition.
func (s *Service) Confirm(ctx context.Context, appointmentID int64, form Demographics) error {
	ctx, span := tracer.Start(ctx, "checkin.confirm")
	defer span.End()
	span.SetAttributes(attribute.Int64("appointment.id", appointmentID))

	if err := form.Validate(); err != nil {
		s.metrics.ObserveCheckin("confirm", "invalid")
		return err
	}

	appt, _, err := s.lookup(ctx, appointmentID)
	if err != nil {
		s.metrics.ObserveCheckin("confirm", outcome(err))
		span.RecordError(err)
		return err
	}

	if err := s.patients.Update(ctx, int64(appt.Patient), form.Fields()); err != nil {
		s.metrics.ObserveCheckin("confirm", "error")
		span.RecordError(err)
		return fmt.Errorf("update patient %d: %w", appt.Patient, err)
	}

	if err := s.appointments.Update(ctx, appointmentID, map[string]any{"status": transition.StatusArrived}); err != nil {
		s.metrics.ObserveCheckin("confirm", "error")
		span.RecordError(err)
		return fmt.Errorf("mark appointment %d arrived: %w", appointmentID, err)
	}

	s.metrics.ObserveCheckin("confirm", "ok")
	s.logger.Info().
		Int64("appointment_id", appointmentID).
		Int64("patient_id", int64(appt.Patient)).
		Msg("appointment marked arrived")
	return nil
}

func (s *Service) lookup(ctx context.Context, appointmentID int64) (directory.Appointment, directory.Patient, error) {
	rec, err := s.appointments.Fetch(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return directory.Appointment{}, directory.Patient{}, fmt.Errorf("%w: %d", ErrAppointmentNotFound, appointmentID)
		}
		return directory.Appointment{}, directory.Patient{}, fmt.Errorf("fetch appointment: %w", err)
	}
	var appt directory.Appointment
	if err := rec.Decode(&appt); err != nil {
		return directory.Appointment{}, directory.Patient{}, fmt.Errorf("decode appointment: %w", err)
	}

	rec, err = s.patients.Fetch(ctx, int64(appt.Patient))
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return directory.Appointment{}, directory.Patient{}, fmt.Errorf("%w: %d", ErrPatientNotFound, appt.Patient)
		}
		return directory.Appointment{}, directory.Patient{}, fmt.Errorf("fetch patient: %w", err)
	}
	var patient directory.Patient
	if err := rec.Decode(&patient); err != nil {
		return directory.Appointment{}, directory.Patient{}, fmt.Errorf("decode patient: %w", err)
	}
	return appt, patient, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrAppointmentNotFound):
		return "appointment_not_found"
	case errors.Is(err, ErrPatientNotFound):
		return "patient_not_found"
	default:
		return "error"
	}
}
