package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/kiosk-checkin/internal/directory"
	"github.com/hackgods/kiosk-checkin/internal/observability/metrics"
	"github.com/hackgods/kiosk-checkin/internal/transition"
	"github.com/hackgods/kiosk-checkin/pkg/logging"
)

var tracer = otel.Tracer("kiosk.internal.webhook")

var (
	ErrMissingMessage   = errors.New("missing msg parameter")
	ErrBadSignature     = errors.New("signature does not match")
	ErrUnsupportedEvent = errors.New("unsupported event type")
	ErrInvalidPayload   = errors.New("invalid event payload")
)

const eventPrefix = "APPOINTMENT_"

var supportedEvents = map[string]bool{
	"APPOINTMENT_CREATE": true,
	"APPOINTMENT_DELETE": true,
	"APPOINTMENT_MODIFY": true,
}

// zone-less timestamp form the scheduling platform sends
const localTimestamp = "2006-01-02T15:04:05"

type Config struct {
	Secret   string
	Provider string         // header prefix, drchrono -> X-Drchrono-Signature
	Location *time.Location // zone for timestamps without an offset
}

// Ingestor verifies inbound appointment events and appends them to the
// transition log. It never checks for an existing row: a redelivered event
// is stored again.
type Ingestor struct {
	store    transition.Store
	secret   []byte
	sigKey   string
	eventKey string
	loc      *time.Location
	metrics  *metrics.KioskMetrics
	logger   *logging.Logger
}

func NewIngestor(cfg Config, store transition.Store, m *metrics.KioskMetrics, logger *logging.Logger) *Ingestor {
	if store == nil {
		panic("webhook: transition store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "drchrono"
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Ingestor{
		store:    store,
		secret:   []byte(cfg.Secret),
		sigKey:   http.CanonicalHeaderKey("X-" + provider + "-Signature"),
		eventKey: http.CanonicalHeaderKey("X-" + provider + "-Event"),
		loc:      loc,
		metrics:  m,
		logger:   logger,
	}
}

func (i *Ingestor) SignatureHeader() string { return i.sigKey }
func (i *Ingestor) EventHeader() string     { return i.eventKey }

// Challenge answers the registration handshake with hex(HMAC-SHA256(secret, msg)).
func (i *Ingestor) Challenge(msg string) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature header and the event type. The sender puts the
// shared secret itself in the signature header, so this is an equality check
// rather than an HMAC over the body.
func (i *Ingestor) Verify(signature, eventType string) (string, error) {
	if !hmac.Equal([]byte(signature), i.secret) {
		return "", ErrBadSignature
	}
	upper := strings.ToUpper(strings.TrimSpace(eventType))
	if !supportedEvents[upper] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedEvent, eventType)
	}
	return strings.TrimPrefix(upper, eventPrefix), nil
}

type envelope struct {
	Object *appointmentObject `json:"object"`
}

type appointmentObject struct {
	ID            *directory.ID `json:"id"`
	Patient       *directory.ID `json:"patient"`
	Doctor        *directory.ID `json:"doctor"`
	Status        *string       `json:"status"`
	ScheduledTime *string       `json:"scheduled_time"`
	UpdatedAt     *string       `json:"updated_at"`
}

// Decode turns an event body into a Transition. Every field is required.
func (i *Ingestor) Decode(event string, body []byte) (transition.Transition, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&env); err != nil {
		return transition.Transition{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	obj := env.Object
	if obj == nil {
		return transition.Transition{}, fmt.Errorf("%w: object is required", ErrInvalidPayload)
	}

	missing := func(field string) error {
		return fmt.Errorf("%w: object.%s is required", ErrInvalidPayload, field)
	}
	switch {
	case obj.ID == nil:
		return transition.Transition{}, missing("id")
	case obj.Patient == nil:
		return transition.Transition{}, missing("patient")
	case obj.Doctor == nil:
		return transition.Transition{}, missing("doctor")
	case obj.Status == nil:
		return transition.Transition{}, missing("status")
	case obj.ScheduledTime == nil:
		return transition.Transition{}, missing("scheduled_time")
	case obj.UpdatedAt == nil:
		return transition.Transition{}, missing("updated_at")
	}

	scheduled, err := i.parseTime(*obj.ScheduledTime)
	if err != nil {
		return transition.Transition{}, fmt.Errorf("%w: object.scheduled_time: %v", ErrInvalidPayload, err)
	}
	updated, err := i.parseTime(*obj.UpdatedAt)
	if err != nil {
		return transition.Transition{}, fmt.Errorf("%w: object.updated_at: %v", ErrInvalidPayload, err)
	}

	t := transition.Transition{
		AppointmentID: int64(*obj.ID),
		PatientID:     int64(*obj.Patient),
		DoctorID:      int64(*obj.Doctor),
		Status:        *obj.Status,
		ScheduledTime: scheduled,
		UpdatedAt:     updated,
	}
	if event != "" {
		t.Event = &event
	}
	return t, nil
}

// Ingest verifies, decodes and appends one delivery.
func (i *Ingestor) Ingest(ctx context.Context, signature, eventType string, body []byte) (transition.Transition, error) {
	ctx, span := tracer.Start(ctx, "webhook.ingest")
	defer span.End()

	event, err := i.Verify(signature, eventType)
	if err != nil {
		outcome := "unsupported_event"
		if errors.Is(err, ErrBadSignature) {
			outcome = "bad_signature"
		}
		i.metrics.ObserveWebhook("", outcome)
		span.RecordError(err)
		return transition.Transition{}, err
	}
	span.SetAttributes(attribute.String("webhook.event", event))

	t, err := i.Decode(event, body)
	if err != nil {
		i.metrics.ObserveWebhook(event, "invalid_payload")
		span.RecordError(err)
		return transition.Transition{}, err
	}
	span.SetAttributes(
		attribute.Int64("appointment.id", t.AppointmentID),
		attribute.String("appointment.status", t.Status),
	)

	id, err := i.store.Append(ctx, t)
	if err != nil {
		i.metrics.ObserveWebhook(event, "store_error")
		span.RecordError(err)
		return transition.Transition{}, fmt.Errorf("append transition: %w", err)
	}
	t.ID = id

	i.metrics.ObserveWebhook(event, "stored")
	i.logger.Info().
		Int64("transition_id", id).
		Int64("appointment_id", t.AppointmentID).
		Str("status", t.Status).
		Str("event", event).
		Msg("stored appointment transition")
	return t, nil
}

func (i *Ingestor) parseTime(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts, nil
	}
	return time.ParseInLocation(localTimestamp, raw, i.loc)
}

// IsValidation reports whether err should be answered with 400.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingMessage) ||
		errors.Is(err, ErrBadSignature) ||
		errors.Is(err, ErrUnsupportedEvent) ||
		errors.Is(err, ErrInvalidPayload)
}
