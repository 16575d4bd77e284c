package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/kiosk-checkin/internal/directory"
	"github.com/hackgods/kiosk-checkin/internal/transition"
	"github.com/hackgods/kiosk-checkin/pkg/logging"
)

var tracer = otel.Tracer("kiosk.internal.roster")

const DateLayout = "2006-01-02"

// Lister is the part of the directory the roster reads.
type Lister interface {
	List(ctx context.Context, filter url.Values) ([]directory.Record, error)
}

// Query selects one doctor's (or every doctor's) appointments for a day.
// A zero Date means today.
type Query struct {
	DoctorID *int64
	Date     time.Time
}

// Entry is a directory appointment annotated with when the patient arrived
// and when they were seen.
type Entry struct {
	Appointment directory.Record
	ArrivedAt   *time.Time
	SeenAt      *time.Time
}

// MarshalJSON flattens the appointment fields and the two timestamps into one object.
func (e Entry) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Appointment)+2)
	for k, v := range e.Appointment {
		out[k] = v
	}
	out["arrived_at"] = e.ArrivedAt
	out["seen_at"] = e.SeenAt
	return json.Marshal(out)
}

type Builder struct {
	appointments Lister
	store        transition.Store
	loc          *time.Location
	logger       *logging.Logger
	now          func() time.Time
}

func NewBuilder(appointments Lister, store transition.Store, loc *time.Location, logger *logging.Logger) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Builder{
		appointments: appointments,
		store:        store,
		loc:          loc,
		logger:       logger,
		now:          time.Now,
	}
}

// Build returns the day's listing, in directory order, with arrived_at and
// seen_at taken from the first Arrived and first In Session transition of
// each appointment. Any failure fails the whole roster.
func (b *Builder) Build(ctx context.Context, q Query) ([]Entry, error) {
	ctx, span := tracer.Start(ctx, "roster.build")
	defer span.End()

	day := q.Date
	if day.IsZero() {
		day = b.now().In(b.loc)
	}

	filter := url.Values{}
	filter.Set("date", day.Format(DateLayout))
	if q.DoctorID != nil {
		filter.Set("doctor", strconv.FormatInt(*q.DoctorID, 10))
		span.SetAttributes(attribute.Int64("roster.doctor_id", *q.DoctorID))
	}
	span.SetAttributes(attribute.String("roster.date", filter.Get("date")))

	records, err := b.appointments.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	ids := make([]int64, 0, len(records))
	entries := make([]Entry, 0, len(records))
	index := make(map[int64][]int, len(records))
	for _, rec := range records {
		id, ok := rec.Int("id")
		if !ok {
			return nil, fmt.Errorf("appointment record has no integer id: %v", rec["id"])
		}
		if _, seen := index[id]; !seen {
			ids = append(ids, id)
		}
		index[id] = append(index[id], len(entries))
		entries = append(entries, Entry{Appointment: rec})
	}

	if len(ids) == 0 {
		return entries, nil
	}

	transitions, err := b.store.Query(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query transitions: %w", err)
	}

	for _, t := range transitions {
		for _, pos := range index[t.AppointmentID] {
			e := &entries[pos]
			updated := t.UpdatedAt
			switch t.Status {
			case transition.StatusArrived:
				if e.ArrivedAt == nil {
					e.ArrivedAt = &updated
				}
			case transition.StatusInSession:
				if e.SeenAt == nil {
					e.SeenAt = &updated
				}
			}
		}
	}

	span.SetAttributes(
		attribute.Int("roster.appointments", len(entries)),
		attribute.Int("roster.transitions", len(transitions)),
	)
	b.logger.Debug().
		Str("date", filter.Get("date")).
		Int("appointments", len(entries)).
		Int("transitions", len(transitions)).
		Msg("built roster")
	return entries, nil
}
