package transition

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgStore struct {
	pool querier
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	if pool == nil {
		panic("transition: pgx pool required")
	}
	return &PgStore{pool: pool}
}

func newPgStoreWithQuerier(q querier) *PgStore {
	return &PgStore{pool: q}
}

const transitionColumns = `id, appointment_id, patient_id, doctor_id, status, event, scheduled_time, updated_at, created_at`

func scanTransition(row pgx.Row) (*Transition, error) {
	var t Transition
	var event *string

	err := row.Scan(
		&t.ID,
		&t.AppointmentID,
		&t.PatientID,
		&t.DoctorID,
		&t.Status,
		&event,
		&t.ScheduledTime,
		&t.UpdatedAt,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Event = event
	return &t, nil
}

func (s *PgStore) Append(ctx context.Context, t Transition) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO appointment_transitions
			(appointment_id, patient_id, doctor_id, status, event, scheduled_time, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, t.AppointmentID, t.PatientID, t.DoctorID, t.Status, t.Event, t.ScheduledTime, t.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert transition: %w", err)
	}
	return id, nil
}

func (s *PgStore) Query(ctx context.Context, appointmentIDs []int64) ([]Transition, error) {
	if len(appointmentIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+transitionColumns+`
		FROM appointment_transitions
		WHERE appointment_id = ANY($1)
		ORDER BY appointment_id, updated_at, id
	`, appointmentIDs)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var result []Transition
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		result = append(result, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}

	return result, nil
}

// AverageArrivedToSeenMinutes mirrors AverageWait in SQL: every Arrived row is
// joined with every In Session row of the same appointment.
func (s *PgStore) AverageArrivedToSeenMinutes(ctx context.Context) (float64, error) {
	return s.average(ctx, `
		SELECT AVG(TRUNC(EXTRACT(EPOCH FROM (t2.updated_at - t1.updated_at)) / 60))::float8
		FROM appointment_transitions t1
		JOIN appointment_transitions t2 ON t1.appointment_id = t2.appointment_id
		WHERE t1.status = $1 AND t2.status = $2
	`)
}

func (s *PgStore) FirstMatchArrivedToSeenMinutes(ctx context.Context) (float64, error) {
	return s.average(ctx, `
		WITH arrived AS (
			SELECT appointment_id, MIN(updated_at) AS arrived_at
			FROM appointment_transitions
			WHERE status = $1
			GROUP BY appointment_id
		), seen AS (
			SELECT a.appointment_id, MIN(t.updated_at) AS seen_at
			FROM arrived a
			JOIN appointment_transitions t
			  ON t.appointment_id = a.appointment_id
			 AND t.status = $2
			 AND t.updated_at >= a.arrived_at
			GROUP BY a.appointment_id
		)
		SELECT AVG(TRUNC(EXTRACT(EPOCH FROM (s.seen_at - a.arrived_at)) / 60))::float8
		FROM arrived a
		JOIN seen s ON s.appointment_id = a.appointment_id
	`)
}

func (s *PgStore) average(ctx context.Context, sql string) (float64, error) {
	var avg *float64
	if err := s.pool.QueryRow(ctx, sql, StatusArrived, StatusInSession).Scan(&avg); err != nil {
		return 0, fmt.Errorf("average wait: %w", err)
	}
	if avg == nil {
		return NoData, nil
	}
	return *avg, nil
}
