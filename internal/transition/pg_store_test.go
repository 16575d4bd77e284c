package transition

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *PgStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, newPgStoreWithQuerier(mock)
}

func TestPgStore_Append(t *testing.T) {
	mock, store := newMockStore(t)

	event := "MODIFY"
	row := Transition{
		AppointmentID: 11,
		PatientID:     22,
		DoctorID:      33,
		Status:        StatusArrived,
		Event:         &event,
		ScheduledTime: epoch,
		UpdatedAt:     at(5),
	}

	mock.ExpectQuery("INSERT INTO appointment_transitions").
		WithArgs(int64(11), int64(22), int64(33), StatusArrived, &event, epoch, at(5)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := store.Append(context.Background(), row)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStore_AppendError(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectQuery("INSERT INTO appointment_transitions").
		WillReturnError(errors.New("connection reset"))

	_, err := store.Append(context.Background(), tr(1, StatusArrived, 0))
	assert.ErrorContains(t, err, "insert transition")
}

func TestPgStore_Query(t *testing.T) {
	mock, store := newMockStore(t)

	created := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	event := "MODIFY"
	rows := pgxmock.NewRows([]string{
		"id", "appointment_id", "patient_id", "doctor_id", "status", "event",
		"scheduled_time", "updated_at", "created_at",
	}).
		AddRow(int64(1), int64(5), int64(6), int64(7), StatusArrived, &event, epoch, at(1), created).
		AddRow(int64(2), int64(5), int64(6), int64(7), StatusInSession, (*string)(nil), epoch, at(9), created)

	mock.ExpectQuery("SELECT (.+) FROM appointment_transitions WHERE appointment_id = ANY").
		WithArgs([]int64{5, 8}).
		WillReturnRows(rows)

	got, err := store.Query(context.Background(), []int64{5, 8})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, StatusArrived, got[0].Status)
	require.NotNil(t, got[0].Event)
	assert.Equal(t, "MODIFY", *got[0].Event)
	assert.Nil(t, got[1].Event)
	assert.Equal(t, at(9), got[1].UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStore_QueryNoIDsSkipsDatabase(t *testing.T) {
	mock, store := newMockStore(t)

	got, err := store.Query(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStore_AverageArrivedToSeenMinutes(t *testing.T) {
	mock, store := newMockStore(t)

	avg := 30.0
	mock.ExpectQuery("SELECT AVG").
		WithArgs(StatusArrived, StatusInSession).
		WillReturnRows(pgxmock.NewRows([]string{"avg"}).AddRow(&avg))

	got, err := store.AverageArrivedToSeenMinutes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30.0, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStore_AverageWithoutPairsIsNoData(t *testing.T) {
	mock, store := newMockStore(t)

	mock.ExpectQuery("SELECT AVG").
		WithArgs(StatusArrived, StatusInSession).
		WillReturnRows(pgxmock.NewRows([]string{"avg"}).AddRow((*float64)(nil)))

	got, err := store.AverageArrivedToSeenMinutes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NoData, got)
}

func TestPgStore_FirstMatch(t *testing.T) {
	mock, store := newMockStore(t)

	avg := 12.5
	mock.ExpectQuery("WITH arrived AS").
		WithArgs(StatusArrived, StatusInSession).
		WillReturnRows(pgxmock.NewRows([]string{"avg"}).AddRow(&avg))

	got, err := store.FirstMatchArrivedToSeenMinutes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12.5, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
