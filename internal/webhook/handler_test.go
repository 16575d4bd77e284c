package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/kiosk-checkin/internal/transition"
	"github.com/hackgods/kiosk-checkin/pkg/logging"
)

const secret = "s3cret"

const validBody = `{
	"object": {
		"id": "1001",
		"patient": 42,
		"doctor": 7,
		"status": "Arrived",
		"scheduled_time": "2024-03-04T09:00:00",
		"updated_at": "2024-03-04T08:55:12",
		"notes": "ignored"
	}
}`

func newHandler(t *testing.T, store transition.Store) *Handler {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	ing := NewIngestor(Config{Secret: secret, Location: loc}, store, nil, logging.Nop())
	return NewHandler(ing, logging.Nop())
}

func post(h http.Handler, signature, event, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Drchrono-Signature", signature)
	}
	if event != "" {
		req.Header.Set("X-Drchrono-Event", event)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChallenge(t *testing.T) {
	h := newHandler(t, transition.NewMemoryStore())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook?msg=hello", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp challengeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("hello"))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), resp.SecretToken)

	// same input, same digest
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/webhook?msg=hello", nil))
	var again challengeResponse
	require.NoError(t, json.NewDecoder(rec2.Body).Decode(&again))
	assert.Equal(t, resp.SecretToken, again.SecretToken)
}

func TestChallenge_EmptyMessageIsAllowed(t *testing.T) {
	h := newHandler(t, transition.NewMemoryStore())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook?msg=", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChallenge_MissingMessage(t *testing.T) {
	h := newHandler(t, transition.NewMemoryStore())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvent_Stored(t *testing.T) {
	store := transition.NewMemoryStore()
	h := newHandler(t, store)

	rec := post(h, secret, "appointment_modify", validBody)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rows, err := store.Query(context.Background(), []int64{1001})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := rows[0]
	assert.Equal(t, int64(42), got.PatientID)
	assert.Equal(t, int64(7), got.DoctorID)
	assert.Equal(t, "Arrived", got.Status)
	require.NotNil(t, got.Event)
	assert.Equal(t, "MODIFY", *got.Event)

	ny, _ := time.LoadLocation("America/New_York")
	assert.True(t, got.ScheduledTime.Equal(time.Date(2024, 3, 4, 9, 0, 0, 0, ny)))
	assert.True(t, got.UpdatedAt.Equal(time.Date(2024, 3, 4, 8, 55, 12, 0, ny)))
}

func TestEvent_RFC3339Timestamps(t *testing.T) {
	store := transition.NewMemoryStore()
	h := newHandler(t, store)

	body := `{"object":{"id":5,"patient":1,"doctor":2,"status":"In Session",
		"scheduled_time":"2024-03-04T09:00:00Z","updated_at":"2024-03-04T09:10:00+02:00"}}`
	require.Equal(t, http.StatusNoContent, post(h, secret, "APPOINTMENT_CREATE", body).Code)

	rows, _ := store.Query(context.Background(), []int64{5})
	require.Len(t, rows, 1)
	assert.True(t, rows[0].UpdatedAt.Equal(time.Date(2024, 3, 4, 7, 10, 0, 0, time.UTC)))
}

func TestEvent_DuplicateDeliveryAppendsTwice(t *testing.T) {
	store := transition.NewMemoryStore()
	h := newHandler(t, store)

	require.Equal(t, http.StatusNoContent, post(h, secret, "APPOINTMENT_MODIFY", validBody).Code)
	require.Equal(t, http.StatusNoContent, post(h, secret, "APPOINTMENT_MODIFY", validBody).Code)

	rows, err := store.Query(context.Background(), []int64{1001})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestEvent_Rejected(t *testing.T) {
	tests := []struct {
		name      string
		signature string
		event     string
		body      string
	}{
		{name: "wrong signature", signature: "nope", event: "APPOINTMENT_MODIFY", body: validBody},
		{name: "missing signature", event: "APPOINTMENT_MODIFY", body: validBody},
		{name: "hmac instead of secret", signature: hex.EncodeToString([]byte(secret)), event: "APPOINTMENT_MODIFY", body: validBody},
		{name: "unknown event", signature: secret, event: "PATIENT_CREATE", body: validBody},
		{name: "missing event", signature: secret, body: validBody},
		{name: "not json", signature: secret, event: "APPOINTMENT_CREATE", body: "{"},
		{name: "no object", signature: secret, event: "APPOINTMENT_CREATE", body: `{}`},
		{name: "missing status", signature: secret, event: "APPOINTMENT_CREATE",
			body: `{"object":{"id":1,"patient":1,"doctor":1,"scheduled_time":"2024-03-04T09:00:00","updated_at":"2024-03-04T09:00:00"}}`},
		{name: "mistyped id", signature: secret, event: "APPOINTMENT_CREATE",
			body: `{"object":{"id":"abc","patient":1,"doctor":1,"status":"Arrived","scheduled_time":"2024-03-04T09:00:00","updated_at":"2024-03-04T09:00:00"}}`},
		{name: "bad timestamp", signature: secret, event: "APPOINTMENT_CREATE",
			body: `{"object":{"id":1,"patient":1,"doctor":1,"status":"Arrived","scheduled_time":"yesterday","updated_at":"2024-03-04T09:00:00"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := transition.NewMemoryStore()
			h := newHandler(t, store)

			rec := post(h, tt.signature, tt.event, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, store.Len())
		})
	}
}

func TestUnsupportedMethod(t *testing.T) {
	h := newHandler(t, transition.NewMemoryStore())

	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/webhook", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, method)
	}
}

type failingStore struct {
	*transition.MemoryStore
}

func (failingStore) Append(context.Context, transition.Transition) (int64, error) {
	return 0, errors.New("db down")
}

func TestEvent_StoreFailure(t *testing.T) {
	h := newHandler(t, failingStore{transition.NewMemoryStore()})

	rec := post(h, secret, "APPOINTMENT_MODIFY", validBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestVerify(t *testing.T) {
	ing := NewIngestor(Config{Secret: secret}, transition.NewMemoryStore(), nil, nil)

	event, err := ing.Verify(secret, " appointment_delete ")
	require.NoError(t, err)
	assert.Equal(t, "DELETE", event)

	_, err = ing.Verify(secret+"x", "APPOINTMENT_DELETE")
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = ing.Verify(secret, "APPOINTMENT")
	assert.ErrorIs(t, err, ErrUnsupportedEvent)
}

func TestHeaderNamesFollowProvider(t *testing.T) {
	ing := NewIngestor(Config{Secret: secret, Provider: "acme"}, transition.NewMemoryStore(), nil, nil)
	assert.Equal(t, "X-Acme-Signature", ing.SignatureHeader())
	assert.Equal(t, "X-Acme-Event", ing.EventHeader())
}
