package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/hackgods/kiosk-checkin/internal/redis"
	"github.com/hackgods/kiosk-checkin/pkg/logging"
)

var now = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type memoryCredentials struct {
	mu     sync.Mutex
	tokens map[string]Token
	saves  int
}

func (m *memoryCredentials) Load(_ context.Context, provider string) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[provider]
	if !ok {
		return Token{}, ErrNoLinkedAccount
	}
	return tok, nil
}

func (m *memoryCredentials) Save(_ context.Context, provider string, tok Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[provider] = tok
	m.saves++
	return nil
}

// sequencedCredentials returns each token in turn, repeating the last one.
type sequencedCredentials struct {
	mu     sync.Mutex
	tokens []Token
	loads  int
}

func (s *sequencedCredentials) Load(context.Context, string) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.loads
	if i >= len(s.tokens) {
		i = len(s.tokens) - 1
	}
	s.loads++
	return s.tokens[i], nil
}

func (s *sequencedCredentials) Save(context.Context, string, Token) error {
	return errors.New("unexpected save")
}

type stubRefresher struct {
	calls int
	got   string
	tok   Token
	err   error
}

func (s *stubRefresher) Refresh(_ context.Context, refreshToken string) (Token, error) {
	s.calls++
	s.got = refreshToken
	return s.tok, s.err
}

func newProvider(store CredentialStore, refresher Refresher, locker redisclient.Locker) *CredentialProvider {
	p := NewCredentialProvider("drchrono", store, refresher, locker, time.Minute, logging.Nop())
	p.now = func() time.Time { return now }
	p.lockWait = time.Millisecond
	return p
}

func TestCredentialProvider_NoLinkedAccount(t *testing.T) {
	p := newProvider(&memoryCredentials{tokens: map[string]Token{}}, &stubRefresher{}, nil)

	_, err := p.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoLinkedAccount)

	_, err = p.RefreshIfExpired(context.Background())
	assert.ErrorIs(t, err, ErrNoLinkedAccount)
}

func TestCredentialProvider_ValidTokenIsNotRefreshed(t *testing.T) {
	store := &memoryCredentials{tokens: map[string]Token{
		"drchrono": {AccessToken: "live", RefreshToken: "r1", Expiry: now.Add(time.Hour)},
	}}
	refresher := &stubRefresher{}
	p := newProvider(store, refresher, nil)

	tok, err := p.RefreshIfExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "live", tok.AccessToken)
	assert.Zero(t, refresher.calls)
}

func TestCredentialProvider_RefreshesExpiredToken(t *testing.T) {
	store := &memoryCredentials{tokens: map[string]Token{
		"drchrono": {AccessToken: "stale", RefreshToken: "r1", Expiry: now.Add(30 * time.Second)},
	}}
	refresher := &stubRefresher{tok: Token{AccessToken: "fresh", Expiry: now.Add(2 * time.Hour)}}
	p := newProvider(store, refresher, nil)

	tok, err := p.RefreshIfExpired(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "fresh", tok.AccessToken)
	assert.Equal(t, "r1", refresher.got)
	assert.Equal(t, "r1", tok.RefreshToken, "refresh token kept when provider omits it")
	assert.Equal(t, 1, store.saves)

	stored, _ := store.Load(context.Background(), "drchrono")
	assert.Equal(t, "fresh", stored.AccessToken)
}

func TestCredentialProvider_RefreshFailure(t *testing.T) {
	store := &memoryCredentials{tokens: map[string]Token{
		"drchrono": {AccessToken: "stale", RefreshToken: "r1", Expiry: now.Add(-time.Hour)},
	}}
	p := newProvider(store, &stubRefresher{err: errors.New("invalid_grant")}, nil)

	_, err := p.RefreshIfExpired(context.Background())
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.ErrorContains(t, err, "invalid_grant")
	assert.Zero(t, store.saves)
}

func TestCredentialProvider_WaitsForOtherInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	// first read is stale; by the next read the lock holder has stored a fresh token
	store := &sequencedCredentials{tokens: []Token{
		{AccessToken: "stale", RefreshToken: "r1", Expiry: now.Add(-time.Hour)},
		{AccessToken: "theirs", RefreshToken: "r2", Expiry: now.Add(time.Hour)},
	}}
	refresher := &stubRefresher{}
	p := newProvider(store, refresher, redisclient.NewRedisLocker(client, 5*time.Second))

	require.NoError(t, mr.Set("lock:oauth:drchrono", "other"))

	tok, err := p.RefreshIfExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "theirs", tok.AccessToken)
	assert.Zero(t, refresher.calls)
}

func TestCredentialProvider_LockNeverReleased(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := &memoryCredentials{tokens: map[string]Token{
		"drchrono": {AccessToken: "stale", RefreshToken: "r1", Expiry: now.Add(-time.Hour)},
	}}
	p := newProvider(store, &stubRefresher{}, redisclient.NewRedisLocker(client, 5*time.Second))
	require.NoError(t, mr.Set("lock:oauth:drchrono", "other"))

	_, err := p.RefreshIfExpired(context.Background())
	assert.ErrorIs(t, err, ErrRefreshFailed)
}

func TestOAuth2Refresher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "r1", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "client", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "r2",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer server.Close()

	r := NewOAuth2Refresher("client", "secret", server.URL, time.Second)
	tok, err := r.Refresh(context.Background(), "r1")
	require.NoError(t, err)

	assert.Equal(t, "new-access", tok.AccessToken)
	assert.Equal(t, "r2", tok.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Expiry, time.Minute)
}

func TestOAuth2Refresher_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	_, err := NewOAuth2Refresher("client", "secret", server.URL, time.Second).Refresh(context.Background(), "r1")
	assert.Error(t, err)
}

func TestPgCredentialStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPgCredentialStoreWithExec(mock)
	expiry := now.Add(time.Hour)

	mock.ExpectQuery("SELECT access_token, refresh_token, expires_at FROM oauth_credentials").
		WithArgs("drchrono").
		WillReturnRows(pgxmock.NewRows([]string{"access_token", "refresh_token", "expires_at"}).AddRow("a", "r", expiry))

	tok, err := store.Load(context.Background(), "drchrono")
	require.NoError(t, err)
	assert.Equal(t, Token{AccessToken: "a", RefreshToken: "r", Expiry: expiry}, tok)

	mock.ExpectQuery("SELECT access_token").WithArgs("other").WillReturnError(pgx.ErrNoRows)
	_, err = store.Load(context.Background(), "other")
	assert.ErrorIs(t, err, ErrNoLinkedAccount)

	mock.ExpectExec("INSERT INTO oauth_credentials").
		WithArgs("drchrono", "a2", "r2", expiry).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.Save(context.Background(), "drchrono", Token{AccessToken: "a2", RefreshToken: "r2", Expiry: expiry}))

	assert.NoError(t, mock.ExpectationsWereMet())
}
