package auth

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoLinkedAccount means nobody has completed the OAuth sign-in for the provider.
	ErrNoLinkedAccount = errors.New("no linked account for provider")
	ErrRefreshFailed   = errors.New("oauth token refresh failed")
)

// Token is the bearer credential used against the directory API.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Expired reports whether the token is expired or will be within skew.
func (t Token) Expired(now time.Time, skew time.Duration) bool {
	return !t.Expiry.After(now.Add(skew))
}

// TokenProvider supplies bearer credentials. Components that call the
// directory receive one explicitly instead of reaching for shared state.
type TokenProvider interface {
	// Token returns the stored credential as-is, expired or not.
	Token(ctx context.Context) (Token, error)
	// RefreshIfExpired returns a credential that is valid now, refreshing it first if needed.
	RefreshIfExpired(ctx context.Context) (Token, error)
}

// StaticTokenProvider serves a fixed token. Useful for sandboxes and tests.
type StaticTokenProvider struct {
	AccessToken string
}

func (p StaticTokenProvider) Token(context.Context) (Token, error) {
	if p.AccessToken == "" {
		return Token{}, ErrNoLinkedAccount
	}
	return Token{AccessToken: p.AccessToken, Expiry: time.Now().Add(time.Hour)}, nil
}

func (p StaticTokenProvider) RefreshIfExpired(ctx context.Context) (Token, error) {
	return p.Token(ctx)
}
