package auth

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Refresher exchanges a refresh token for a new credential.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Token, error)
}

// OAuth2Refresher runs the refresh_token grant against the provider's token endpoint.
type OAuth2Refresher struct {
	cfg        *oauth2.Config
	httpClient *http.Client
}

func NewOAuth2Refresher(clientID, clientSecret, tokenURL string, timeout time.Duration) *OAuth2Refresher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &OAuth2Refresher{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (r *OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)

	// An empty access token is never valid, so the source goes straight to the grant.
	src := r.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return Token{}, err
	}

	return Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}
