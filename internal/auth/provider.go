package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	redisclient "github.com/hackgods/kiosk-checkin/internal/redis"
	"github.com/hackgods/kiosk-checkin/pkg/logging"
)

// CredentialProvider is the TokenProvider backed by the stored linked account.
// Refreshes are serialized across instances with a lock so two kiosks never
// spend the same refresh token.
type CredentialProvider struct {
	provider  string
	store     CredentialStore
	refresher Refresher
	locker    redisclient.Locker
	skew      time.Duration
	logger    *logging.Logger

	now          func() time.Time
	lockWait     time.Duration
	lockAttempts int
}

func NewCredentialProvider(provider string, store CredentialStore, refresher Refresher, locker redisclient.Locker, skew time.Duration, logger *logging.Logger) *CredentialProvider {
	if store == nil || refresher == nil {
		panic("auth: credential store and refresher required")
	}
	if locker == nil {
		locker = redisclient.NewLocalLocker()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CredentialProvider{
		provider:     provider,
		store:        store,
		refresher:    refresher,
		locker:       locker,
		skew:         skew,
		logger:       logger,
		now:          time.Now,
		lockWait:     250 * time.Millisecond,
		lockAttempts: 8,
	}
}

func (p *CredentialProvider) Token(ctx context.Context) (Token, error) {
	return p.store.Load(ctx, p.provider)
}

func (p *CredentialProvider) RefreshIfExpired(ctx context.Context) (Token, error) {
	tok, err := p.store.Load(ctx, p.provider)
	if err != nil {
		return Token{}, err
	}
	if !tok.Expired(p.now(), p.skew) {
		return tok, nil
	}

	for attempt := 0; attempt < p.lockAttempts; attempt++ {
		var refreshed Token
		err := p.locker.WithLock(ctx, "oauth:"+p.provider, func(lockCtx context.Context) error {
			var err error
			refreshed, err = p.refreshLocked(lockCtx)
			return err
		})
		if err == nil {
			return refreshed, nil
		}
		if !errors.Is(err, redisclient.ErrLockNotAcquired) {
			return Token{}, err
		}

		// another instance holds the lock; its result lands in the store
		select {
		case <-ctx.Done():
			return Token{}, ctx.Err()
		case <-time.After(p.lockWait):
		}

		tok, err = p.store.Load(ctx, p.provider)
		if err != nil {
			return Token{}, err
		}
		if !tok.Expired(p.now(), p.skew) {
			return tok, nil
		}
	}

	return Token{}, fmt.Errorf("%w: refresh lock busy", ErrRefreshFailed)
}

// SaveToken links (or relinks) the account, e.g. after an operator completes sign-in.
func (p *CredentialProvider) SaveToken(ctx context.Context, tok Token) error {
	return p.store.Save(ctx, p.provider, tok)
}

func (p *CredentialProvider) refreshLocked(ctx context.Context) (Token, error) {
	// re-read under the lock; someone may have refreshed while we waited
	current, err := p.store.Load(ctx, p.provider)
	if err != nil {
		return Token{}, err
	}
	if !current.Expired(p.now(), p.skew) {
		return current, nil
	}

	fresh, err := p.refresher.Refresh(ctx, current.RefreshToken)
	if err != nil {
		p.logger.Error().Err(err).Str("provider", p.provider).Msg("oauth refresh failed")
		return Token{}, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = current.RefreshToken
	}

	if err := p.store.Save(ctx, p.provider, fresh); err != nil {
		return Token{}, err
	}

	p.logger.Info().
		Str("provider", p.provider).
		Time("expires_at", fresh.Expiry).
		Msg("refreshed oauth token")
	return fresh, nil
}
