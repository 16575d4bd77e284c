package transition

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/kiosk-checkin/internal/observability/metrics"
	"github.com/hackgods/kiosk-checkin/pkg/logging"
)

var analyticsTracer = otel.Tracer("kiosk.internal.transition.analytics")

const (
	waitKindLegacy     = "legacy"
	waitKindFirstMatch = "first_match"
)

// WaitSummary carries both wait-time figures. Either may be NoData.
type WaitSummary struct {
	AverageWaitMinutes    float64 `json:"average_wait_minutes"`
	FirstMatchWaitMinutes float64 `json:"first_match_wait_minutes"`
}

// Analytics computes wait-time statistics over the whole transition history.
// When a redis client and a positive TTL are given, results are cached.
type Analytics struct {
	store   Store
	cache   *redis.Client
	ttl     time.Duration
	metrics *metrics.KioskMetrics
	logger  *logging.Logger
}

func NewAnalytics(store Store, cache *redis.Client, ttl time.Duration, m *metrics.KioskMetrics, logger *logging.Logger) *Analytics {
	if store == nil {
		panic("transition: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Analytics{store: store, cache: cache, ttl: ttl, metrics: m, logger: logger}
}

// AverageWaitMinutes is the legacy self-join metric. NoData (-1) means no pair exists.
func (a *Analytics) AverageWaitMinutes(ctx context.Context) (float64, error) {
	return a.cached(ctx, waitKindLegacy, a.store.AverageArrivedToSeenMinutes)
}

// FirstMatchWaitMinutes is the per-appointment first-pair metric.
func (a *Analytics) FirstMatchWaitMinutes(ctx context.Context) (float64, error) {
	return a.cached(ctx, waitKindFirstMatch, a.store.FirstMatchArrivedToSeenMinutes)
}

func (a *Analytics) Summary(ctx context.Context) (WaitSummary, error) {
	legacy, err := a.AverageWaitMinutes(ctx)
	if err != nil {
		return WaitSummary{}, err
	}
	first, err := a.FirstMatchWaitMinutes(ctx)
	if err != nil {
		return WaitSummary{}, err
	}
	return WaitSummary{AverageWaitMinutes: legacy, FirstMatchWaitMinutes: first}, nil
}

func (a *Analytics) cached(ctx context.Context, kind string, compute func(context.Context) (float64, error)) (float64, error) {
	ctx, span := analyticsTracer.Start(ctx, "analytics.wait_minutes")
	defer span.End()
	span.SetAttributes(attribute.String("kiosk.wait_kind", kind))

	if !a.cacheEnabled() {
		return compute(ctx)
	}

	key := "analytics:wait:" + kind
	raw, err := a.cache.Get(ctx, key).Result()
	switch {
	case err == nil:
		if v, perr := strconv.ParseFloat(raw, 64); perr == nil {
			a.metrics.ObserveAnalyticsCache(true)
			return v, nil
		}
	case !errors.Is(err, redis.Nil):
		a.logger.Warn().Err(err).Str("key", key).Msg("wait-time cache read failed")
	}
	a.metrics.ObserveAnalyticsCache(false)

	v, err := compute(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	if err := a.cache.Set(ctx, key, strconv.FormatFloat(v, 'f', -1, 64), a.ttl).Err(); err != nil {
		a.logger.Warn().Err(err).Str("key", key).Msg("wait-time cache write failed")
	}
	return v, nil
}

func (a *Analytics) cacheEnabled() bool {
	return a.cache != nil && a.ttl > 0
}
