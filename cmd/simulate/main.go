package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/hackgods/kiosk-checkin/internal/config"
	"github.com/hackgods/kiosk-checkin/internal/transition"
	"github.com/hackgods/kiosk-checkin/pkg/logging"
)

type SimConfig struct {
	APIBaseURL     string
	Duration       time.Duration
	Workers        int
	DeliverRatio   float64
	DuplicateRatio float64
	BadSigRatio    float64
	ReadRatio      float64
	Appointments   int
	Secret         string
	SignatureKey   string
	EventKey       string
}

type appointmentState struct {
	id        int64
	patient   int64
	doctor    int64
	scheduled time.Time
	step      int
	lastBody  []byte
}

// DataPool holds fake appointments moving through Scheduled -> Arrived -> In Session -> Complete.
type DataPool struct {
	mu           sync.Mutex
	appointments []*appointmentState
	doctors      []int64
}

var lifecycle = []string{"Scheduled", transition.StatusArrived, transition.StatusInSession, "Complete"}

func newDataPool(n int) *DataPool {
	dp := &DataPool{}
	for i := 0; i < 5; i++ {
		dp.doctors = append(dp.doctors, int64(gofakeit.Number(100000, 199999)))
	}
	today := time.Now().Truncate(24 * time.Hour)
	for i := 0; i < n; i++ {
		dp.appointments = append(dp.appointments, &appointmentState{
			id:        int64(gofakeit.Number(10000000, 99999999)),
			patient:   int64(gofakeit.Number(1000000, 9999999)),
			doctor:    dp.doctors[gofakeit.Number(0, len(dp.doctors)-1)],
			scheduled: today.Add(time.Duration(gofakeit.Number(8*4, 17*4)) * 15 * time.Minute),
		})
	}
	return dp
}

// next advances a random appointment one status and returns the event body.
func (dp *DataPool) next(rng *rand.Rand) ([]byte, string, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()

	a := dp.appointments[rng.Intn(len(dp.appointments))]
	if a.step >= len(lifecycle) {
		return nil, "", false
	}

	event := "APPOINTMENT_MODIFY"
	if a.step == 0 {
		event = "APPOINTMENT_CREATE"
	}
	updated := a.scheduled.Add(time.Duration(a.step*rng.Intn(20)) * time.Minute)

	body, _ := json.Marshal(map[string]any{
		"object": map[string]any{
			"id":             strconv.FormatInt(a.id, 10),
			"patient":        a.patient,
			"doctor":         a.doctor,
			"status":         lifecycle[a.step],
			"scheduled_time": a.scheduled.Format("2006-01-02T15:04:05"),
			"updated_at":     updated.Format("2006-01-02T15:04:05"),
		},
	})
	a.step++
	a.lastBody = body
	return body, event, true
}

// replay returns a body that was already delivered, as a redelivering sender would.
func (dp *DataPool) replay(rng *rand.Rand) ([]byte, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()

	a := dp.appointments[rng.Intn(len(dp.appointments))]
	return a.lastBody, a.lastBody != nil
}

func (dp *DataPool) doctor(rng *rand.Rand) int64 {
	return dp.doctors[rng.Intn(len(dp.doctors))]
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Rejected  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, rejected bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if rejected {
		atomic.AddInt64(&om.Rejected, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Deliver      OperationMetrics
	Duplicate    OperationMetrics
	BadSignature OperationMetrics
	Roster       OperationMetrics
	WaitTime     OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  *logging.Logger
}

func main() {
	logger := logging.New(os.Getenv("LOG_LEVEL")).Component("simulate")
	logger.Info().Msg("simulator starting")

	cfg := loadConfig(logger)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("deliver", cfg.DeliverRatio).
		Float64("duplicate", cfg.DuplicateRatio).
		Float64("bad_signature", cfg.BadSigRatio).
		Float64("read", cfg.ReadRatio).
		Msg("config")

	gofakeit.Seed(time.Now().UnixNano())

	sim := &Simulator{
		config: cfg,
		pool:   newDataPool(cfg.Appointments),
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig(logger *logging.Logger) SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load base config")
	}

	provider := baseCfg.Webhook.Provider
	cfg := SimConfig{
		APIBaseURL:     strings.TrimSuffix(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:       getDuration("SIM_DURATION", 30*time.Second),
		Workers:        getInt("SIM_WORKERS", 10),
		DeliverRatio:   getFloat("SIM_DELIVER_RATIO", 0.6),
		DuplicateRatio: getFloat("SIM_DUPLICATE_RATIO", 0.1),
		BadSigRatio:    getFloat("SIM_BAD_SIGNATURE_RATIO", 0.05),
		ReadRatio:      getFloat("SIM_READ_RATIO", 0.25),
		Appointments:   getInt("SIM_APPOINTMENTS", 2000),
		Secret:         baseCfg.Webhook.SecretToken,
		SignatureKey:   http.CanonicalHeaderKey("X-" + provider + "-Signature"),
		EventKey:       http.CanonicalHeaderKey("X-" + provider + "-Event"),
	}

	// Normalize ratios
	total := cfg.DeliverRatio + cfg.DuplicateRatio + cfg.BadSigRatio + cfg.ReadRatio
	if total > 0 {
		cfg.DeliverRatio /= total
		cfg.DuplicateRatio /= total
		cfg.BadSigRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Secret == "" {
		return fmt.Errorf("WEBHOOK_SECRET_TOKEN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Appointments <= 0 {
		return fmt.Errorf("SIM_APPOINTMENTS must be > 0")
	}
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().
		Dur("duration", s.config.Duration).
		Int("workers", s.config.Workers).
		Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.DeliverRatio:
				s.doDeliver(ctx, rng)
			case r < s.config.DeliverRatio+s.config.DuplicateRatio:
				s.doDuplicate(ctx, rng)
			case r < s.config.DeliverRatio+s.config.DuplicateRatio+s.config.BadSigRatio:
				s.doBadSignature(ctx, rng)
			default:
				if rng.Intn(2) == 0 {
					s.doRoster(ctx, rng)
				} else {
					s.doWaitTime(ctx)
				}
			}
		}
	}
}

func (s *Simulator) deliver(ctx context.Context, signature, event string, body []byte) (int, time.Duration, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/webhook", bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(s.config.SignatureKey, signature)
	req.Header.Set(s.config.EventKey, event)

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, latency, nil
}

func (s *Simulator) doDeliver(ctx context.Context, rng *rand.Rand) {
	body, event, ok := s.pool.next(rng)
	if !ok {
		return
	}
	status, latency, err := s.deliver(ctx, s.config.Secret, event, body)
	s.metrics.Deliver.Record(latency, err == nil && status == http.StatusNoContent, status == http.StatusBadRequest)
}

// doDuplicate redelivers an earlier event; the server stores it again.
func (s *Simulator) doDuplicate(ctx context.Context, rng *rand.Rand) {
	body, ok := s.pool.replay(rng)
	if !ok {
		return
	}
	status, latency, err := s.deliver(ctx, s.config.Secret, "APPOINTMENT_MODIFY", body)
	s.metrics.Duplicate.Record(latency, err == nil && status == http.StatusNoContent, status == http.StatusBadRequest)
}

// doBadSignature must always be rejected with 400.
func (s *Simulator) doBadSignature(ctx context.Context, rng *rand.Rand) {
	body, ok := s.pool.replay(rng)
	if !ok {
		return
	}
	status, latency, err := s.deliver(ctx, gofakeit.Password(true, true, true, false, false, 24), "APPOINTMENT_MODIFY", body)
	s.metrics.BadSignature.Record(latency, err == nil && status == http.StatusBadRequest, false)
}

func (s *Simulator) doRoster(ctx context.Context, rng *rand.Rand) {
	start := time.Now()

	target := fmt.Sprintf("%s/appointments?doctor=%d&date=%s",
		s.config.APIBaseURL, s.pool.doctor(rng), time.Now().Format("2006-01-02"))
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.Roster.Record(latency, success, false)
}

func (s *Simulator) doWaitTime(ctx context.Context) {
	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+"/analytics/wait-time", nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.WaitTime.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Webhook delivery", &s.metrics.Deliver)
	printOperationReport("Duplicate delivery", &s.metrics.Duplicate)
	printOperationReport("Bad signature (expect 400)", &s.metrics.BadSignature)
	printOperationReport("Roster", &s.metrics.Roster)
	printOperationReport("Wait time", &s.metrics.WaitTime)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	rejected := atomic.LoadInt64(&om.Rejected)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, float64(rejected)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
