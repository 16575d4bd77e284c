package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/hackgods/kiosk-checkin/internal/auth"
	"github.com/hackgods/kiosk-checkin/internal/db"
	"github.com/hackgods/kiosk-checkin/internal/transition"
	"github.com/hackgods/kiosk-checkin/pkg/logging"
)

func main() {
	logger := logging.New(os.Getenv("LOG_LEVEL")).Component("seed")
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	count := 500
	if v, err := strconv.Atoi(os.Getenv("SEED_APPOINTMENTS")); err == nil && v > 0 {
		count = v
	}

	store := transition.NewPgStore(pool)
	if err := seedTransitions(context.Background(), store, count, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed transitions")
	}

	// a dev token lets the api-server talk to a sandbox directory without the OAuth dance
	if token := os.Getenv("SEED_ACCESS_TOKEN"); token != "" {
		creds := auth.NewPgCredentialStore(pool)
		provider := os.Getenv("OAUTH_PROVIDER")
		if provider == "" {
			provider = "drchrono"
		}
		err := creds.Save(context.Background(), provider, auth.Token{
			AccessToken:  token,
			RefreshToken: os.Getenv("SEED_REFRESH_TOKEN"),
			Expiry:       time.Now().Add(48 * time.Hour),
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("seed credential")
		}
		logger.Info().Str("provider", provider).Msg("credential seeded")
	}

	logger.Info().Msg("seed complete")
}

type step struct {
	status string
	event  string
	at     time.Time
}

// seedTransitions writes a plausible webhook history for count appointments:
// Scheduled, then usually Arrived and In Session, sometimes a duplicate
// delivery or a cancellation and re-arrival.
func seedTransitions(ctx context.Context, store transition.Store, count int, logger *logging.Logger) error {
	logger.Info().Int("appointments", count).Msg("seeding transitions")

	doctors := make([]int64, 5)
	for i := range doctors {
		doctors[i] = int64(gofakeit.Number(100000, 199999))
	}

	now := time.Now().Truncate(time.Minute)
	written := 0

	for i := 0; i < count; i++ {
		apptID := int64(gofakeit.Number(10000000, 99999999))
		patientID := int64(gofakeit.Number(1000000, 9999999))
		doctorID := doctors[gofakeit.Number(0, len(doctors)-1)]

		scheduled := gofakeit.DateRange(now.AddDate(0, 0, -14), now.AddDate(0, 0, 1)).Truncate(15 * time.Minute)
		base := transition.Transition{
			AppointmentID: apptID,
			PatientID:     patientID,
			DoctorID:      doctorID,
			ScheduledTime: scheduled,
		}

		at := scheduled.Add(-time.Duration(gofakeit.Number(1, 72)) * time.Hour)
		steps := []step{{status: "Scheduled", event: "CREATE", at: at}}

		if scheduled.Before(now) && gofakeit.Number(1, 10) > 1 {
			arrived := scheduled.Add(time.Duration(gofakeit.Number(-15, 10)) * time.Minute)
			seen := arrived.Add(time.Duration(gofakeit.Number(0, 45)) * time.Minute)
			steps = append(steps, step{transition.StatusArrived, "MODIFY", arrived})

			// the platform redelivers now and then
			if gofakeit.Number(1, 10) == 1 {
				steps = append(steps, steps[len(steps)-1])
			}

			if gofakeit.Number(1, 20) == 1 {
				steps = append(steps,
					step{"Cancelled", "MODIFY", arrived.Add(2 * time.Minute)},
					step{transition.StatusArrived, "MODIFY", arrived.Add(5 * time.Minute)},
				)
			}

			steps = append(steps,
				step{transition.StatusInSession, "MODIFY", seen},
				step{"Complete", "MODIFY", seen.Add(time.Duration(gofakeit.Number(10, 40)) * time.Minute)},
			)
		}

		for _, st := range steps {
			t := base
			t.Status = st.status
			event := st.event
			t.Event = &event
			t.UpdatedAt = st.at
			if _, err := store.Append(ctx, t); err != nil {
				return err
			}
			written++
		}

		if (i+1)%100 == 0 {
			logger.Info().Int("appointments", i+1).Int("transitions", written).Msg("seed progress")
		}
	}

	logger.Info().Int("transitions", written).Msg("transitions seeded")
	return nil
}
