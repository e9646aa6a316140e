package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	app "github.com/deskline/helpdesk-sla/cmd/api/app"
)

func main() {
	_ = godotenv.Load()
	c := app.GetConfig()
	if c.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := pgxpool.New(ctx, c.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("redis ping failed (queue not active yet)")
	}
	defer rdb.Close()

	mc, err := c.MinIO()
	if err != nil {
		log.Error().Err(err).Msg("minio init")
	}

	src := c.HolidaySource(db, rdb, mc)
	calc, hs, err := app.NewCalculator(ctx, c, db, src)
	if err != nil {
		log.Fatal().Err(err).Msg("work calendar")
	}
	w := &Worker{DB: db, RDB: rdb, Calc: calc, Holidays: src, Now: time.Now}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := w.Sweep(ctx); err != nil {
					log.Error().Err(err).Msg("sla sweep")
				}
			}
		}
	}()

	log.Info().Int("holidays", len(hs)).Msg("worker started")
	for ctx.Err() == nil {
		if err := w.ProcessQueueJob(ctx, 5*time.Second); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("process job")
		}
	}
}
