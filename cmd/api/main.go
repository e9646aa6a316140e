package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	app "github.com/deskline/helpdesk-sla/cmd/api/app"
	authpkg "github.com/deskline/helpdesk-sla/cmd/api/auth"
	"github.com/deskline/helpdesk-sla/cmd/api/metrics"
	"github.com/deskline/helpdesk-sla/cmd/api/migrations"
	"github.com/deskline/helpdesk-sla/cmd/api/ws"
)

func main() {
	_ = godotenv.Load()
	cfg := app.GetConfig()
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer pool.Close()

	if err := migrations.Up(ctx, cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("migrate up")
	}

	var keyf jwt.Keyfunc
	if cfg.JWKSURL != "" {
		keyf, err = authpkg.JWKSKeyfunc(ctx, cfg.JWKSURL, 10*time.Minute)
		if err != nil {
			log.Fatal().Err(err).Str("jwks_url", cfg.JWKSURL).Msg("fetch jwks")
		}
	}

	mc, err := cfg.MinIO()
	if err != nil {
		log.Fatal().Err(err).Msg("minio init")
	}

	// Redis client (optional)
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error().Err(err).Msg("redis ping")
		}
		defer rdb.Close()
	}

	src := cfg.HolidaySource(pool, rdb, mc)
	calc, hs, err := app.NewCalculator(ctx, cfg, pool, src)
	if err != nil {
		log.Fatal().Err(err).Msg("work calendar")
	}
	metrics.HolidaysConfigured.Set(float64(len(hs)))
	log.Info().Str("calendar", cfg.CalendarID).Int("holidays", len(hs)).Msg("work calendar loaded")

	if rdb != nil {
		go app.WatchCalendar(ctx, rdb, src, calc, nil)
	}

	a := app.NewApp(cfg, pool, keyf, rdb, calc)
	hub := ws.NewHub(rdb)
	go hub.Run(ctx)
	routes(a, hub)

	srv := &http.Server{
		Addr:           cfg.Addr,
		Handler:        a.R,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	log.Info().Str("addr", cfg.Addr).Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("listen")
	}
}
