package app

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/deskline/helpdesk-sla/internal/sla"
)

// DB is a minimal interface to allow mocking in tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// App wires dependencies and the Gin router.
type App struct {
	Cfg  Config
	DB   DB
	R    *gin.Engine
	Keyf jwt.Keyfunc
	Q    *redis.Client
	Calc *sla.Calculator
}

// NewApp constructs an App with injected dependencies. db and q may be nil.
func NewApp(cfg Config, db DB, keyf jwt.Keyfunc, q *redis.Client, calc *sla.Calculator) *App {
	a := &App{Cfg: cfg, DB: db, R: gin.New(), Keyf: keyf, Q: q, Calc: calc}
	a.R.Use(gin.Recovery())
	a.R.Use(RequestID())
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst > 0 {
		rl := rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
		a.R.Use(RateLimit(rl))
	}
	a.R.Use(Logger())
	a.R.Use(Errors())
	return a
}
