package app

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/deskline/helpdesk-sla/internal/events"
	"github.com/deskline/helpdesk-sla/internal/holidays"
	"github.com/deskline/helpdesk-sla/internal/sla"
)

// MinIO returns a client for the configured endpoint, or nil when none is set.
func (cfg Config) MinIO() (*minio.Client, error) {
	if cfg.MinIOEndpoint == "" {
		return nil, nil
	}
	return minio.New(cfg.MinIOEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIOAccess, cfg.MinIOSecret, ""),
		Secure: cfg.MinIOUseSSL,
	})
}

// HolidaySource assembles the holiday sources. Without a database the YAML
// file, the object store and the built-in list are tried in that order. With
// one, postgres is authoritative and those sources only seed a calendar that
// has never stored a list. The result is cached in Redis when rdb is set. db
// and mc may be nil.
func (cfg Config) HolidaySource(db holidays.DB, rdb *redis.Client, mc *minio.Client) holidays.Source {
	var chain holidays.Chain
	if cfg.HolidaysFile != "" {
		chain = append(chain, holidays.FileSource{Path: cfg.HolidaysFile})
	}
	if mc != nil && cfg.HolidaysObjectKey != "" {
		chain = append(chain, holidays.NewObjectSource(mc, cfg.MinIOBucket, cfg.HolidaysObjectKey))
	}
	chain = append(chain, holidays.FromDates(sla.DefaultHolidays2025))
	var src holidays.Source = chain
	if db != nil {
		src = holidays.Seeded{Store: holidays.DBSource{DB: db, CalendarID: cfg.CalendarID}, Seed: chain}
	}
	return holidays.Cached{Source: src, RDB: rdb, Key: holidays.CacheKey(cfg.CalendarID), TTL: cfg.HolidayCacheTTL}
}

// NewCalculator builds the calculator used by the API and the worker. A
// calendars row in postgres takes precedence over the environment for the
// zone and per-weekday hours; holidays always come from src.
func NewCalculator(ctx context.Context, cfg Config, db sla.DB, src holidays.Source) (*sla.Calculator, []holidays.Holiday, error) {
	var cal *sla.WorkCalendar
	if db != nil {
		c, err := sla.LoadCalendar(ctx, db, cfg.CalendarID)
		switch {
		case err == nil:
			cal = c
		case errors.Is(err, pgx.ErrNoRows):
			log.Info().Str("calendar", cfg.CalendarID).Msg("no stored calendar, using environment")
		default:
			return nil, nil, err
		}
	}
	if cal == nil {
		c, err := cfg.WorkCalendar(nil)
		if err != nil {
			return nil, nil, err
		}
		cal = c
	}
	hs, err := src.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	return sla.NewCalculator(cal.WithHolidays(holidays.Dates(hs))), hs, nil
}

// WatchCalendar reloads the holiday set into calc from src each time a
// calendar_changed event arrives on Redis, so every replica follows a
// replacement made through any other. It returns when ctx is done. ready, if
// not nil, is closed once the subscription is live.
func WatchCalendar(ctx context.Context, rdb *redis.Client, src holidays.Source, calc *sla.Calculator, ready chan<- struct{}) {
	sub := rdb.Subscribe(ctx, events.Channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		log.Error().Err(err).Msg("subscribe calendar events")
		return
	}
	if ready != nil {
		close(ready)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev events.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.Type != events.CalendarChanged {
				continue
			}
			hs, err := src.Load(ctx)
			if err != nil {
				log.Error().Err(err).Msg("reload holidays")
				continue
			}
			calc.SetHolidays(holidays.Dates(hs))
			log.Info().Int("holidays", len(hs)).Msg("holidays reloaded")
		}
	}
}
