package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/deskline/helpdesk-sla/internal/holidays"
	"github.com/deskline/helpdesk-sla/internal/sla"
	"github.com/deskline/helpdesk-sla/internal/ticket"
)

type calendarFlags struct {
	tz           string
	workDays     string
	dayStart     string
	dayEnd       string
	holidaysFile string
	verbose      bool
}

func (f *calendarFlags) location() (*time.Location, error) {
	if f.tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(f.tz)
}

func (f *calendarFlags) holidays(ctx context.Context) ([]holidays.Holiday, error) {
	if f.holidaysFile == "" {
		return holidays.FromDates(sla.DefaultHolidays2025).Load(ctx)
	}
	return holidays.FileSource{Path: f.holidaysFile}.Load(ctx)
}

func (f *calendarFlags) calculator(ctx context.Context) (*sla.Calculator, error) {
	loc, err := f.location()
	if err != nil {
		return nil, err
	}
	days, err := sla.ParseWorkDays(f.workDays)
	if err != nil {
		return nil, err
	}
	start, err := sla.ParseClock(f.dayStart)
	if err != nil {
		return nil, err
	}
	end, err := sla.ParseClock(f.dayEnd)
	if err != nil {
		return nil, err
	}
	hs, err := f.holidays(ctx)
	if err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}
	cal, err := sla.NewWorkCalendar(loc, days, start, end, holidays.Dates(hs))
	if err != nil {
		return nil, err
	}
	log.Debug().Str("tz", loc.String()).Int("holidays", len(hs)).Msg("calendar ready")
	return sla.NewCalculator(cal), nil
}

// parseInstant accepts RFC 3339 or a wall-clock "YYYY-MM-DD HH:MM" read in loc.
func (f *calendarFlags) parseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	loc, err := f.location()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use RFC 3339 or YYYY-MM-DD HH:MM", s)
	}
	return t, nil
}

func formatMinutes(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func newRootCmd() *cobra.Command {
	f := &calendarFlags{}
	root := &cobra.Command{
		Use:          "slacalc",
		Short:        "Business-hours calculator for helpdesk SLAs",
		Long:         `slacalc counts business minutes between instants, skipping non-work days, out-of-hours time and holidays.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if f.verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339}).Level(level)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.tz, "tz", envOr("CALENDAR_TZ", "Asia/Bangkok"), "IANA zone instants are read in")
	pf.StringVar(&f.workDays, "work-days", envOr("WORK_DAYS", "mon-fri"), "work days, e.g. mon-fri or mon,wed,fri")
	pf.StringVar(&f.dayStart, "day-start", envOr("WORK_DAY_START", "09:00"), "start of the work window (HH:MM)")
	pf.StringVar(&f.dayEnd, "day-end", envOr("WORK_DAY_END", "18:00"), "end of the work window (HH:MM)")
	pf.StringVar(&f.holidaysFile, "holidays", envOr("HOLIDAYS_FILE", ""), "YAML holiday file (default: built-in list)")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(minutesCmd(f), timesCmd(f), holidaysCmd(f))
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func minutesCmd(f *calendarFlags) *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "minutes",
		Short: "Business minutes between --start and --end",
		RunE: func(cmd *cobra.Command, args []string) error {
			calc, err := f.calculator(cmd.Context())
			if err != nil {
				return err
			}
			s, err := f.parseInstant(start)
			if err != nil {
				return err
			}
			e, err := f.parseInstant(end)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatMinutes(calc.BusinessMinutes(s, e)))
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "interval start")
	cmd.Flags().StringVar(&end, "end", "", "interval end")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func timesCmd(f *calendarFlags) *cobra.Command {
	var open, closeEstimate, due string
	cmd := &cobra.Command{
		Use:   "times",
		Short: "Estimate and lead time for a ticket opened at --open",
		RunE: func(cmd *cobra.Command, args []string) error {
			if closeEstimate == "" && due == "" {
				return fmt.Errorf("need --close-estimate or --due")
			}
			calc, err := f.calculator(cmd.Context())
			if err != nil {
				return err
			}
			opened, err := f.parseInstant(open)
			if err != nil {
				return err
			}
			var ce, dd *time.Time
			if closeEstimate != "" {
				t, err := f.parseInstant(closeEstimate)
				if err != nil {
					return err
				}
				ce = &t
			}
			if due != "" {
				t, err := f.parseInstant(due)
				if err != nil {
					return err
				}
				dd = &t
			}
			times := ticket.ComputeFrom(calc, opened, ce, dd)
			out := cmd.OutOrStdout()
			if times.EstimateTime != nil {
				fmt.Fprintf(out, "estimate_time: %s\n", formatMinutes(*times.EstimateTime))
			}
			if times.LeadTime != nil {
				fmt.Fprintf(out, "lead_time: %s\n", formatMinutes(*times.LeadTime))
			}
			if err := times.Stored().Validate(); err != nil {
				log.Warn().Err(err).Msg("figures exceed the support form bounds")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&open, "open", "", "when the ticket was opened")
	cmd.Flags().StringVar(&closeEstimate, "close-estimate", "", "proposed close time")
	cmd.Flags().StringVar(&due, "due", "", "due date")
	_ = cmd.MarkFlagRequired("open")
	return cmd
}

func holidaysCmd(f *calendarFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "holidays",
		Short: "Print the active holiday list as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			hs, err := f.holidays(cmd.Context())
			if err != nil {
				return err
			}
			return holidays.Encode(cmd.OutOrStdout(), hs)
		},
	}
}
