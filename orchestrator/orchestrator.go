// Package orchestrator drives the day-ahead scheduling cycle once per CheckInterval: a single
// periodic loop (initial delay aligned to an hour boundary, then a ticker) whose body gathers
// inputs from the domain-stack providers, runs the core scheduler, and persists and serves the
// result.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/oskarsson/pvsched/blockplan"
	"github.com/oskarsson/pvsched/consumption"
	"github.com/oskarsson/pvsched/forecast"
	"github.com/oskarsson/pvsched/inverter"
	"github.com/oskarsson/pvsched/persistence"
	"github.com/oskarsson/pvsched/pricing"
	"github.com/oskarsson/pvsched/production"
	"github.com/oskarsson/pvsched/server"
)

// Config is the orchestrator's own configuration, separate from the domain-stack providers it is
// handed so that each provider can be constructed (and reused) independently.
type Config struct {
	Location           *time.Location
	CheckInterval      time.Duration
	PlanningCutoffHour int // local hour before which "today" is still plannable; see PlanningWindow
	Battery            blockplan.BatteryModel
	BatterySOH         int
	Panel              production.PanelConfig
	Diagram            consumption.WeeklyDiagram
	Fees               pricing.FeeSchedule
	ScheduleDir        string // empty disables JSON file persistence
	FallbackSOC        int    // used when no inverter.Client is configured
}

// Driver ties the domain-stack providers to the core scheduler and runs the periodic cycle:
// fetch inputs, schedule, persist, serve.
type Driver struct {
	cfg Config

	pricing     *pricing.Provider
	forecast    *forecast.Provider
	production  *production.Estimator
	consumption *consumption.Estimator
	inverter    *inverter.Client // nil disables SoC polling; FallbackSOC is used instead
	store       *persistence.PostgresStore // nil disables Postgres persistence
	srv         *server.Server             // nil disables serving
	notifier    *Notifier                  // nil disables failure notification email

	schedule *blockplan.Schedule
	logger   *log.Logger
}

// New builds a Driver. pricingProvider and forecastProvider are required; inv, store, srv and
// notifier may be nil to disable the feature they back.
func New(
	cfg Config,
	pricingProvider *pricing.Provider,
	forecastProvider *forecast.Provider,
	inv *inverter.Client,
	store *persistence.PostgresStore,
	srv *server.Server,
	notifier *Notifier,
	logger *log.Logger,
) (*Driver, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.PlanningCutoffHour == 0 {
		cfg.PlanningCutoffHour = 21
	}
	schedule, err := blockplan.New(cfg.Battery, cfg.BatterySOH)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build schedule: %w", err)
	}
	return &Driver{
		cfg:         cfg,
		pricing:     pricingProvider,
		forecast:    forecastProvider,
		production:  production.NewEstimator(),
		consumption: consumption.NewEstimator(),
		inverter:    inv,
		store:       store,
		srv:         srv,
		notifier:    notifier,
		schedule:    schedule,
		logger:      logger,
	}, nil
}

// PlanningWindow decides the window a cycle starting at now should plan: the remainder of today
// (rounded up to the next quarter boundary) if now is before the configured cutoff hour,
// otherwise the whole of tomorrow.
func (d *Driver) PlanningWindow(now time.Time) (start time.Time, quarters int) {
	now = now.In(d.cfg.Location)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), d.cfg.PlanningCutoffHour, 0, 0, 0, now.Location())
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())

	if now.Before(cutoff) {
		start = ceilToQuarter(now)
		quarters = int(midnight.Sub(start) / (15 * time.Minute))
		return start, quarters
	}
	return midnight, 96
}

// ceilToQuarter rounds t up to the next 15-minute boundary, leaving it unchanged if it already
// falls on one.
func ceilToQuarter(t time.Time) time.Time {
	truncated := t.Truncate(15 * time.Minute)
	if truncated.Before(t) {
		return truncated.Add(15 * time.Minute)
	}
	return truncated
}

// quarterTimes returns the `quarters` quarter-hour boundaries starting at start.
func quarterTimes(start time.Time, quarters int) []time.Time {
	times := make([]time.Time, quarters)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * 15 * time.Minute)
	}
	return times
}

// RunCycle executes one full planning cycle and returns the schedule it produced. Any failure
// gathering inputs or preparing the core's data aborts the cycle with an error; a failure
// persisting or serving the result is logged but does not fail the cycle, since the schedule
// itself was still computed successfully.
func (d *Driver) RunCycle(ctx context.Context) (blockplan.SchedulerResult, error) {
	start, quarters := d.PlanningWindow(time.Now())
	if quarters <= 0 {
		return blockplan.SchedulerResult{}, fmt.Errorf("orchestrator: planning window at %s has no quarters left", start.Format(time.RFC3339))
	}
	windowEnd := start.Add(time.Duration(quarters) * 15 * time.Minute)
	times := quarterTimes(start, quarters)

	var tariffs []float64
	if err := withRetry(ctx, func() (err error) {
		tariffs, err = d.pricing.QuarterHourlyTariffs(ctx, start, quarters, d.cfg.Fees)
		return err
	}); err != nil {
		return blockplan.SchedulerResult{}, fmt.Errorf("orchestrator: fetch tariffs: %w", err)
	}

	var records []forecast.Record
	if err := withRetry(ctx, func() (err error) {
		records, err = d.forecast.Get(ctx, start, windowEnd)
		return err
	}); err != nil {
		return blockplan.SchedulerResult{}, fmt.Errorf("orchestrator: fetch forecast: %w", err)
	}

	prodKWh, err := d.production.Estimate(ctx, times, records, d.cfg.Panel)
	if err != nil {
		return blockplan.SchedulerResult{}, fmt.Errorf("orchestrator: estimate production: %w", err)
	}

	consKWh, err := d.consumption.Estimate(ctx, times, d.cfg.Diagram)
	if err != nil {
		return blockplan.SchedulerResult{}, fmt.Errorf("orchestrator: estimate consumption: %w", err)
	}

	socPct := d.cfg.FallbackSOC
	if d.inverter != nil {
		var soc int
		if err := withRetry(ctx, func() (err error) {
			soc, err = d.inverter.ReadStateOfCharge(ctx)
			return err
		}); err != nil {
			return blockplan.SchedulerResult{}, fmt.Errorf("orchestrator: read state of charge: %w", err)
		}
		socPct = soc
	}

	tariffVals := make([]blockplan.TariffValue, quarters)
	prodVals := make([]blockplan.TimeValue, quarters)
	consVals := make([]blockplan.TimeValue, quarters)
	for i, q := range times {
		tariffVals[i] = blockplan.TariffValue{ValidTime: q, Buy: tariffs[i]}
		prodVals[i] = blockplan.TimeValue{ValidTime: q, Data: prodKWh[i] * 1000}
		consVals[i] = blockplan.TimeValue{ValidTime: q, Data: consKWh[i] * 1000}
	}

	preformatted, err := blockplan.PreformatData(tariffVals, prodVals, consVals, start, windowEnd)
	if err != nil {
		return blockplan.SchedulerResult{}, fmt.Errorf("orchestrator: preformat data: %w", err)
	}

	result := d.schedule.UpdateScheduling(preformatted.Tariffs, preformatted.Cons, preformatted.NetProd, socPct, start)

	if d.cfg.ScheduleDir != "" {
		if _, err := persistence.WriteScheduleFile(d.cfg.ScheduleDir, result); err != nil {
			d.logger.Printf("orchestrator: write schedule file: %v", err)
		}
	}
	if d.store != nil {
		if err := d.store.SaveSchedule(ctx, result); err != nil {
			d.logger.Printf("orchestrator: save schedule to postgres: %v", err)
		}
	}

	return result, nil
}

// Start runs RunCycle once per CheckInterval until ctx is cancelled, aligning the first run to the
// next hour boundary via getInitialDelay. Every outcome, success or failure, is published to srv
// (when configured); a failure is additionally logged and, when a Notifier is configured, emailed.
func (d *Driver) Start(ctx context.Context) error {
	delay := getInitialDelay(time.Now(), d.cfg.CheckInterval)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			d.runOnce(ctx)
			timer.Reset(d.cfg.CheckInterval)
		}
	}
}

func (d *Driver) runOnce(ctx context.Context) {
	result, err := d.RunCycle(ctx)
	if d.srv != nil {
		d.srv.Publish(result, err)
	}
	if err == nil {
		d.logger.Printf("orchestrator: cycle completed, %d blocks scheduled (%s -> %s)",
			len(result.Blocks), result.StartTime.Format(time.RFC3339), result.EndTime.Format(time.RFC3339))
		return
	}

	d.logger.Printf("orchestrator: cycle failed: %v", err)
	if d.notifier != nil {
		subject := fmt.Sprintf("scheduling cycle failed at %s", time.Now().In(d.cfg.Location).Format(time.RFC3339))
		if nerr := d.notifier.Notify(subject, err.Error()); nerr != nil {
			d.logger.Printf("orchestrator: failure notification: %v", nerr)
		}
	}
}

// retryBackoff is the fixed exponential backoff schedule for transient collaborator failures
// each external fetch gets three retries after its first attempt, 5s/10s/20s apart, giving
// up after a fourth failure.
var retryBackoff = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}

// withRetry calls fn, retrying on error per retryBackoff. It gives up early if ctx is cancelled
// during a backoff wait, returning ctx.Err().
func withRetry(ctx context.Context, fn func() error) error {
	err := fn()
	for _, wait := range retryBackoff {
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		err = fn()
	}
	return err
}

// getInitialDelay returns how long to wait for the first run of a task with the given interval to
// land on an interval boundary aligned to the top of the hour.
func getInitialDelay(now time.Time, interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	top := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	delay := now.Sub(top)
	for delay > 0 {
		delay -= interval
	}
	return -delay
}
