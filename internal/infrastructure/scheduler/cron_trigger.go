package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strata/backend/internal/domain/shared/valueobject"
)

// TenantProvider provides a list of tenants for scheduling
type TenantProvider interface {
	GetAllActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// cronSpec is a parsed five-field cron expression (minute, hour, day of
// month, month, day of week). Fields accept a number or "*"; that covers
// every schedule the configuration exposes.
type cronSpec struct {
	minute int
	hour   int
	dom    int
	month  int
	dow    int
}

const cronAny = -1

// parseCronSpec parses a five-field cron expression
func parseCronSpec(spec string) (cronSpec, error) {
	fields := strings.Fields(spec)
	if len(fields) != 5 {
		return cronSpec{}, fmt.Errorf("%w: %q has %d fields, want 5", ErrInvalidCronSpec, spec, len(fields))
	}
	values := make([]int, 5)
	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	for i, field := range fields {
		if field == "*" {
			values[i] = cronAny
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			return cronSpec{}, fmt.Errorf("%w: field %q is not a number or *", ErrInvalidCronSpec, field)
		}
		if n < bounds[i][0] || n > bounds[i][1] {
			return cronSpec{}, fmt.Errorf("%w: field %q out of range", ErrInvalidCronSpec, field)
		}
		values[i] = n
	}
	return cronSpec{minute: values[0], hour: values[1], dom: values[2], month: values[3], dow: values[4]}, nil
}

// matches reports whether the spec fires at the given minute
func (c cronSpec) matches(t time.Time) bool {
	if c.minute != cronAny && c.minute != t.Minute() {
		return false
	}
	if c.hour != cronAny && c.hour != t.Hour() {
		return false
	}
	if c.dom != cronAny && c.dom != t.Day() {
		return false
	}
	if c.month != cronAny && c.month != int(t.Month()) {
		return false
	}
	if c.dow != cronAny && c.dow != int(t.Weekday()) {
		return false
	}
	return true
}

// CronTriggerConfig holds configuration for the cron trigger
type CronTriggerConfig struct {
	// DailySpec schedules the daily maintenance fan-out (drift sampling,
	// invite sweep, settle-result cleanup)
	DailySpec string

	// DuesSpec schedules the monthly dues generation fan-out
	DuesSpec string

	// CheckInterval is how often to check if it's time to run
	CheckInterval time.Duration
}

// DefaultCronTriggerConfig returns default cron trigger configuration
func DefaultCronTriggerConfig() CronTriggerConfig {
	return CronTriggerConfig{
		DailySpec:     "0 2 * * *",
		DuesSpec:      "0 3 1 * *",
		CheckInterval: time.Minute,
	}
}

// CronTrigger fans scheduled maintenance out to every active tenant
type CronTrigger struct {
	config         CronTriggerConfig
	daily          cronSpec
	dues           cronSpec
	scheduler      *Scheduler
	tenantProvider TenantProvider
	logger         *zap.Logger

	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.Mutex
	isRunning    bool
	lastDailyRun string // date of the last daily fan-out
	lastDuesRun  string // period of the last dues fan-out
}

// NewCronTrigger creates a new cron trigger
func NewCronTrigger(
	config CronTriggerConfig,
	scheduler *Scheduler,
	tenantProvider TenantProvider,
	logger *zap.Logger,
) (*CronTrigger, error) {
	daily, err := parseCronSpec(config.DailySpec)
	if err != nil {
		return nil, fmt.Errorf("daily schedule: %w", err)
	}
	dues, err := parseCronSpec(config.DuesSpec)
	if err != nil {
		return nil, fmt.Errorf("dues schedule: %w", err)
	}
	return &CronTrigger{
		config:         config,
		daily:          daily,
		dues:           dues,
		scheduler:      scheduler,
		tenantProvider: tenantProvider,
		logger:         logger,
	}, nil
}

// Start starts the cron trigger
func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Cron trigger started",
		zap.String("daily_spec", c.config.DailySpec),
		zap.String("dues_spec", c.config.DuesSpec),
		zap.Duration("check_interval", c.config.CheckInterval),
	)

	return nil
}

// Stop stops the cron trigger
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLoop checks periodically if a schedule fires
func (c *CronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndTrigger(ctx, time.Now())
		}
	}
}

// checkAndTrigger fires any schedule matching the current minute
func (c *CronTrigger) checkAndTrigger(ctx context.Context, now time.Time) {
	currentDate := now.Format("2006-01-02")
	currentPeriod := valueobject.Period{Year: now.Year(), Month: int(now.Month())}

	if c.daily.matches(now) {
		c.mu.Lock()
		alreadyRan := c.lastDailyRun == currentDate
		if !alreadyRan {
			c.lastDailyRun = currentDate
		}
		c.mu.Unlock()

		if !alreadyRan {
			c.logger.Info("Triggering daily maintenance")
			c.triggerDailyMaintenance(ctx)
		}
	}

	if c.dues.matches(now) {
		c.mu.Lock()
		alreadyRan := c.lastDuesRun == currentPeriod.String()
		if !alreadyRan {
			c.lastDuesRun = currentPeriod.String()
		}
		c.mu.Unlock()

		if !alreadyRan {
			c.logger.Info("Triggering monthly dues generation",
				zap.String("period", currentPeriod.String()),
			)
			c.triggerDuesGeneration(ctx, currentPeriod)
		}
	}
}

// triggerDailyMaintenance queues the daily jobs for all tenants
func (c *CronTrigger) triggerDailyMaintenance(ctx context.Context) {
	tenantIDs, err := c.tenantProvider.GetAllActiveTenantIDs(ctx)
	if err != nil {
		c.logger.Error("Failed to get tenant IDs for daily maintenance", zap.Error(err))
		return
	}

	c.logger.Info("Scheduling daily maintenance for tenants",
		zap.Int("tenant_count", len(tenantIDs)),
	)

	for _, tenantID := range tenantIDs {
		tid := tenantID
		if err := c.scheduler.ScheduleDailyMaintenance(&tid); err != nil {
			c.logger.Error("Failed to schedule daily maintenance for tenant",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
		}
	}
}

// triggerDuesGeneration queues a dues run for all tenants
func (c *CronTrigger) triggerDuesGeneration(ctx context.Context, period valueobject.Period) {
	tenantIDs, err := c.tenantProvider.GetAllActiveTenantIDs(ctx)
	if err != nil {
		c.logger.Error("Failed to get tenant IDs for dues generation", zap.Error(err))
		return
	}

	c.logger.Info("Scheduling dues generation for tenants",
		zap.Int("tenant_count", len(tenantIDs)),
		zap.String("period", period.String()),
	)

	for _, tenantID := range tenantIDs {
		tid := tenantID
		if err := c.scheduler.ScheduleDuesGeneration(&tid, period); err != nil {
			c.logger.Error("Failed to schedule dues generation for tenant",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
		}
	}
}

// TriggerManualDuesRun queues a dues run for one tenant outside the schedule
func (c *CronTrigger) TriggerManualDuesRun(tenantID uuid.UUID, period valueobject.Period) error {
	return c.scheduler.ScheduleDuesGeneration(&tenantID, period)
}
