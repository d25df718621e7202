package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/strata/backend/internal/application/dues"
	"github.com/strata/backend/internal/application/reconcile"
	apptenancy "github.com/strata/backend/internal/application/tenancy"
	"github.com/strata/backend/internal/domain/ledger"
)

// MaintenanceExecutorConfig tunes the individual maintenance jobs
type MaintenanceExecutorConfig struct {
	// DriftSamplingEnabled gates the scheduled drift sampler; rebuilds and
	// manual sampling stay available when it is off
	DriftSamplingEnabled bool

	// SettleResultRetention is how long idempotent settlement results are
	// kept before cleanup removes them
	SettleResultRetention time.Duration
}

// MaintenanceExecutor runs the scheduled maintenance jobs against the
// application services
type MaintenanceExecutor struct {
	config    MaintenanceExecutorConfig
	generator *dues.Generator
	reconcile *reconcile.Service
	invites   *apptenancy.InviteService
	store     ledger.Store
	logger    *zap.Logger
}

// NewMaintenanceExecutor creates a new maintenance executor
func NewMaintenanceExecutor(
	config MaintenanceExecutorConfig,
	generator *dues.Generator,
	reconcileService *reconcile.Service,
	invites *apptenancy.InviteService,
	store ledger.Store,
	logger *zap.Logger,
) *MaintenanceExecutor {
	return &MaintenanceExecutor{
		config:    config,
		generator: generator,
		reconcile: reconcileService,
		invites:   invites,
		store:     store,
		logger:    logger,
	}
}

// Execute dispatches a job to the service that implements it
func (e *MaintenanceExecutor) Execute(ctx context.Context, job *Job) error {
	switch job.Type {
	case JobTypeDuesGeneration:
		return e.runDuesGeneration(ctx, job)
	case JobTypeDriftSampling:
		return e.runDriftSampling(ctx, job)
	case JobTypeInviteSweep:
		return e.runInviteSweep(ctx)
	case JobTypeSettleResultCleanup:
		return e.runSettleResultCleanup(ctx)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidJobType, job.Type)
	}
}

func (e *MaintenanceExecutor) runDuesGeneration(ctx context.Context, job *Job) error {
	if job.TenantID == nil {
		return fmt.Errorf("dues generation requires a tenant")
	}
	result, err := e.generator.RunMonthlyDues(ctx, dues.RunRequest{
		TenantID: *job.TenantID,
		Period:   job.Period,
	})
	if err != nil {
		return err
	}
	e.logger.Info("Scheduled dues generation finished",
		zap.String("tenant_id", job.TenantID.String()),
		zap.String("period", job.Period.String()),
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	if result.Failed > 0 {
		return fmt.Errorf("dues generation completed with %d failed units", result.Failed)
	}
	return nil
}

func (e *MaintenanceExecutor) runDriftSampling(ctx context.Context, job *Job) error {
	if !e.config.DriftSamplingEnabled {
		e.logger.Debug("Drift sampling disabled, skipping")
		return nil
	}
	if job.TenantID == nil {
		return fmt.Errorf("drift sampling requires a tenant")
	}
	result, err := e.reconcile.SampleBalanceDrift(ctx, *job.TenantID)
	if err != nil {
		return err
	}
	e.logger.Info("Scheduled drift sampling finished",
		zap.String("tenant_id", job.TenantID.String()),
		zap.Int("sampled", result.SampledCount),
		zap.Int("drifted", result.DriftedCount),
	)
	return nil
}

func (e *MaintenanceExecutor) runInviteSweep(ctx context.Context) error {
	result, err := e.invites.SweepInvites(ctx, time.Now())
	if err != nil {
		return err
	}
	e.logger.Info("Scheduled invite sweep finished",
		zap.Int("revoked_expired", result.RevokedExpired),
		zap.Int("cleared_stale_locks", result.ClearedStaleLocks),
	)
	return nil
}

func (e *MaintenanceExecutor) runSettleResultCleanup(ctx context.Context) error {
	// Retention counts from creation; rows store expires_at = created + TTL,
	// so a row created before now-retention has expires_at before
	// now - retention + TTL.
	cutoff := time.Now().Add(-e.config.SettleResultRetention).Add(ledger.DefaultSettleResultTTL)
	deleted, err := e.store.SettleResults().DeleteExpired(ctx, cutoff)
	if err != nil {
		return err
	}
	e.logger.Info("Scheduled settle-result cleanup finished",
		zap.Int64("deleted", deleted),
	)
	return nil
}

// Ensure MaintenanceExecutor implements JobExecutor
var _ JobExecutor = (*MaintenanceExecutor)(nil)
