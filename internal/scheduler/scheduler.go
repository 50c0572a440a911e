// Package scheduler runs the daily subscription task: renewal
// warnings at 7/3/1 days, expiry transitions, and auto-renewal
// reconciliation. It is safe under restarts and multiple replicas.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dukahub/dukahub/internal/clock"
	"github.com/dukahub/dukahub/internal/lock"
	"github.com/dukahub/dukahub/internal/notification"
	obsmetrics "github.com/dukahub/dukahub/internal/observability/metrics"
	subscriptiondomain "github.com/dukahub/dukahub/internal/subscription/domain"
	"github.com/dukahub/dukahub/pkg/db"
)

const (
	dailyLockKey = "dukahub:scheduler:daily"
	dayLayout    = "2006-01-02"
)

var warningThresholds = []int{7, 3, 1}

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	SubscriptionSvc subscriptiondomain.Service
	NotificationSvc notification.Service
	GenID           *snowflake.Node
	Clock           clock.Clock
	Locker          *lock.Locker `optional:"true"`
	Config          Config       `optional:"true"`
}

type Scheduler struct {
	db              *gorm.DB
	log             *zap.Logger
	cfg             Config
	subscriptionSvc subscriptiondomain.Service
	notificationSvc notification.Service
	genID           *snowflake.Node
	clock           clock.Clock
	locker          *lock.Locker
}

// dueTenant is the projection the daily task works on. Only
// organization roots carry subscription state.
type dueTenant struct {
	ID                 snowflake.ID `gorm:"column:id"`
	SubscriptionStatus string       `gorm:"column:subscription_status"`
	TrialEndsAt        *time.Time   `gorm:"column:trial_ends_at"`
	NextBillingDate    *time.Time   `gorm:"column:next_billing_date"`
	AutoRenewalEnabled bool         `gorm:"column:auto_renewal_enabled"`
}

func (t dueTenant) effectiveEnd() *time.Time {
	if t.SubscriptionStatus == "trial" {
		return t.TrialEndsAt
	}
	return t.NextBillingDate
}

func New(p Params) *Scheduler {
	return &Scheduler{
		db:              p.DB,
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		subscriptionSvc: p.SubscriptionSvc,
		notificationSvc: p.NotificationSvc,
		genID:           p.GenID,
		clock:           p.Clock,
		locker:          p.Locker,
	}
}

// RunForever wakes every CheckInterval and fires the daily task once
// the configured time of day has passed. A day missed during downtime
// is caught up on the first wake after restart.
func (s *Scheduler) RunForever(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		start := s.clock.Now()
		if s.shouldFire(ctx, start) {
			if err := s.RunOnce(ctx); err != nil {
				s.log.Error("daily run failed", zap.Error(err))
			}
			obsmetrics.Scheduler().ObserveRunLoopLag(s.clock.Now().Sub(start))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) shouldFire(ctx context.Context, now time.Time) bool {
	fireAt, err := fireTime(now.UTC(), s.cfg.DailyTime)
	if err != nil {
		s.log.Warn("invalid daily time", zap.String("daily_time", s.cfg.DailyTime), zap.Error(err))
		fireAt, _ = fireTime(now.UTC(), DefaultConfig().DailyTime)
	}
	if now.UTC().Before(fireAt) {
		return false
	}
	var count int64
	day := now.UTC().Format(dayLayout)
	if err := s.db.WithContext(ctx).
		Model(&SchedulerRun{}).
		Where("day = ?", day).
		Count(&count).Error; err != nil {
		s.log.Warn("sentinel check failed", zap.Error(err))
		return false
	}
	return count == 0
}

// RunOnce performs one full daily pass. It claims the day sentinel
// first, so concurrent replicas and repeated calls for the same day
// are no-ops.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := s.clock.Now().UTC()

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, dailyLockKey, s.cfg.LockTTL)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		defer func() {
			if err := s.locker.Release(ctx, dailyLockKey, token); err != nil {
				s.log.Warn("lock release failed", zap.Error(err))
			}
		}()
	}

	claimed, err := s.claimDay(ctx, now)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	s.log.Info("daily run starting", zap.String("day", now.Format(dayLayout)))
	if err := s.runJob(ctx, "renewal_warnings", s.sendWarnings); err != nil {
		return err
	}
	if err := s.runJob(ctx, "expiries", s.expirePastDue); err != nil {
		return err
	}
	if err := s.runJob(ctx, "auto_renewal_reconcile", s.reconcileAutoRenewals); err != nil {
		return err
	}
	return s.runJob(ctx, "notification_dispatch", func(ctx context.Context) error {
		sent, err := s.notificationSvc.DispatchPending(ctx, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		obsmetrics.Scheduler().ObserveBatchProcessed("notification_dispatch", "notifications", sent)
		return nil
	})
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.ObserveJobStart(name)
	start := s.clock.Now()

	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			schedMetrics.ObserveJobTimeout(name)
		}
		schedMetrics.ObserveJobError(name, obsmetrics.ClassifyJobError(err))
		s.log.Error("job failed", zap.String("job", name), zap.Error(err))
		return err
	}
	return nil
}

func (s *Scheduler) claimDay(ctx context.Context, now time.Time) (bool, error) {
	run := SchedulerRun{
		ID:    s.genID.Generate(),
		Day:   now.Format(dayLayout),
		RanAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Scheduler) sendWarnings(ctx context.Context) error {
	now := s.clock.Now().UTC()
	sent := 0
	for _, threshold := range warningThresholds {
		horizon := now.Add(time.Duration(threshold) * 24 * time.Hour)
		var tenants []dueTenant
		err := s.db.WithContext(ctx).Raw(
			`SELECT id, subscription_status, trial_ends_at, next_billing_date, auto_renewal_enabled
			 FROM tenants
			 WHERE parent_id IS NULL
			   AND subscription_status IN ('trial', 'active')
			   AND (CASE WHEN subscription_status = 'trial' THEN trial_ends_at ELSE next_billing_date END) > ?
			   AND (CASE WHEN subscription_status = 'trial' THEN trial_ends_at ELSE next_billing_date END) <= ?
			 ORDER BY id
			 LIMIT ?`,
			now, horizon, s.cfg.BatchSize,
		).Scan(&tenants).Error
		if err != nil {
			return err
		}

		for _, tenant := range tenants {
			end := tenant.effectiveEnd()
			if end == nil {
				continue
			}
			marked, err := s.markWarning(ctx, tenant.ID, threshold, *end, now)
			if err != nil {
				return err
			}
			if !marked {
				continue
			}
			if err := s.notificationSvc.EnqueueRenewalWarning(ctx, tenant.ID, threshold, *end); err != nil {
				return err
			}
			sent++
		}
	}
	obsmetrics.Scheduler().ObserveBatchProcessed("renewal_warnings", "tenants", sent)
	return nil
}

// markWarning claims the (tenant, threshold, period end) slot; false
// means another run already warned.
func (s *Scheduler) markWarning(ctx context.Context, tenantID snowflake.ID, threshold int, periodEnd, now time.Time) (bool, error) {
	marker := WarningMarker{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Threshold: threshold,
		PeriodEnd: periodEnd,
		SentAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&marker).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Scheduler) expirePastDue(ctx context.Context) error {
	now := s.clock.Now().UTC()
	var tenants []dueTenant
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, subscription_status, trial_ends_at, next_billing_date, auto_renewal_enabled
		 FROM tenants
		 WHERE parent_id IS NULL
		   AND ((subscription_status IN ('trial', 'active')
		         AND (CASE WHEN subscription_status = 'trial' THEN trial_ends_at ELSE next_billing_date END) <= ?)
		     OR (subscription_status = 'cancelled' AND next_billing_date <= ?))
		 ORDER BY id
		 LIMIT ?`,
		now, now, s.cfg.BatchSize,
	).Scan(&tenants).Error
	if err != nil {
		return err
	}

	expired := 0
	for _, tenant := range tenants {
		if tenant.effectiveEnd() == nil {
			continue
		}
		if err := s.subscriptionSvc.Expire(ctx, tenant.ID, now); err != nil {
			return fmt.Errorf("expire tenant %s: %w", tenant.ID, err)
		}
		if err := s.notificationSvc.EnqueueExpired(ctx, tenant.ID); err != nil {
			return err
		}
		expired++
		s.log.Info("tenant expired",
			zap.String("tenant_id", tenant.ID.String()),
			zap.String("previous_status", tenant.SubscriptionStatus),
		)
	}
	obsmetrics.Scheduler().ObserveBatchProcessed("expiries", "tenants", expired)
	return nil
}

// reconcileAutoRenewals validates saved selections ahead of the
// gateway's recurring charge; it never initiates a charge itself.
func (s *Scheduler) reconcileAutoRenewals(ctx context.Context) error {
	now := s.clock.Now().UTC()
	horizon := now.Add(3 * 24 * time.Hour)
	var tenants []dueTenant
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, subscription_status, trial_ends_at, next_billing_date, auto_renewal_enabled
		 FROM tenants
		 WHERE parent_id IS NULL
		   AND subscription_status = 'active'
		   AND auto_renewal_enabled = ?
		   AND next_billing_date <= ?
		 ORDER BY id
		 LIMIT ?`,
		true, horizon, s.cfg.BatchSize,
	).Scan(&tenants).Error
	if err != nil {
		return err
	}

	for _, tenant := range tenants {
		plan, err := s.subscriptionSvc.ReconcileAutoRenewal(ctx, tenant.ID)
		if err != nil {
			s.log.Warn("auto-renewal reconcile failed",
				zap.String("tenant_id", tenant.ID.String()),
				zap.Error(err),
			)
			continue
		}
		s.log.Info("auto-renewal reconciled",
			zap.String("tenant_id", tenant.ID.String()),
			zap.String("cycle", string(plan.Cycle)),
			zap.Int("branch_count", len(plan.BranchIDs)),
			zap.Int64("amount", plan.Amount),
		)
	}
	obsmetrics.Scheduler().ObserveBatchProcessed("auto_renewal_reconcile", "tenants", len(tenants))
	return nil
}

func fireTime(now time.Time, daily string) (time.Time, error) {
	parts := strings.SplitN(daily, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("malformed daily time %q", daily)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("malformed daily time %q", daily)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("malformed daily time %q", daily)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC), nil
}
