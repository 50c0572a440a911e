package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dukahub/dukahub/internal/clock"
	"github.com/dukahub/dukahub/internal/observability/metrics"
)

type consoleSender struct {
	log *zap.Logger
}

// NewConsoleSender logs instead of delivering; the default until a
// real channel is configured.
func NewConsoleSender(log *zap.Logger) Sender {
	return &consoleSender{log: log.Named("notification.sender")}
}

func (s *consoleSender) Send(_ context.Context, n Notification) error {
	s.log.Info("notification",
		zap.String("tenant_id", n.TenantID.String()),
		zap.String("kind", string(n.Kind)),
		zap.String("urgency", string(n.Urgency)),
	)
	return nil
}

type service struct {
	db      *gorm.DB
	sender  Sender
	genID   *snowflake.Node
	clk     clock.Clock
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewService(
	conn *gorm.DB,
	sender Sender,
	genID *snowflake.Node,
	clk clock.Clock,
	m *metrics.Metrics,
	log *zap.Logger,
) Service {
	return &service{
		db:      conn,
		sender:  sender,
		genID:   genID,
		clk:     clk,
		metrics: m,
		log:     log.Named("notification"),
	}
}

func (s *service) EnqueueRenewalWarning(ctx context.Context, tenantID snowflake.ID, daysLeft int, periodEnd time.Time) error {
	payload, err := json.Marshal(map[string]interface{}{
		"days_left":  daysLeft,
		"period_end": periodEnd.Format(time.RFC3339),
		"message":    fmt.Sprintf("Your subscription ends in %d day(s). Renew to keep full access.", daysLeft),
	})
	if err != nil {
		return err
	}
	return s.enqueue(ctx, Notification{
		ID:       s.genID.Generate(),
		TenantID: tenantID,
		Kind:     KindRenewalWarning,
		Urgency:  UrgencyForDays(daysLeft),
		Payload:  datatypes.JSON(payload),
	})
}

func (s *service) EnqueueExpired(ctx context.Context, tenantID snowflake.ID) error {
	payload, err := json.Marshal(map[string]interface{}{
		"message": "Your subscription has expired. The account is read-only until payment.",
	})
	if err != nil {
		return err
	}
	return s.enqueue(ctx, Notification{
		ID:       s.genID.Generate(),
		TenantID: tenantID,
		Kind:     KindSubscriptionExpired,
		Urgency:  UrgencyCritical,
		Payload:  datatypes.JSON(payload),
	})
}

func (s *service) enqueue(ctx context.Context, n Notification) error {
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return err
	}
	s.metrics.RecordNotificationEnqueued(string(n.Kind))
	return nil
}

func (s *service) ListPending(ctx context.Context, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	var pending []Notification
	err := s.db.WithContext(ctx).
		Where("sent_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&pending).Error
	return pending, err
}

func (s *service) DispatchPending(ctx context.Context, limit int) (int, error) {
	pending, err := s.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, n := range pending {
		if err := s.sender.Send(ctx, n); err != nil {
			s.log.Warn("notification send failed",
				zap.String("notification_id", n.ID.String()),
				zap.Error(err),
			)
			continue
		}
		now := s.clk.Now()
		if err := s.db.WithContext(ctx).
			Model(&Notification{}).
			Where("id = ?", n.ID).
			Update("sent_at", now).Error; err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}
