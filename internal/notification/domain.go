// Package notification is the outbound queue for subscription
// lifecycle messages. Delivery is a collaborator behind the Sender
// interface; the queue rows are the contract.
package notification

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Kind string

const (
	KindRenewalWarning      Kind = "renewal_warning"
	KindSubscriptionExpired Kind = "subscription_expired"
)

type Urgency string

const (
	UrgencyInfo     Urgency = "info"
	UrgencyWarning  Urgency = "warning"
	UrgencyCritical Urgency = "critical"
)

// UrgencyForDays maps the warning thresholds to urgency levels.
func UrgencyForDays(daysLeft int) Urgency {
	switch {
	case daysLeft <= 1:
		return UrgencyCritical
	case daysLeft <= 3:
		return UrgencyWarning
	default:
		return UrgencyInfo
	}
}

type Notification struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID   `gorm:"not null;index" json:"tenant_id"`
	Kind      Kind           `gorm:"size:32;not null" json:"kind"`
	Urgency   Urgency        `gorm:"size:16;not null" json:"urgency"`
	Payload   datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
	SentAt    *time.Time     `json:"sent_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

// Sender delivers one notification. The default implementation only
// logs; real channels (email, SMS) plug in here.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

type Service interface {
	EnqueueRenewalWarning(ctx context.Context, tenantID snowflake.ID, daysLeft int, periodEnd time.Time) error
	EnqueueExpired(ctx context.Context, tenantID snowflake.ID) error
	ListPending(ctx context.Context, limit int) ([]Notification, error)

	// DispatchPending sends queued notifications through the sender and
	// stamps them sent. Failures stay queued for the next pass.
	DispatchPending(ctx context.Context, limit int) (int, error)
}
