package models

import "time"

// SubscriptionStatus mirrors the billing provider's subscription lifecycle
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Subscription is the billing state of one user
type Subscription struct {
	UserID               string             `gorm:"primaryKey;size:64" json:"user_id"`
	StripeCustomerID     string             `gorm:"index;size:255" json:"stripe_customer_id,omitzero"`
	StripeSubscriptionID string             `gorm:"uniqueIndex;size:255" json:"stripe_subscription_id"`
	Status               SubscriptionStatus `gorm:"index;not null;size:32" json:"status"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty"`
	UpdatedAt            time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// IsActive reports whether the subscription entitles the user to auto-posting
func (s Subscription) IsActive(now time.Time) bool {
	if s.Status != SubscriptionActive && s.Status != SubscriptionTrialing {
		return false
	}
	return s.CurrentPeriodEnd == nil || s.CurrentPeriodEnd.After(now)
}

// WebhookEvent is the raw record of one delivered billing event
type WebhookEvent struct {
	ID         string    `gorm:"primaryKey;size:255" json:"id"`
	EventType  string    `gorm:"index;size:128" json:"event_type"`
	Payload    string    `gorm:"type:text" json:"-"`
	ReceivedAt time.Time `gorm:"not null" json:"received_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
