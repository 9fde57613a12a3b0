// Package billing verifies Stripe webhooks and keeps subscription state in sync.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/postcraft/edge/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserMetadataKey is the subscription metadata field carrying the app user id
const UserMetadataKey = "supabase_user_id"

// ErrInvalidSignature is returned when the Stripe-Signature header does not verify
var ErrInvalidSignature = errors.New("invalid webhook signature")

type Service struct {
	db            *gorm.DB
	webhookSecret string
	now           func() time.Time
}

func NewService(db *gorm.DB, cfg *models.StripeConfig) *Service {
	if cfg.SecretKey != "" {
		stripe.Key = cfg.SecretKey
	}
	return &Service{
		db:            db,
		webhookSecret: cfg.WebhookSecret,
		now:           time.Now,
	}
}

// Verify checks the Stripe-Signature header and decodes the event
func (s *Service) Verify(payload []byte, signature string) (*stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return &event, nil
}

// Apply records a verified event and applies subscription changes.
// Recording is an upsert so redelivered events are harmless.
func (s *Service) Apply(ctx context.Context, event *stripe.Event, payload []byte) error {
	record := models.WebhookEvent{
		ID:         event.ID,
		EventType:  string(event.Type),
		Payload:    string(payload),
		ReceivedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
		return fmt.Errorf("store webhook event %s: %w", event.ID, err)
	}

	if !strings.HasPrefix(string(event.Type), "customer.subscription.") {
		fiberlog.Debugf("billing webhook: ignoring %s", event.Type)
		return nil
	}
	return s.syncSubscription(ctx, event)
}

func (s *Service) syncSubscription(ctx context.Context, event *stripe.Event) error {
	if event.Data == nil {
		return fmt.Errorf("event %s has no data", event.ID)
	}
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("decode subscription in %s: %w", event.ID, err)
	}

	userID := sub.Metadata[UserMetadataKey]
	if userID == "" {
		var existing models.Subscription
		err := s.db.WithContext(ctx).Where("stripe_subscription_id = ?", sub.ID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fiberlog.Warnf("billing webhook: subscription %s has no %s metadata, skipping", sub.ID, UserMetadataKey)
			return nil
		}
		if err != nil {
			return fmt.Errorf("look up subscription %s: %w", sub.ID, err)
		}
		userID = existing.UserID
	}

	status := models.SubscriptionStatus(sub.Status)
	if event.Type == "customer.subscription.deleted" {
		status = models.SubscriptionCanceled
	}

	row := models.Subscription{
		UserID:               userID,
		StripeSubscriptionID: sub.ID,
		Status:               status,
	}
	if sub.Customer != nil {
		row.StripeCustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		row.CurrentPeriodEnd = &end
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"stripe_customer_id", "stripe_subscription_id", "status", "current_period_end", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert subscription for %s: %w", userID, err)
	}

	fiberlog.Infof("billing: subscription %s for user %s is %s", sub.ID, userID, status)
	return nil
}
