// Package posts reads and updates scheduled posts and the accounts they publish with.
package posts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/postcraft/edge/internal/models"
	"gorm.io/gorm"
)

// Repository is the gorm-backed store for the auto-post sweep
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ActiveSubscriberIDs returns users whose subscription is active or trialing at now
func (r *Repository) ActiveSubscriberIDs(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("status IN ?", []models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionTrialing}).
		Where("current_period_end IS NULL OR current_period_end > ?", now).
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load active subscribers: %w", err)
	}
	return ids, nil
}

// DuePosts returns scheduled or previously failed posts of userIDs that are due at now
func (r *Repository) DuePosts(ctx context.Context, userIDs []string, now time.Time, limit int) ([]models.ScheduledPost, error) {
	if len(userIDs) == 0 {
		return []models.ScheduledPost{}, nil
	}

	q := r.db.WithContext(ctx).
		Where("status IN ?", []models.PostStatus{models.PostStatusScheduled, models.PostStatusFailed}).
		Where("scheduled_at <= ?", now).
		Where("user_id IN ?", userIDs).
		Order("scheduled_at")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var due []models.ScheduledPost
	if err := q.Find(&due).Error; err != nil {
		return nil, fmt.Errorf("load due posts: %w", err)
	}
	return due, nil
}

// AccountFor returns the user's account on platform, or nil when none is connected
func (r *Repository) AccountFor(ctx context.Context, userID string, platform models.Platform) (*models.SocialAccount, error) {
	var acct models.SocialAccount
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND platform = ?", userID, platform).
		First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s account: %w", platform, err)
	}
	return &acct, nil
}

// MarkSuccess records the external id and publish time
func (r *Repository) MarkSuccess(ctx context.Context, postID, externalID string, postedAt time.Time) error {
	return r.update(ctx, postID, map[string]any{
		"status":           models.PostStatusSuccess,
		"external_post_id": externalID,
		"error_message":    "",
		"posted_at":        postedAt,
	})
}

// MarkFailed leaves the post eligible for the next sweep
func (r *Repository) MarkFailed(ctx context.Context, postID, reason string) error {
	return r.update(ctx, postID, map[string]any{
		"status":        models.PostStatusFailed,
		"error_message": reason,
	})
}

func (r *Repository) update(ctx context.Context, postID string, fields map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&models.ScheduledPost{}).
		Where("id = ?", postID).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update post %s: %w", postID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update post %s: %w", postID, gorm.ErrRecordNotFound)
	}
	return nil
}
