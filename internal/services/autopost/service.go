// Package autopost publishes due scheduled posts for subscribed users.
package autopost

import (
	"context"
	"time"

	"github.com/postcraft/edge/internal/models"
	"github.com/postcraft/edge/internal/services/pool"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Store is the persistence the sweep needs
type Store interface {
	ActiveSubscriberIDs(ctx context.Context, now time.Time) ([]string, error)
	DuePosts(ctx context.Context, userIDs []string, now time.Time, limit int) ([]models.ScheduledPost, error)
	AccountFor(ctx context.Context, userID string, platform models.Platform) (*models.SocialAccount, error)
	MarkSuccess(ctx context.Context, postID, externalID string, postedAt time.Time) error
	MarkFailed(ctx context.Context, postID, reason string) error
}

// Publisher sends one post to its platform
type Publisher interface {
	Publish(ctx context.Context, post *models.ScheduledPost, acct *models.SocialAccount) (string, error)
}

// Observer counts publish outcomes per platform
type Observer interface {
	ObservePost(platform, status string)
}

// Result summarises one sweep
type Result struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type Options struct {
	Concurrency int
	// BatchSize caps posts per sweep; zero means no cap
	BatchSize int
	// PostTimeout bounds one post's publish including media uploads
	PostTimeout time.Duration
}

type Service struct {
	store     Store
	publisher Publisher
	observer  Observer
	opts      Options
	now       func() time.Time
}

func NewService(store Store, publisher Publisher, opts Options) *Service {
	if opts.Concurrency < 1 {
		opts.Concurrency = 3
	}
	return &Service{
		store:     store,
		publisher: publisher,
		opts:      opts,
		now:       time.Now,
	}
}

func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

// Run publishes every due post. Individual failures are recorded on the post
// and never abort the sweep; only loading the work can fail.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	now := s.now().UTC()

	users, err := s.store.ActiveSubscriberIDs(ctx, now)
	if err != nil {
		return nil, err
	}
	due, err := s.store.DuePosts(ctx, users, now, s.opts.BatchSize)
	if err != nil {
		return nil, err
	}

	fiberlog.Infof("auto-post sweep: %d subscribers, %d due posts", len(users), len(due))

	outcomes, _ := pool.Run(ctx, due, s.opts.Concurrency, func(ctx context.Context, post models.ScheduledPost, _ int) (bool, error) {
		return s.publishOne(ctx, &post), nil
	})

	res := &Result{Processed: len(due)}
	for _, ok := range outcomes {
		if ok {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	fiberlog.Infow("auto-post sweep finished", "processed", res.Processed, "succeeded", res.Succeeded, "failed", res.Failed)
	return res, nil
}

func (s *Service) publishOne(ctx context.Context, post *models.ScheduledPost) bool {
	if s.opts.PostTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.PostTimeout)
		defer cancel()
	}

	externalID, err := s.publish(ctx, post)
	// status writes outlive the publish deadline
	writeCtx := context.WithoutCancel(ctx)

	if err != nil {
		fiberlog.Warnf("[post %s] %s publish failed: %v", post.ID, post.Platform, err)
		s.observe(post.Platform, models.PostStatusFailed)
		if markErr := s.store.MarkFailed(writeCtx, post.ID, err.Error()); markErr != nil {
			fiberlog.Errorf("[post %s] mark failed: %v", post.ID, markErr)
		}
		return false
	}

	s.observe(post.Platform, models.PostStatusSuccess)
	if markErr := s.store.MarkSuccess(writeCtx, post.ID, externalID, s.now().UTC()); markErr != nil {
		fiberlog.Errorf("[post %s] mark success: %v", post.ID, markErr)
	}
	fiberlog.Infof("[post %s] published to %s as %s", post.ID, post.Platform, externalID)
	return true
}

func (s *Service) publish(ctx context.Context, post *models.ScheduledPost) (string, error) {
	acct, err := s.store.AccountFor(ctx, post.UserID, post.Platform)
	if err != nil {
		return "", err
	}
	if acct == nil {
		// publishers report the platform-specific not-connected error
		acct = &models.SocialAccount{UserID: post.UserID, Platform: post.Platform}
	}
	return s.publisher.Publish(ctx, post, acct)
}

func (s *Service) observe(platform models.Platform, status models.PostStatus) {
	if s.observer != nil {
		s.observer.ObservePost(string(platform), string(status))
	}
}
