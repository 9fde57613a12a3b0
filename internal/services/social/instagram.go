package social

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/postcraft/edge/internal/models"
	"github.com/postcraft/edge/internal/services"
	"github.com/postcraft/edge/internal/services/pool"
)

// ErrInstagramNeedsImage is returned for text-only Instagram posts
var ErrInstagramNeedsImage = errors.New("Instagram requires at least one image")

// InstagramPublisher creates and publishes media containers for a business account
type InstagramPublisher struct {
	cfg    Config
	client *services.Client
}

func NewInstagramPublisher(cfg Config, client *services.Client) *InstagramPublisher {
	return &InstagramPublisher{cfg: cfg, client: client}
}

func (p *InstagramPublisher) Platform() models.Platform {
	return models.PlatformInstagram
}

func (p *InstagramPublisher) Publish(ctx context.Context, post *models.ScheduledPost, acct *models.SocialAccount) (string, error) {
	if !usable(acct) || acct.IGUserID == "" {
		return "", &NotConnectedError{Platform: models.PlatformInstagram}
	}
	if len(post.MediaURLs) == 0 {
		return "", ErrInstagramNeedsImage
	}

	var (
		container string
		err       error
	)
	switch {
	case post.PostType == models.PostTypeInstagramStory:
		container, err = p.createContainer(ctx, acct, map[string]any{
			"image_url":  post.MediaURLs[0],
			"media_type": "STORIES",
		})
	case len(post.MediaURLs) == 1:
		container, err = p.createContainer(ctx, acct, map[string]any{
			"image_url": post.MediaURLs[0],
			"caption":   post.Caption,
		})
	default:
		container, err = p.createCarousel(ctx, acct, post)
	}
	if err != nil {
		return "", err
	}

	resp, err := graphPost(ctx, p.client, p.cfg, "/"+acct.IGUserID+"/media_publish", acct.AccessToken, map[string]any{
		"creation_id": container,
	}, false)
	if err != nil {
		return "", fmt.Errorf("instagram publish: %w", err)
	}
	return resp.ID, nil
}

func (p *InstagramPublisher) createContainer(ctx context.Context, acct *models.SocialAccount, body map[string]any) (string, error) {
	resp, err := graphPost(ctx, p.client, p.cfg, "/"+acct.IGUserID+"/media", acct.AccessToken, body, true)
	if err != nil {
		return "", fmt.Errorf("instagram media container: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("instagram media container: empty id")
	}
	return resp.ID, nil
}

func (p *InstagramPublisher) createCarousel(ctx context.Context, acct *models.SocialAccount, post *models.ScheduledPost) (string, error) {
	children, err := pool.Run(ctx, post.MediaURLs, p.cfg.Concurrency, func(ctx context.Context, src string, _ int) (string, error) {
		return p.createContainer(ctx, acct, map[string]any{
			"image_url":        src,
			"is_carousel_item": true,
		})
	})
	if err != nil {
		return "", fmt.Errorf("instagram carousel items: %w", err)
	}
	return p.createContainer(ctx, acct, map[string]any{
		"media_type": "CAROUSEL",
		"children":   strings.Join(children, ","),
		"caption":    post.Caption,
	})
}
