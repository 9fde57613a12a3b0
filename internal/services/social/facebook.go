package social

import (
	"context"
	"fmt"

	"github.com/postcraft/edge/internal/models"
	"github.com/postcraft/edge/internal/services"
	"github.com/postcraft/edge/internal/services/pool"
)

// FacebookPublisher posts to a page feed or page stories
type FacebookPublisher struct {
	cfg    Config
	client *services.Client
}

func NewFacebookPublisher(cfg Config, client *services.Client) *FacebookPublisher {
	return &FacebookPublisher{cfg: cfg, client: client}
}

func (p *FacebookPublisher) Platform() models.Platform {
	return models.PlatformFacebook
}

func (p *FacebookPublisher) Publish(ctx context.Context, post *models.ScheduledPost, acct *models.SocialAccount) (string, error) {
	if !usable(acct) || acct.PageID == "" {
		return "", &NotConnectedError{Platform: models.PlatformFacebook}
	}
	page := "/" + acct.PageID
	token := acct.AccessToken

	if post.PostType == models.PostTypeFacebookStory {
		if len(post.MediaURLs) == 0 {
			return "", fmt.Errorf("facebook story requires an image")
		}
		photo, err := graphPost(ctx, p.client, p.cfg, page+"/photos", token, map[string]any{
			"url":       post.MediaURLs[0],
			"published": false,
		}, true)
		if err != nil {
			return "", fmt.Errorf("facebook story photo: %w", err)
		}
		story, err := graphPost(ctx, p.client, p.cfg, page+"/photo_stories", token, map[string]any{
			"photo_id": photo.ID,
		}, false)
		if err != nil {
			return "", fmt.Errorf("facebook story: %w", err)
		}
		return firstNonEmpty(story.PostID, story.ID), nil
	}

	switch len(post.MediaURLs) {
	case 0:
		resp, err := graphPost(ctx, p.client, p.cfg, page+"/feed", token, map[string]any{
			"message":   post.Caption,
			"published": true,
		}, false)
		if err != nil {
			return "", fmt.Errorf("facebook feed: %w", err)
		}
		return resp.ID, nil
	case 1:
		resp, err := graphPost(ctx, p.client, p.cfg, page+"/photos", token, map[string]any{
			"url":       post.MediaURLs[0],
			"caption":   post.Caption,
			"published": true,
		}, false)
		if err != nil {
			return "", fmt.Errorf("facebook photo: %w", err)
		}
		return firstNonEmpty(resp.PostID, resp.ID), nil
	}

	// unpublished photos are attached to a single feed post
	ids, err := pool.Run(ctx, post.MediaURLs, p.cfg.Concurrency, func(ctx context.Context, src string, _ int) (string, error) {
		resp, err := graphPost(ctx, p.client, p.cfg, page+"/photos", token, map[string]any{
			"url":       src,
			"published": false,
		}, true)
		if err != nil {
			return "", err
		}
		return resp.ID, nil
	})
	if err != nil {
		return "", fmt.Errorf("facebook photo upload: %w", err)
	}

	attached := make([]map[string]string, len(ids))
	for i, id := range ids {
		attached[i] = map[string]string{"media_fbid": id}
	}
	resp, err := graphPost(ctx, p.client, p.cfg, page+"/feed", token, map[string]any{
		"message":        post.Caption,
		"attached_media": attached,
	}, false)
	if err != nil {
		return "", fmt.Errorf("facebook multi-photo feed: %w", err)
	}
	return resp.ID, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
