// Package social publishes scheduled posts to LinkedIn, Facebook and Instagram.
package social

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/postcraft/edge/internal/models"
	"github.com/postcraft/edge/internal/services"
)

// Publisher posts one scheduled post with the owner's account
type Publisher interface {
	Platform() models.Platform
	// Publish returns the platform's id for the created post
	Publish(ctx context.Context, post *models.ScheduledPost, acct *models.SocialAccount) (string, error)
}

// Config holds endpoints and limits shared by all publishers
type Config struct {
	LinkedInAPIURL  string
	LinkedInRESTURL string
	LinkedInVersion string
	GraphAPIURL     string
	RequestTimeout  time.Duration
	UploadTimeout   time.Duration
	// Concurrency bounds parallel media uploads within one post
	Concurrency int
}

// ConfigFromModel converts the YAML section
func ConfigFromModel(cfg models.SocialConfig) Config {
	return Config{
		LinkedInAPIURL:  cfg.LinkedInAPIURL,
		LinkedInRESTURL: cfg.LinkedInRESTURL,
		LinkedInVersion: cfg.LinkedInVersion,
		GraphAPIURL:     cfg.GraphAPIURL,
		RequestTimeout:  time.Duration(cfg.RequestTimeoutMs) * time.Millisecond,
		UploadTimeout:   time.Duration(cfg.UploadTimeoutMs) * time.Millisecond,
		Concurrency:     cfg.Concurrency,
	}
}

// NotConnectedError is returned when the user has no usable account
type NotConnectedError struct {
	Platform models.Platform
}

func (e *NotConnectedError) Error() string {
	return platformName(e.Platform) + " not connected"
}

// IsNotConnected reports whether err means the account must be (re)connected
func IsNotConnected(err error) bool {
	var nc *NotConnectedError
	return errors.As(err, &nc)
}

func platformName(p models.Platform) string {
	switch p {
	case models.PlatformLinkedIn:
		return "LinkedIn"
	case models.PlatformFacebook:
		return "Facebook"
	case models.PlatformInstagram:
		return "Instagram"
	default:
		return string(p)
	}
}

// Registry dispatches to the publisher for a post's platform
type Registry map[models.Platform]Publisher

// NewRegistry wires every supported platform over one HTTP client
func NewRegistry(cfg Config, client *services.Client) Registry {
	return Registry{
		models.PlatformLinkedIn:  NewLinkedInPublisher(cfg, client),
		models.PlatformFacebook:  NewFacebookPublisher(cfg, client),
		models.PlatformInstagram: NewInstagramPublisher(cfg, client),
	}
}

// Publish routes post to its platform's publisher
func (r Registry) Publish(ctx context.Context, post *models.ScheduledPost, acct *models.SocialAccount) (string, error) {
	p, ok := r[post.Platform]
	if !ok {
		return "", fmt.Errorf("unsupported platform %q", post.Platform)
	}
	return p.Publish(ctx, post, acct)
}

// usable rejects accounts flagged for reconnect
func usable(acct *models.SocialAccount) bool {
	return acct != nil && acct.AccessToken != "" && !acct.NeedsReconnect && !acct.IsDisconnected
}

// fetchMedia downloads a media URL so it can be re-uploaded
func fetchMedia(ctx context.Context, client *services.Client, src string, timeout time.Duration) ([]byte, error) {
	var data []byte
	err := client.Get(ctx, src, &data, &services.RequestOptions{
		ResponseType: "binary",
		Timeout:      timeout,
		Headers:      map[string]string{"Accept": "*/*"},
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", src, err)
	}
	return data, nil
}

func bearer(token string) string {
	return "Bearer " + token
}

func isStatus(err error, code int) bool {
	var statusErr *services.StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}
