package social

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/postcraft/edge/internal/models"
	"github.com/postcraft/edge/internal/services"
	"github.com/postcraft/edge/internal/services/pool"
)

const (
	linkedInUGCLimit   = 2900
	linkedInPostsLimit = 3000
	linkedInUploadKey  = "com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"
)

// LinkedInPublisher posts to a member feed through the v2 and REST APIs
type LinkedInPublisher struct {
	cfg    Config
	client *services.Client
}

func NewLinkedInPublisher(cfg Config, client *services.Client) *LinkedInPublisher {
	return &LinkedInPublisher{cfg: cfg, client: client}
}

func (p *LinkedInPublisher) Platform() models.Platform {
	return models.PlatformLinkedIn
}

func (p *LinkedInPublisher) Publish(ctx context.Context, post *models.ScheduledPost, acct *models.SocialAccount) (string, error) {
	if !usable(acct) || acct.AuthorURN == "" {
		return "", &NotConnectedError{Platform: models.PlatformLinkedIn}
	}

	var (
		id  string
		err error
	)
	switch len(post.MediaURLs) {
	case 0:
		id, err = p.shareUGC(ctx, acct, post.Caption, "")
	case 1:
		id, err = p.publishSingleImage(ctx, acct, post.Caption, post.MediaURLs[0])
	default:
		id, err = p.publishMultiImage(ctx, acct, post.Caption, post.MediaURLs)
	}
	if isStatus(err, http.StatusUnauthorized) {
		return "", fmt.Errorf("LinkedIn token expired: %w", err)
	}
	return id, err
}

func (p *LinkedInPublisher) headers(token string) map[string]string {
	return map[string]string{
		"Authorization":             bearer(token),
		"X-Restli-Protocol-Version": "2.0.0",
		"LinkedIn-Version":          p.cfg.LinkedInVersion,
	}
}

type ugcMedia struct {
	Status string `json:"status"`
	Media  string `json:"media"`
}

// shareUGC creates a feed post. asset is empty for text-only posts.
func (p *LinkedInPublisher) shareUGC(ctx context.Context, acct *models.SocialAccount, caption, asset string) (string, error) {
	category := "NONE"
	share := map[string]any{
		"shareCommentary": map[string]string{"text": truncate(caption, linkedInUGCLimit)},
	}
	if asset != "" {
		category = "IMAGE"
		share["media"] = []ugcMedia{{Status: "READY", Media: asset}}
	}
	share["shareMediaCategory"] = category

	body := map[string]any{
		"author":          acct.AuthorURN,
		"lifecycleState":  "PUBLISHED",
		"specificContent": map[string]any{"com.linkedin.ugc.ShareContent": share},
		"visibility":      map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	}

	var resp struct {
		ID string `json:"id"`
	}
	var hdr http.Header
	err := p.client.Post(ctx, p.cfg.LinkedInAPIURL+"/ugcPosts", body, &resp, &services.RequestOptions{
		Headers:         p.headers(acct.AccessToken),
		Timeout:         p.cfg.RequestTimeout,
		Retries:         -1,
		ResponseHeaders: &hdr,
	})
	if err != nil {
		return "", fmt.Errorf("linkedin share: %w", err)
	}
	if resp.ID != "" {
		return resp.ID, nil
	}
	return restliID(hdr), nil
}

func (p *LinkedInPublisher) publishSingleImage(ctx context.Context, acct *models.SocialAccount, caption, src string) (string, error) {
	register := map[string]any{
		"registerUploadRequest": map[string]any{
			"recipes": []string{"urn:li:digitalmediaRecipe:feedshare-image"},
			"owner":   acct.AuthorURN,
			"serviceRelationships": []map[string]string{{
				"relationshipType": "OWNER",
				"identifier":       "urn:li:userGeneratedContent",
			}},
		},
	}

	var reg struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism map[string]struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	err := p.client.Post(ctx, p.cfg.LinkedInAPIURL+"/assets", register, &reg, &services.RequestOptions{
		Headers:     p.headers(acct.AccessToken),
		QueryParams: map[string]string{"action": "registerUpload"},
		Timeout:     p.cfg.RequestTimeout,
	})
	if err != nil {
		return "", fmt.Errorf("linkedin register upload: %w", err)
	}
	uploadURL := reg.Value.UploadMechanism[linkedInUploadKey].UploadURL
	if reg.Value.Asset == "" || uploadURL == "" {
		return "", fmt.Errorf("linkedin register upload: missing asset or upload url")
	}

	if err := p.upload(ctx, acct, src, uploadURL); err != nil {
		return "", err
	}
	return p.shareUGC(ctx, acct, caption, reg.Value.Asset)
}

func (p *LinkedInPublisher) publishMultiImage(ctx context.Context, acct *models.SocialAccount, caption string, srcs []string) (string, error) {
	images, err := pool.Run(ctx, srcs, p.cfg.Concurrency, func(ctx context.Context, src string, _ int) (string, error) {
		return p.initializeImage(ctx, acct, src)
	})
	if err != nil {
		return "", fmt.Errorf("linkedin image upload: %w", err)
	}

	refs := make([]map[string]string, len(images))
	for i, urn := range images {
		refs[i] = map[string]string{"id": urn}
	}
	body := map[string]any{
		"author":     acct.AuthorURN,
		"commentary": truncate(caption, linkedInPostsLimit),
		"visibility": "PUBLIC",
		"distribution": map[string]any{
			"feedDistribution":               "MAIN_FEED",
			"targetEntities":                 []any{},
			"thirdPartyDistributionChannels": []any{},
		},
		"lifecycleState":            "PUBLISHED",
		"isReshareDisabledByAuthor": false,
		"content":                   map[string]any{"multiImage": map[string]any{"images": refs}},
	}

	var hdr http.Header
	err = p.client.Post(ctx, p.cfg.LinkedInRESTURL+"/posts", body, nil, &services.RequestOptions{
		Headers:         p.headers(acct.AccessToken),
		Timeout:         p.cfg.RequestTimeout,
		Retries:         -1,
		ResponseHeaders: &hdr,
	})
	if err != nil {
		return "", fmt.Errorf("linkedin multi-image post: %w", err)
	}
	return restliID(hdr), nil
}

// initializeImage uploads one image through the REST images API and returns its urn
func (p *LinkedInPublisher) initializeImage(ctx context.Context, acct *models.SocialAccount, src string) (string, error) {
	var init struct {
		Value struct {
			UploadURL string `json:"uploadUrl"`
			Image     string `json:"image"`
		} `json:"value"`
	}
	err := p.client.Post(ctx, p.cfg.LinkedInRESTURL+"/images",
		map[string]any{"initializeUploadRequest": map[string]string{"owner": acct.AuthorURN}},
		&init, &services.RequestOptions{
			Headers:     p.headers(acct.AccessToken),
			QueryParams: map[string]string{"action": "initializeUpload"},
			Timeout:     p.cfg.RequestTimeout,
		})
	if err != nil {
		return "", fmt.Errorf("initialize upload: %w", err)
	}
	if init.Value.UploadURL == "" || init.Value.Image == "" {
		return "", fmt.Errorf("initialize upload: missing image or upload url")
	}
	if err := p.upload(ctx, acct, src, init.Value.UploadURL); err != nil {
		return "", err
	}
	return init.Value.Image, nil
}

func (p *LinkedInPublisher) upload(ctx context.Context, acct *models.SocialAccount, src, uploadURL string) error {
	data, err := fetchMedia(ctx, p.client, src, p.cfg.UploadTimeout)
	if err != nil {
		return err
	}
	err = p.client.Put(ctx, uploadURL, nil, nil, &services.RequestOptions{
		Headers:     map[string]string{"Authorization": bearer(acct.AccessToken)},
		RawBody:     data,
		ContentType: "application/octet-stream",
		Timeout:     p.cfg.UploadTimeout,
	})
	if err != nil {
		return fmt.Errorf("linkedin binary upload: %w", err)
	}
	return nil
}

func restliID(h http.Header) string {
	raw := h.Get("X-Restli-Id")
	if raw == "" {
		raw = h.Get("X-Linkedin-Id")
	}
	if id, err := url.QueryUnescape(raw); err == nil {
		return id
	}
	return raw
}

// truncate caps s at n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
