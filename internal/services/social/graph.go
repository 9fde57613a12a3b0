package social

import (
	"context"
	"strings"

	"github.com/postcraft/edge/internal/services"
)

type graphResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

// graphPost sends a Graph API call with the token in the JSON body
func graphPost(ctx context.Context, client *services.Client, cfg Config, path, token string, body map[string]any, retry bool) (*graphResponse, error) {
	payload := make(map[string]any, len(body)+1)
	for k, v := range body {
		payload[k] = v
	}
	payload["access_token"] = token

	opts := &services.RequestOptions{Timeout: cfg.RequestTimeout}
	if !retry {
		opts.Retries = -1
	}

	var resp graphResponse
	if err := client.Post(ctx, strings.TrimRight(cfg.GraphAPIURL, "/")+path, payload, &resp, opts); err != nil {
		return nil, err
	}
	return &resp, nil
}
