package models

// SocialConfig configures the outbound publishing clients
type SocialConfig struct {
	Concurrency      int    `json:"concurrency,omitzero" yaml:"concurrency"`
	LinkedInAPIURL   string `json:"linkedin_api_url,omitzero" yaml:"linkedin_api_url"`
	LinkedInRESTURL  string `json:"linkedin_rest_url,omitzero" yaml:"linkedin_rest_url"`
	LinkedInVersion  string `json:"linkedin_version,omitzero" yaml:"linkedin_version"`
	GraphAPIURL      string `json:"graph_api_url,omitzero" yaml:"graph_api_url"`
	RequestTimeoutMs int    `json:"request_timeout_ms,omitzero" yaml:"request_timeout_ms"`
	UploadTimeoutMs  int    `json:"upload_timeout_ms,omitzero" yaml:"upload_timeout_ms"`
	// CronSecret guards the auto-post endpoint when set.
	CronSecret string `json:"-" yaml:"cron_secret"`
}
