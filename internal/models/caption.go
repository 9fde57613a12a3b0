package models

// CaptionProfile describes the brand voice a caption is written in
type CaptionProfile struct {
	BrandName   string   `json:"brand_name,omitzero"`
	Category    string   `json:"category,omitzero"`
	Subcategory string   `json:"subcategory,omitzero"`
	Persona     string   `json:"persona,omitzero"`
	PrimaryGoal string   `json:"primary_goal,omitzero"`
	VoiceTags   []string `json:"voice_tags,omitzero"`
}

// CaptionRequest is the body of POST /functions/generate-caption
type CaptionRequest struct {
	Prompt           string          `json:"prompt"`
	Tone             string          `json:"tone"`
	Platform         string          `json:"platform"`
	Length           string          `json:"length"`
	Profile          *CaptionProfile `json:"profile"`
	GenerateFromNews bool            `json:"generate_from_news"`
	NewsAgeWindow    string          `json:"news_age_window,omitzero"`
	AllowEmojis      *bool           `json:"allow_emojis,omitempty"`
	AllowHashtags    *bool           `json:"allow_hashtags,omitempty"`
}

// CaptionResponse is the body returned to the client
type CaptionResponse struct {
	Caption string `json:"caption"`
}

// EmojisAllowed defaults to true when the client does not say
func (r CaptionRequest) EmojisAllowed() bool {
	return r.AllowEmojis == nil || *r.AllowEmojis
}

// HashtagsAllowed defaults to true when the client does not say
func (r CaptionRequest) HashtagsAllowed() bool {
	return r.AllowHashtags == nil || *r.AllowHashtags
}
