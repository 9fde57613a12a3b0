package models

import "time"

// Platform is a social network a post can be published to
type Platform string

const (
	PlatformLinkedIn  Platform = "linkedin"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
)

// PostStatus tracks a scheduled post through publishing
type PostStatus string

const (
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusSuccess   PostStatus = "success"
	PostStatusFailed    PostStatus = "failed"
)

// PostType distinguishes feed posts from stories
type PostType string

const (
	PostTypeFeed           PostType = "feed"
	PostTypeFacebookStory  PostType = "facebook_story"
	PostTypeInstagramStory PostType = "instagram_story"
)

// ScheduledPost is a caption plus media queued for a future publish time
type ScheduledPost struct {
	ID             string      `gorm:"primaryKey;size:64" json:"id"`
	UserID         string      `gorm:"index;not null;size:64" json:"user_id"`
	Platform       Platform    `gorm:"not null;size:32" json:"platform"`
	PostType       PostType    `gorm:"size:32" json:"post_type,omitzero"`
	Caption        string      `gorm:"type:text" json:"caption"`
	MediaURLs      StringSlice `gorm:"type:text" json:"media_urls"`
	ScheduledAt    time.Time   `gorm:"index;not null" json:"scheduled_at"`
	Status         PostStatus  `gorm:"index;not null;size:32;default:scheduled" json:"status"`
	ExternalPostID string      `gorm:"size:255" json:"post_id,omitzero"`
	ErrorMessage   string      `gorm:"type:text" json:"error_message,omitzero"`
	PostedAt       *time.Time  `json:"posted_at,omitempty"`
	CreatedAt      time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ScheduledPost) TableName() string {
	return "scheduled_posts"
}

// SocialAccount holds the credentials for one connected platform
type SocialAccount struct {
	ID             uint     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         string   `gorm:"uniqueIndex:idx_social_user_platform;not null;size:64" json:"user_id"`
	Platform       Platform `gorm:"uniqueIndex:idx_social_user_platform;not null;size:32" json:"platform"`
	AccessToken    string   `gorm:"type:text" json:"-"`
	AuthorURN      string   `gorm:"size:255" json:"author_urn,omitzero"`
	PageID         string   `gorm:"size:255" json:"page_id,omitzero"`
	IGUserID       string   `gorm:"column:ig_user_id;size:255" json:"ig_user_id,omitzero"`
	NeedsReconnect bool     `json:"needs_reconnect"`
	IsDisconnected bool     `json:"is_disconnected"`
}

func (SocialAccount) TableName() string {
	return "social_accounts"
}
