package posts

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/postcraft/edge/internal/models"
	"github.com/postcraft/edge/internal/services/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) (*Repository, *database.DB) {
	t.Helper()
	db, err := database.New(context.Background(), models.DatabaseConfig{
		Type:        models.SQLite,
		FilePath:    filepath.Join(t.TempDir(), "posts.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db.DB), db
}

func TestActiveSubscriberIDs(t *testing.T) {
	repo, db := newTestRepo(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	require.NoError(t, db.Create([]models.Subscription{
		{UserID: "active", StripeSubscriptionID: "s1", Status: models.SubscriptionActive, CurrentPeriodEnd: &future},
		{UserID: "trial", StripeSubscriptionID: "s2", Status: models.SubscriptionTrialing},
		{UserID: "expired", StripeSubscriptionID: "s3", Status: models.SubscriptionActive, CurrentPeriodEnd: &past},
		{UserID: "canceled", StripeSubscriptionID: "s4", Status: models.SubscriptionCanceled},
	}).Error)

	ids, err := repo.ActiveSubscriberIDs(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"active", "trial"}, ids)
}

func TestDuePosts(t *testing.T) {
	repo, db := newTestRepo(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create([]models.ScheduledPost{
		{ID: "p1", UserID: "u1", Platform: models.PlatformFacebook, ScheduledAt: now.Add(-2 * time.Hour), Status: models.PostStatusScheduled, MediaURLs: models.StringSlice{"https://x/a"}},
		{ID: "p2", UserID: "u1", Platform: models.PlatformFacebook, ScheduledAt: now.Add(-time.Hour), Status: models.PostStatusFailed},
		{ID: "p3", UserID: "u1", Platform: models.PlatformFacebook, ScheduledAt: now.Add(time.Hour), Status: models.PostStatusScheduled},
		{ID: "p4", UserID: "u1", Platform: models.PlatformFacebook, ScheduledAt: now.Add(-time.Hour), Status: models.PostStatusSuccess},
		{ID: "p5", UserID: "u2", Platform: models.PlatformFacebook, ScheduledAt: now.Add(-time.Hour), Status: models.PostStatusScheduled},
	}).Error)

	due, err := repo.DuePosts(context.Background(), []string{"u1"}, now, 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "p1", due[0].ID)
	assert.Equal(t, models.StringSlice{"https://x/a"}, due[0].MediaURLs)
	assert.Equal(t, "p2", due[1].ID)

	limited, err := repo.DuePosts(context.Background(), []string{"u1", "u2"}, now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := repo.DuePosts(context.Background(), nil, now, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMarkSuccessAndFailed(t *testing.T) {
	repo, db := newTestRepo(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&models.ScheduledPost{ID: "p1", UserID: "u1", Platform: models.PlatformLinkedIn, ScheduledAt: now, Status: models.PostStatusScheduled}).Error)

	require.NoError(t, repo.MarkFailed(context.Background(), "p1", "LinkedIn not connected"))
	var post models.ScheduledPost
	require.NoError(t, db.First(&post, "id = ?", "p1").Error)
	assert.Equal(t, models.PostStatusFailed, post.Status)
	assert.Equal(t, "LinkedIn not connected", post.ErrorMessage)

	require.NoError(t, repo.MarkSuccess(context.Background(), "p1", "urn:li:share:1", now))
	require.NoError(t, db.First(&post, "id = ?", "p1").Error)
	assert.Equal(t, models.PostStatusSuccess, post.Status)
	assert.Equal(t, "urn:li:share:1", post.ExternalPostID)
	assert.Empty(t, post.ErrorMessage)
	require.NotNil(t, post.PostedAt)
	assert.True(t, post.PostedAt.Equal(now))

	assert.Error(t, repo.MarkFailed(context.Background(), "missing", "x"))
}

func TestAccountFor(t *testing.T) {
	repo, db := newTestRepo(t)
	require.NoError(t, db.Create(&models.SocialAccount{UserID: "u1", Platform: models.PlatformInstagram, AccessToken: "tok", IGUserID: "ig1"}).Error)

	acct, err := repo.AccountFor(context.Background(), "u1", models.PlatformInstagram)
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.Equal(t, "ig1", acct.IGUserID)
	assert.Equal(t, "tok", acct.AccessToken)

	acct, err = repo.AccountFor(context.Background(), "u1", models.PlatformLinkedIn)
	require.NoError(t, err)
	assert.Nil(t, acct)
}
