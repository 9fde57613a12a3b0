package social

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/postcraft/edge/internal/models"
	"github.com/postcraft/edge/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   map[string]any
	Raw    []byte
}

type fakePlatform struct {
	mu    sync.Mutex
	calls []recordedCall
	srv   *httptest.Server
	route func(w http.ResponseWriter, r *http.Request, call recordedCall)
}

func newFakePlatform(t *testing.T, route func(w http.ResponseWriter, r *http.Request, call recordedCall)) *fakePlatform {
	t.Helper()
	f := &fakePlatform{route: route}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		call := recordedCall{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Header: r.Header.Clone(), Raw: raw}
		if strings.Contains(r.Header.Get("Content-Type"), "json") {
			_ = json.Unmarshal(raw, &call.Body)
		}
		f.mu.Lock()
		f.calls = append(f.calls, call)
		f.mu.Unlock()
		f.route(w, r, call)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakePlatform) find(method, path string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakePlatform) config() Config {
	return Config{
		LinkedInAPIURL:  f.srv.URL + "/v2",
		LinkedInRESTURL: f.srv.URL + "/rest",
		LinkedInVersion: "202507",
		GraphAPIURL:     f.srv.URL + "/graph",
		RequestTimeout:  2 * time.Second,
		UploadTimeout:   2 * time.Second,
		Concurrency:     2,
	}
}

func testClient() *services.Client {
	c := services.NewClient("")
	c.Backoff = []time.Duration{time.Millisecond}
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func linkedInAccount() *models.SocialAccount {
	return &models.SocialAccount{UserID: "u1", Platform: models.PlatformLinkedIn, AccessToken: "li-token", AuthorURN: "urn:li:person:42"}
}

func TestLinkedInTextPost(t *testing.T) {
	f := newFakePlatform(t, func(w http.ResponseWriter, r *http.Request, _ recordedCall) {
		w.Header().Set("X-Restli-Id", "urn%3Ali%3Ashare%3A1")
		w.WriteHeader(http.StatusCreated)
	})
	pub := NewLinkedInPublisher(f.config(), testClient())

	caption := strings.Repeat("a", 3000)
	id, err := pub.Publish(context.Background(), &models.ScheduledPost{Platform: models.PlatformLinkedIn, Caption: caption}, linkedInAccount())
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:1", id)

	calls := f.find(http.MethodPost, "/v2/ugcPosts")
	require.Len(t, calls, 1)
	c := calls[0]
	assert.Equal(t, "Bearer li-token", c.Header.Get("Authorization"))
	assert.Equal(t, "2.0.0", c.Header.Get("X-Restli-Protocol-Version"))
	assert.Equal(t, "202507", c.Header.Get("LinkedIn-Version"))
	assert.Equal(t, "urn:li:person:42", c.Body["author"])

	share := c.Body["specificContent"].(map[string]any)["com.linkedin.ugc.ShareContent"].(map[string]any)
	assert.Equal(t, "NONE", share["shareMediaCategory"])
	text := share["shareCommentary"].(map[string]any)["text"].(string)
	assert.Len(t, text, linkedInUGCLimit)
}

func TestLinkedInSingleImage(t *testing.T) {
	var uploaded []byte
	var f *fakePlatform
	f = newFakePlatform(t, func(w http.ResponseWriter, r *http.Request, call recordedCall) {
		switch {
		case r.URL.Path == "/v2/assets":
			writeJSON(w, map[string]any{"value": map[string]any{
				"asset": "urn:li:digitalmediaAsset:9",
				"uploadMechanism": map[string]any{
					linkedInUploadKey: map[string]string{"uploadUrl": f.srv.URL + "/upload/9"},
				},
			}})
		case r.URL.Path == "/media/pic.jpg":
			_, _ = w.Write([]byte("JPEGDATA"))
		case r.URL.Path == "/upload/9":
			uploaded = call.Raw
			w.WriteHeader(http.StatusCreated)
		case r.URL.Path == "/v2/ugcPosts":
			writeJSON(w, map[string]string{"id": "urn:li:share:2"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	pub := NewLinkedInPublisher(f.config(), testClient())

	post := &models.ScheduledPost{Platform: models.PlatformLinkedIn, Caption: "hi", MediaURLs: models.StringSlice{f.srv.URL + "/media/pic.jpg"}}
	id, err := pub.Publish(context.Background(), post, linkedInAccount())
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:2", id)
	assert.Equal(t, []byte("JPEGDATA"), uploaded)

	reg := f.find(http.MethodPost, "/v2/assets")
	require.Len(t, reg, 1)
	assert.Equal(t, "action=registerUpload", reg[0].Query)

	share := f.find(http.MethodPost, "/v2/ugcPosts")[0].Body["specificContent"].(map[string]any)["com.linkedin.ugc.ShareContent"].(map[string]any)
	assert.Equal(t, "IMAGE", share["shareMediaCategory"])
	media := share["media"].([]any)[0].(map[string]any)
	assert.Equal(t, "READY", media["status"])
	assert.Equal(t, "urn:li:digitalmediaAsset:9", media["media"])
}

func TestLinkedInMultiImageKeepsOrder(t *testing.T) {
	var f *fakePlatform
	var mu sync.Mutex
	next := 0
	f = newFakePlatform(t, func(w http.ResponseWriter, r *http.Request, call recordedCall) {
		switch {
		case r.URL.Path == "/rest/images":
			assert.Equal(t, "urn:li:person:42", call.Body["initializeUploadRequest"].(map[string]any)["owner"])
			mu.Lock()
			next++
			n := strconv.Itoa(next)
			mu.Unlock()
			writeJSON(w, map[string]any{"value": map[string]string{
				"uploadUrl": f.srv.URL + "/put/" + n,
				"image":     "urn:li:image:" + n,
			}})
		case strings.HasPrefix(r.URL.Path, "/media/"):
			_, _ = w.Write([]byte(r.URL.Path))
		case strings.HasPrefix(r.URL.Path, "/put"):
			w.WriteHeader(http.StatusCreated)
		case r.URL.Path == "/rest/posts":
			w.Header().Set("X-Restli-Id", "urn%3Ali%3Ashare%3A3")
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	pub := NewLinkedInPublisher(f.config(), testClient())

	post := &models.ScheduledPost{
		Platform:  models.PlatformLinkedIn,
		Caption:   "multi",
		MediaURLs: models.StringSlice{f.srv.URL + "/media/a", f.srv.URL + "/media/b", f.srv.URL + "/media/c"},
	}
	id, err := pub.Publish(context.Background(), post, linkedInAccount())
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:3", id)

	assert.Len(t, f.find(http.MethodPost, "/rest/images"), 3)
	posts := f.find(http.MethodPost, "/rest/posts")
	require.Len(t, posts, 1)
	body := posts[0].Body
	assert.Equal(t, "multi", body["commentary"])
	assert.Equal(t, "PUBLIC", body["visibility"])
	assert.Equal(t, "PUBLISHED", body["lifecycleState"])
	images := body["content"].(map[string]any)["multiImage"].(map[string]any)["images"].([]any)
	assert.Len(t, images, 3)

	var uploads []string
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.Method == http.MethodPut {
			uploads = append(uploads, string(c.Raw))
		}
	}
	sort.Strings(uploads)
	assert.Equal(t, []string{"/media/a", "/media/b", "/media/c"}, uploads)
}

func TestLinkedInExpiredToken(t *testing.T) {
	f := newFakePlatform(t, func(w http.ResponseWriter, r *http.Request, _ recordedCall) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	pub := NewLinkedInPublisher(f.config(), testClient())

	_, err := pub.Publish(context.Background(), &models.ScheduledPost{Caption: "x"}, linkedInAccount())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LinkedIn token expired")
}

func TestLinkedInCreateIsNotRetried(t *testing.T) {
	f := newFakePlatform(t, func(w http.ResponseWriter, r *http.Request, _ recordedCall) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	pub := NewLinkedInPublisher(f.config(), testClient())

	_, err := pub.Publish(context.Background(), &models.ScheduledPost{Caption: "x"}, linkedInAccount())
	require.Error(t, err)
	assert.Len(t, f.find(http.MethodPost, "/v2/ugcPosts"), 1)
}

func TestNotConnected(t *testing.T) {
	cfg := Config{}
	client := testClient()
	post := &models.ScheduledPost{Caption: "x", MediaURLs: models.StringSlice{"https://example.com/a.jpg"}}

	tests := []struct {
		name string
		pub  Publisher
		acct *models.SocialAccount
		want string
	}{
		{"linkedin missing", NewLinkedInPublisher(cfg, client), nil, "LinkedIn not connected"},
		{"linkedin reconnect", NewLinkedInPublisher(cfg, client), &models.SocialAccount{AccessToken: "t", AuthorURN: "urn", NeedsReconnect: true}, "LinkedIn not connected"},
		{"linkedin disconnected", NewLinkedInPublisher(cfg, client), &models.SocialAccount{AccessToken: "t", AuthorURN: "urn", IsDisconnected: true}, "LinkedIn not connected"},
		{"facebook no page", NewFacebookPublisher(cfg, client), &models.SocialAccount{AccessToken: "t"}, "Facebook not connected"},
		{"instagram no user", NewInstagramPublisher(cfg, client), &models.SocialAccount{AccessToken: "t"}, "Instagram not connected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.pub.Publish(context.Background(), post, tt.acct)
			require.Error(t, err)
			assert.True(t, IsNotConnected(err))
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func facebookAccount() *models.SocialAccount {
	return &models.SocialAccount{Platform: models.PlatformFacebook, AccessToken: "fb-token", PageID: "page1"}
}

func TestFacebookText(t *testing.T) {
	f := newFakePlatform(t, func(w http.ResponseWriter, r *http.Request, _ recordedCall) {
		writeJSON(w, map[string]string{"id": "page1_100"})
	})
	pub := NewFacebookPublisher(f.config(), testClient())

	id, err := pub.Publish(context.Background(), &models.ScheduledPost{Caption: "hello"}, facebookAccount())
	require.NoError(t, err)
	assert.Equal(t, "page1_100", id)

	calls := f.find(http.MethodPost, "/graph/page1/feed")
	require.Len(t, calls, 1)
	assert.Equal(t, "hello", calls[0].Body["message"])
	assert.Equal(t, true, calls[0].Body["published"])
	assert.Equal(t, "fb-token", calls[0].Body["access_token"])
}

func TestFacebookSinglePhoto(t *testing.T) {
	f := newFakePlatform(t, func(w http.ResponseWriter, r *http.Request, _ recordedCall) {
		writeJSON(w, map[string]string{"id": "photo1", "post_id": "page1_200"})
	})
	pub := NewFacebookPublisher(f.config(), testClient())

	post := &models.ScheduledPost{Caption: "pic", MediaURLs: models.StringSlice{"https://cdn.example.com/1.jpg"}}
	id, err := pub.Publish(context.Background(), post, facebookAccount())
	require.NoError(t, err)
	assert.Equal(t, "page1_200", id)

	call := f.find(http.MethodPost, "/graph/page1/photos")[0]
	assert.Equal(t, "https://cdn.example.com/1.jpg", call.Body["url"])
	assert.Equal(t, "pic", call.Body["caption"])
}

func TestFacebookMultiPhoto(t *testing.T) {
	f := newFakePlatform(t, func(w http.ResponseWriter, r *http.Request, call recordedCall) {
		switch r.URL.Path {
		case "/graph/page1/photos":
			url := call.Body["url"].(string)
			writeJSON(w, map[string]string{"id": "fbid-" + url[len(url)-1:]})
		case "/graph/page1/feed":
			writeJSON(w, map[string]string{"id": "page1_300"})
		}
	})
	pub := NewFacebookPublisher(f.config(), testClient())

	post := &models.ScheduledPost{Caption: "album", MediaURLs: models.StringSlice{"https://x/a", "https://x/b"}}
	id, err := pub.Publish(context.Background(), post, facebookAccount())
	require.NoError(t, err)
	assert.Equal(t, "page1_300", id)

	for _, c := range f.find(http.MethodPost, "/graph/page1/photos") {
		assert.Equal(t, false, c.Body["published"])
	}
	feed := f.find(http.MethodPost, "/graph/page1/feed")[0]
	assert.Equal(t, "album", feed.Body["message"])
	assert.Equal(t, []any{
		map[string]any{"media_fbid": "fbid-a"},
		map[string]any{"media_fbid": "fbid-b"},
	}, feed.Body["attached_media"])
}

func TestFacebookStory(t *testing.T) {
	f := newFakePlatform(t, func(w http.ResponseWriter, r *http.Request, _ recordedCall) {
		switch r.URL.Path {
		case "/graph/page1/photos":
			writeJSON(w, map[string]string{"id": "photo9"})
		case "/graph/page1/photo_stories":
			writeJSON(w, map[string]string{"post_id": "story9"})
		}
	})
	pub := NewFacebookPublisher(f.config(), testClient())

	post := &models.ScheduledPost{PostType: models.PostTypeFacebookStory, MediaURLs: models.StringSlice{"https://x/s.jpg"}}
	id, err := pub.Publish(context.Background(), post, facebookAccount())
	require.NoError(t, err)
	assert.Equal(t, "story9", id)
	assert.Equal(t, "photo9", f.find(http.MethodPost, "/graph/page1/photo_stories")[0].Body["photo_id"])
}

func instagramAccount() *models.SocialAccount {
	return &models.SocialAccount{Platform: models.PlatformInstagram, AccessToken: "ig-token", IGUserID: "ig1"}
}

func TestInstagramRequiresImage(t *testing.T) {
	pub := NewInstagramPublisher(Config{}, testClient())
	_, err := pub.Publish(context.Background(), &models.ScheduledPost{Caption: "x"}, instagramAccount())
	assert.ErrorIs(t, err, ErrInstagramNeedsImage)
}

func TestInstagramSingleAndStory(t *testing.T) {
	f := newFakePlatform(t, func(w http.ResponseWriter, r *http.Request, _ recordedCall) {
		switch r.URL.Path {
		case "/graph/ig1/media":
			writeJSON(w, map[string]string{"id": "container1"})
		case "/graph/ig1/media_publish":
			writeJSON(w, map[string]string{"id": "media1"})
		}
	})
	pub := NewInstagramPublisher(f.config(), testClient())

	id, err := pub.Publish(context.Background(), &models.ScheduledPost{Caption: "c", MediaURLs: models.StringSlice{"https://x/1.jpg"}}, instagramAccount())
	require.NoError(t, err)
	assert.Equal(t, "media1", id)

	_, err = pub.Publish(context.Background(), &models.ScheduledPost{PostType: models.PostTypeInstagramStory, MediaURLs: models.StringSlice{"https://x/2.jpg"}}, instagramAccount())
	require.NoError(t, err)

	media := f.find(http.MethodPost, "/graph/ig1/media")
	require.Len(t, media, 2)
	assert.Equal(t, "c", media[0].Body["caption"])
	assert.Equal(t, "STORIES", media[1].Body["media_type"])
	for _, c := range f.find(http.MethodPost, "/graph/ig1/media_publish") {
		assert.Equal(t, "container1", c.Body["creation_id"])
	}
}

func TestInstagramCarousel(t *testing.T) {
	f := newFakePlatform(t, func(w http.ResponseWriter, r *http.Request, call recordedCall) {
		switch r.URL.Path {
		case "/graph/ig1/media":
			if call.Body["media_type"] == "CAROUSEL" {
				writeJSON(w, map[string]string{"id": "parent"})
				return
			}
			url := call.Body["image_url"].(string)
			writeJSON(w, map[string]string{"id": "child-" + url[len(url)-1:]})
		case "/graph/ig1/media_publish":
			writeJSON(w, map[string]string{"id": "carousel1"})
		}
	})
	pub := NewInstagramPublisher(f.config(), testClient())

	post := &models.ScheduledPost{Caption: "set", MediaURLs: models.StringSlice{"https://x/a", "https://x/b", "https://x/c"}}
	id, err := pub.Publish(context.Background(), post, instagramAccount())
	require.NoError(t, err)
	assert.Equal(t, "carousel1", id)

	var parent map[string]any
	for _, c := range f.find(http.MethodPost, "/graph/ig1/media") {
		if c.Body["media_type"] == "CAROUSEL" {
			parent = c.Body
		} else {
			assert.Equal(t, true, c.Body["is_carousel_item"])
		}
	}
	require.NotNil(t, parent)
	assert.Equal(t, "child-a,child-b,child-c", parent["children"])
	assert.Equal(t, "set", parent["caption"])
	assert.Equal(t, "parent", f.find(http.MethodPost, "/graph/ig1/media_publish")[0].Body["creation_id"])
}

func TestRegistryDispatch(t *testing.T) {
	f := newFakePlatform(t, func(w http.ResponseWriter, r *http.Request, _ recordedCall) {
		writeJSON(w, map[string]string{"id": "ok"})
	})
	reg := NewRegistry(f.config(), testClient())

	id, err := reg.Publish(context.Background(), &models.ScheduledPost{Platform: models.PlatformFacebook, Caption: "x"}, facebookAccount())
	require.NoError(t, err)
	assert.Equal(t, "ok", id)

	_, err = reg.Publish(context.Background(), &models.ScheduledPost{Platform: "myspace"}, facebookAccount())
	assert.ErrorContains(t, err, "unsupported platform")
}
