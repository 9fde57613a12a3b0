package idempotency

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/postcraft/edge/internal/models"
	"github.com/postcraft/edge/internal/services/kv"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, mode models.IdempotencyMode, calls *atomic.Int32) *fiber.App {
	t.Helper()
	g, err := NewGuard(kv.NewMemoryStore(), time.Minute, mode)
	require.NoError(t, err)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var appErr *models.AppError
			if errors.As(err, &appErr) {
				return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{"error": appErr.Message})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Error"})
		},
	})
	app.Post("/posts", g.Middleware(), func(c *fiber.Ctx) error {
		n := calls.Add(1)
		c.Set("X-Post-Seq", strconv.Itoa(int(n)))
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"seq": n})
	})
	return app
}

func post(t *testing.T, app *fiber.App, body, key string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestMiddlewareReplaysByteIdentical(t *testing.T) {
	var calls atomic.Int32
	app := newTestApp(t, models.IdempotencyReplay, &calls)

	first, firstBody := post(t, app, `{"caption":"a"}`, "abc")
	second, secondBody := post(t, app, `{"caption":"different"}`, "abc")

	assert.Equal(t, fiber.StatusCreated, first.StatusCode)
	assert.Equal(t, first.StatusCode, second.StatusCode)
	assert.Equal(t, firstBody, secondBody)
	assert.Equal(t, first.Header.Get("X-Post-Seq"), second.Header.Get("X-Post-Seq"))
	assert.Equal(t, "application/json", second.Header.Get("Content-Type"))
	assert.Equal(t, "true", second.Header.Get(HeaderReplayed))
	assert.Empty(t, first.Header.Get(HeaderReplayed))
	assert.Equal(t, int32(1), calls.Load())
}

func TestMiddlewareBodyHashKey(t *testing.T) {
	var calls atomic.Int32
	app := newTestApp(t, models.IdempotencyReplay, &calls)

	post(t, app, `{"caption":"a"}`, "")
	post(t, app, `{"caption":"a"}`, "")
	post(t, app, `{"caption":"b"}`, "")

	assert.Equal(t, int32(2), calls.Load())
}

func TestMiddlewareRejectsDuplicates(t *testing.T) {
	var calls atomic.Int32
	app := newTestApp(t, models.IdempotencyReject, &calls)

	first, _ := post(t, app, `{}`, "evt_1")
	second, body := post(t, app, `{}`, "evt_1")

	assert.Equal(t, fiber.StatusCreated, first.StatusCode)
	assert.Equal(t, fiber.StatusConflict, second.StatusCode)
	assert.JSONEq(t, `{"error":"Duplicate request"}`, body)
	assert.Empty(t, second.Header.Get("Retry-After"))
	assert.Equal(t, int32(1), calls.Load())
}
