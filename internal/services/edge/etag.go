package edge

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/bytebufferpool"
)

// applyETag tags small 200 text or JSON bodies and answers a matching
// If-None-Match with 304.
func applyETag(c *fiber.Ctx, maxBytes int) {
	resp := c.Response()
	if resp.StatusCode() != fiber.StatusOK || len(resp.Header.Peek(fiber.HeaderETag)) > 0 {
		return
	}

	ct := strings.ToLower(string(resp.Header.ContentType()))
	if !strings.Contains(ct, "json") && !strings.HasPrefix(ct, "text/") {
		return
	}

	body := resp.Body()
	if maxBytes > 0 && len(body) > maxBytes {
		return
	}

	tag := computeETag(body)
	resp.Header.Set(fiber.HeaderETag, tag)

	if etagMatches(c.Get(fiber.HeaderIfNoneMatch), tag) {
		resp.SetStatusCode(fiber.StatusNotModified)
		resp.ResetBody()
		resp.Header.Del(fiber.HeaderContentEncoding)
	}
}

// computeETag returns a strong tag of the form "sha256:<hex>"
func computeETag(body []byte) string {
	sum := sha256.Sum256(body)

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.B = append(buf.B, `"sha256:`...)
	buf.B = hex.AppendEncode(buf.B, sum[:])
	buf.B = append(buf.B, '"')
	return buf.String()
}

// etagMatches implements weak comparison over an If-None-Match list
func etagMatches(header, tag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}

	want := strings.TrimPrefix(tag, "W/")
	for candidate := range strings.SplitSeq(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == want {
			return true
		}
	}
	return false
}
