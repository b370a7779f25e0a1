package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPChecker checks a camera stream or snapshot endpoint. Only the response
// head is read, so endless MJPEG streams are fine to point it at.
type HTTPChecker struct {
	// URL is the stream or snapshot url
	URL string

	// Headers are added to the request
	Headers map[string]string

	// ExpectedStatusMin and ExpectedStatusMax bound acceptable codes (200-299)
	ExpectedStatusMin int
	ExpectedStatusMax int

	// ContentTypes, when set, lists accepted Content-Type prefixes
	ContentTypes []string

	// Client is the HTTP client to use
	Client *http.Client
}

// NewHTTPChecker creates a checker accepting any 2xx image or multipart response
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		URL:               url,
		Headers:           make(map[string]string),
		ExpectedStatusMin: 200,
		ExpectedStatusMax: 299,
		ContentTypes:      []string{"multipart/", "image/", "video/"},
		Client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Check performs the HTTP check
func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()
	fail := func(format string, args ...any) Result {
		return Result{Message: fmt.Sprintf(format, args...), CheckedAt: start, Duration: time.Since(start)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return fail("failed to create request: %v", err)
	}
	for key, value := range h.Headers {
		req.Header.Set(key, value)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return fail("request failed: %v", err)
	}
	// Body is never read
	resp.Body.Close()

	if resp.StatusCode < h.ExpectedStatusMin || resp.StatusCode > h.ExpectedStatusMax {
		return fail("HTTP %d %s (expected %d-%d)", resp.StatusCode, http.StatusText(resp.StatusCode), h.ExpectedStatusMin, h.ExpectedStatusMax)
	}

	ct := resp.Header.Get("Content-Type")
	if len(h.ContentTypes) > 0 && !hasPrefix(ct, h.ContentTypes) {
		return fail("unexpected content type %q", ct)
	}

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("HTTP %d %s", resp.StatusCode, ct),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

func hasPrefix(s string, prefixes []string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range prefixes {
		if strings.HasPrefix(s, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Type returns the check type
func (h *HTTPChecker) Type() CheckType {
	return CheckTypeHTTP
}

// WithHeader adds a custom HTTP header
func (h *HTTPChecker) WithHeader(key, value string) *HTTPChecker {
	h.Headers[key] = value
	return h
}

// WithStatusRange sets the expected status code range
func (h *HTTPChecker) WithStatusRange(min, max int) *HTTPChecker {
	h.ExpectedStatusMin = min
	h.ExpectedStatusMax = max
	return h
}

// WithContentTypes replaces the accepted content type prefixes. No
// arguments accepts any type.
func (h *HTTPChecker) WithContentTypes(prefixes ...string) *HTTPChecker {
	h.ContentTypes = prefixes
	return h
}

// WithTimeout sets the HTTP client timeout
func (h *HTTPChecker) WithTimeout(timeout time.Duration) *HTTPChecker {
	if timeout > 0 {
		h.Client.Timeout = timeout
	}
	return h
}
