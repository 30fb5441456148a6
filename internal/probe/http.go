package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shinji-kodama/stackctl/internal/model"
)

// defaultRequestTimeout bounds a single HTTP probe request.
const defaultRequestTimeout = 5 * time.Second

// HTTP checks readiness with a GET request. Any 2xx or 3xx response means
// ready. Redirects are not followed.
type HTTP struct {
	URL    string
	client *http.Client
}

// NewHTTP creates an HTTP probe for url.
func NewHTTP(url string) *HTTP {
	return &HTTP{
		URL: url,
		client: &http.Client{
			Timeout: defaultRequestTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Ready issues the request. Transport errors are returned so the poller can
// log them; they count as not ready.
func (h *HTTP) Ready(ctx context.Context, _ model.ServiceName) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return false, fmt.Errorf("invalid readiness URL %q: %w", h.URL, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp.StatusCode >= 200 && resp.StatusCode < 400, nil
}
