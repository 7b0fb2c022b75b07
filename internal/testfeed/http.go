package testfeed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/okian/minerwatch/pkg/logger"
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client *http.Client
}

func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// Get performs a GET request bound to ctx.
func (c *HTTPClient) Get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// getMiner fetches one miner by key. A missing miner returns ok=false.
func (c *HTTPClient) getMiner(ctx context.Context, baseURL, id string) (Miner, bool, error) {
	resp, err := c.Get(ctx, baseURL+"/miners/"+url.PathEscape(id))
	if err != nil {
		return Miner{}, false, fmt.Errorf("failed to fetch miner %s: %w", id, err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return Miner{}, false, fmt.Errorf("failed to read miner %s: %w", id, err)
	}

	switch resp.StatusCode {
	case StatusOK:
	case StatusNotFound:
		return Miner{}, false, nil
	default:
		return Miner{}, false, fmt.Errorf("miner %s: unexpected status %d", id, resp.StatusCode)
	}

	var m Miner
	if err := sonnet.Unmarshal(body, &m); err != nil {
		return Miner{}, false, fmt.Errorf("failed to decode miner %s: %w", id, err)
	}
	return m, true, nil
}

func readResponseBody(resp *http.Response) ([]byte, error) {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()
	return io.ReadAll(resp.Body)
}
