// Package delivery implements the client for the headless CMS Delivery API.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kilupskalvis/contentsync/internal/models"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL        = "https://deliver.kontent.ai"
	DefaultPreviewBaseURL = "https://preview-deliver.kontent.ai"
	DefaultDepth          = 20

	headerContinuation = "X-Continuation"
	headerWaitForNew   = "X-KC-Wait-For-Loading-New-Content"
)

// Config configures an HTTPClient
type Config struct {
	ProjectID      string
	PreviewAPIKey  string
	Preview        bool
	BaseURL        string
	PreviewBaseURL string
	Depth          int

	// WaitForNewContent asks the API to bypass its cache. Use it when
	// fetching in response to a webhook.
	WaitForNewContent bool

	// RequestsPerSecond limits outgoing requests. Zero disables limiting.
	RequestsPerSecond float64
	Timeout           time.Duration
}

// HTTPClient implements ClientInterface over the Delivery REST API.
type HTTPClient struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPClient creates a Delivery API client.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("delivery: project ID is required")
	}
	if cfg.Preview && cfg.PreviewAPIKey == "" {
		return nil, fmt.Errorf("delivery: preview mode requires a preview API key")
	}
	if cfg.Depth <= 0 {
		cfg.Depth = DefaultDepth
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PreviewBaseURL == "" {
		cfg.PreviewBaseURL = DefaultPreviewBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	base := cfg.BaseURL
	if cfg.Preview {
		base = cfg.PreviewBaseURL
	}

	c := &HTTPClient{
		cfg:        cfg,
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c, nil
}

func (c *HTTPClient) projectURL(path string) string {
	return fmt.Sprintf("%s/%s%s", c.baseURL, url.PathEscape(c.cfg.ProjectID), path)
}

func (c *HTTPClient) do(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.cfg.Preview {
		req.Header.Set("Authorization", "Bearer "+c.cfg.PreviewAPIKey)
	}
	if c.cfg.WaitForNewContent {
		req.Header.Set(headerWaitForNew, "true")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	return resp, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, rawURL string, headers map[string]string, out interface{}) (http.Header, error) {
	resp, err := c.do(ctx, rawURL, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.Header, nil
}

// FetchItem fetches one item with its linked items resolved to the configured depth.
func (c *HTTPClient) FetchItem(ctx context.Context, codename string) (*models.DeliveryItemResponse, error) {
	u := c.projectURL("/items/"+url.PathEscape(codename)) + fmt.Sprintf("?depth=%d", c.cfg.Depth)

	var resp models.DeliveryItemResponse
	if _, err := c.getJSON(ctx, u, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch item %s: %w", codename, err)
	}
	if resp.Item == nil {
		return nil, fmt.Errorf("fetch item %s: %w", codename, ErrNotFound)
	}
	return &resp, nil
}

// FetchAll walks the items feed following continuation tokens. Items are
// returned first, then linked items not already present as items.
func (c *HTTPClient) FetchAll(ctx context.Context) ([]*models.ContentItem, error) {
	var items []*models.ContentItem
	linked := make(map[string]*models.ContentItem)
	continuation := ""

	for {
		var headers map[string]string
		if continuation != "" {
			headers = map[string]string{headerContinuation: continuation}
		}

		var page models.DeliveryFeedResponse
		respHeaders, err := c.getJSON(ctx, c.projectURL("/items-feed"), headers, &page)
		if err != nil {
			return nil, fmt.Errorf("fetch items feed: %w", err)
		}

		items = append(items, page.Items...)
		for _, item := range page.LinkedItems() {
			linked[item.System.Codename] = item
		}

		continuation = respHeaders.Get(headerContinuation)
		if continuation == "" {
			break
		}
	}

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		seen[item.System.Codename] = true
	}
	feed := &models.DeliveryFeedResponse{ModularContent: linked}
	for _, item := range feed.LinkedItems() {
		if !seen[item.System.Codename] {
			items = append(items, item)
		}
	}

	return items, nil
}
