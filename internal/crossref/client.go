// Package crossref is a client for the Crossref REST API, the bibliographic
// registry used to resolve citation stubs and discover papers.
package crossref

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/matsen/citegraph/internal/paper"
)

const (
	// BaseURL is the public Crossref API base URL.
	BaseURL = "https://api.crossref.org"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// RateLimit stays under the polite pool's 50 requests per second.
	RateLimit = 10.0

	// MaxRows is the largest page Crossref serves for /works.
	MaxRows = 100

	// DefaultSearchLimit is used when a caller passes a non-positive limit.
	DefaultSearchLimit = 30
)

// Client is a rate-limited HTTP client for the Crossref REST API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	mailto     string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMailto sets the contact address sent in the User-Agent, which puts
// requests in Crossref's polite pool.
func WithMailto(mailto string) ClientOption {
	return func(c *Client) {
		c.mailto = mailto
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithRateLimit sets the request rate in requests per second.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewClient creates a new Crossref client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		baseURL:    BaseURL,
	}

	if mailto := os.Getenv("CROSSREF_MAILTO"); mailto != "" {
		c.mailto = mailto
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// userAgent returns the User-Agent header value.
func (c *Client) userAgent() string {
	if c.mailto == "" {
		return "citegraph/1.0"
	}
	return fmt.Sprintf("citegraph/1.0 (mailto:%s)", c.mailto)
}

// SearchWorks runs a free-text bibliographic query and returns up to limit
// works ordered by relevance. Works without a title are dropped.
func (c *Client) SearchWorks(ctx context.Context, query string, limit int) ([]Work, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("rows", strconv.Itoa(min(limit, MaxRows)))
	params.Set("sort", "relevance")
	params.Set("order", "desc")

	var resp worksResponse
	if err := c.get(ctx, "/works?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	works := make([]Work, 0, len(resp.Message.Items))
	for _, raw := range resp.Message.Items {
		if w, ok := MapWork(raw); ok {
			works = append(works, w)
		}
		if len(works) == limit {
			break
		}
	}
	return works, nil
}

// GetWorkByDOI fetches the work registered under doi. The DOI is normalized
// first. Returns ErrNotFound for unknown DOIs and for works without a title.
func (c *Client) GetWorkByDOI(ctx context.Context, doi string) (*Work, error) {
	doi = paper.NormalizeDOI(doi)
	if doi == "" {
		return nil, ErrNotFound
	}

	var resp workResponse
	if err := c.get(ctx, "/works/"+url.PathEscape(doi), &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			apiErr.DOI = doi
		}
		return nil, err
	}

	w, ok := MapWork(resp.Message)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no title", ErrNotFound, doi)
	}
	return &w, nil
}

// get performs a rate-limited GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if err := checkHTTPErrors(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading body: %v", ErrNetworkError, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// checkHTTPErrors returns an error if the HTTP response indicates a problem.
func checkHTTPErrors(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Message: string(msg)}
	}
	return nil
}
