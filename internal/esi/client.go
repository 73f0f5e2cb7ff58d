package esi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"eve-dealfinder/internal/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultBaseURL   = "https://esi.evetech.net/latest"
	DefaultUserAgent = "eve-dealfinder/1.0 (github.com)"
)

// TokenSource yields the bearer token for authenticated ESI routes.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Options configures a Client. Zero fields take defaults.
type Options struct {
	BaseURL     string
	UserAgent   string
	Timeout     time.Duration
	Connections int // concurrent in-flight requests
}

// Client is a rate-limited ESI HTTP client.
type Client struct {
	http       *resty.Client
	baseURL    string
	sem        chan struct{}
	orderCache *OrderCache
	names      *cache.Cache // type/system/constellation lookups
}

// NewClient creates an ESI client. ESI allows up to 150 error-free
// requests/sec; Connections bounds how many are in flight at once.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Connections <= 0 {
		opts.Connections = 50
	}

	h := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", "application/json")
	h.JSONMarshal = json.Marshal
	h.JSONUnmarshal = json.Unmarshal

	return &Client{
		http:       h,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		sem:        make(chan struct{}, opts.Connections),
		orderCache: NewOrderCache(),
		names:      cache.New(24*time.Hour, time.Hour),
	}
}

// BaseURL returns the ESI root every route is built on.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	method  string
	url     string
	token   string
	body    any
	headers map[string]string
}

// do executes one request under the connection semaphore and maps the
// status to the package error taxonomy. A 304 is returned without error.
func (c *Client) do(ctx context.Context, r request) (*resty.Response, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.sem }()

	req := c.http.R().SetContext(ctx).SetHeaders(r.headers)
	if r.token != "" {
		req.SetAuthToken(r.token)
	}
	if r.body != nil {
		req.SetBody(r.body)
	}

	resp, err := req.Execute(r.method, r.url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.ESIResponses.WithLabelValues("transport").Inc()
		return nil, &TransientError{Err: err}
	}
	metrics.ESIResponses.WithLabelValues(statusClass(resp.StatusCode())).Inc()

	if err := statusError(resp.StatusCode(), resp.Body()); err != nil {
		return resp, err
	}
	return resp, nil
}

// GetJSON fetches a public URL and decodes JSON into dst.
func (c *Client) GetJSON(ctx context.Context, url string, dst any) error {
	return c.AuthGetJSON(ctx, url, "", dst)
}

// AuthGetJSON fetches url with a bearer token (empty = anonymous) and decodes JSON into dst.
func (c *Client) AuthGetJSON(ctx context.Context, url, accessToken string, dst any) error {
	resp, err := c.do(ctx, request{method: http.MethodGet, url: url, token: accessToken})
	if err != nil {
		return err
	}
	return json.Unmarshal(resp.Body(), dst)
}

// PostJSON posts body as JSON and decodes the response into dst.
func (c *Client) PostJSON(ctx context.Context, url string, body, dst any) error {
	resp, err := c.do(ctx, request{
		method:  http.MethodPost,
		url:     url,
		body:    body,
		headers: map[string]string{"Content-Type": "application/json"},
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(resp.Body(), dst)
}

func withPage(url string, page int) string {
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spage=%d", url, sep, page)
}

// pageCount reads X-Pages; missing or malformed means a single page.
func pageCount(h http.Header) int {
	if p := h.Get("X-Pages"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 1 {
			return n
		}
	}
	return 1
}

// getPages fetches every page of a paginated endpoint. Page 1 is fetched
// first to learn X-Pages, the rest concurrently. Any failing page fails the
// whole fetch. The returned header is page 1's.
func getPages[T any](ctx context.Context, c *Client, url, accessToken string) ([][]T, http.Header, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, url: withPage(url, 1), token: accessToken})
	if err != nil {
		return nil, nil, err
	}
	var first []T
	if err := json.Unmarshal(resp.Body(), &first); err != nil {
		return nil, nil, fmt.Errorf("decode page 1: %w", err)
	}

	total := pageCount(resp.Header())
	pages := make([][]T, total)
	pages[0] = first
	if total == 1 {
		return pages, resp.Header(), nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for p := 2; p <= total; p++ {
		p := p
		g.Go(func() error {
			var data []T
			if err := c.AuthGetJSON(gctx, withPage(url, p), accessToken, &data); err != nil {
				return fmt.Errorf("page %d: %w", p, err)
			}
			pages[p-1] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return pages, resp.Header(), nil
}

// HealthCheck pings ESI to verify connectivity.
func (c *Client) HealthCheck(ctx context.Context) bool {
	var status struct {
		Players int `json:"players"`
	}
	return c.GetJSON(ctx, c.baseURL+"/status/?datasource=tranquility", &status) == nil
}
