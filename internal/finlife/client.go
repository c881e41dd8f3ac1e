package finlife

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the finlife open API root.
	DefaultBaseURL = "http://finlife.fss.or.kr/finlifeapi"
	// GroupBanks is the topFinGrpNo of commercial banks.
	GroupBanks = "020000"

	depositSearchPath = "/depositProductsSearch.json"
	upstreamOK        = "000"
	maxBodyBytes      = 16 << 20
)

// ClientConfig configures the finlife API client.
type ClientConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MaxPages       int
	PagesPerSecond float64
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Client fetches deposit product pages from the finlife API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxPages   int
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient constructs a Client with defaults for unset fields.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	pps := cfg.PagesPerSecond
	if pps <= 0 {
		pps = 2
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		maxPages:   maxPages,
		limiter:    rate.NewLimiter(rate.Limit(pps), 1),
		logger:     logger,
	}
}

// Page is one decoded upstream page.
type Page struct {
	Batch
	Number   int
	MaxPage  int
	Total    int
	Division string
}

// Fetch requests a single page for the given financial group.
func (c *Client) Fetch(ctx context.Context, group string, page int) (Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Page{}, err
	}

	query := url.Values{}
	query.Set("auth", c.apiKey)
	query.Set("topFinGrpNo", group)
	query.Set("pageNo", strconv.Itoa(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+depositSearchPath+"?"+query.Encode(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("finlife: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrUpstream, redactKey(err.Error(), c.apiKey))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Page{}, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Page{}, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	if env.Result == nil || env.Result.empty() {
		return Page{}, ErrUpstream
	}
	if code := strings.TrimSpace(env.Result.ErrCode); code != "" && code != upstreamOK {
		return Page{}, fmt.Errorf("%w: %s %s", ErrUpstream, code, env.Result.ErrMsg)
	}

	out := Page{
		Batch:    env.Result.batch(),
		Number:   page,
		MaxPage:  int(env.Result.MaxPageNo.Value),
		Total:    int(env.Result.TotalCount.Value),
		Division: env.Result.ProductDivision,
	}
	c.logger.Debug("finlife page fetched",
		slog.String("group", group),
		slog.Int("page", page),
		slog.Int("products", len(out.Products)),
		slog.Int("options", len(out.Options)))
	return out, nil
}

// FetchAll walks pages starting at 1 until the upstream's max_page_no or the
// configured page cap, whichever comes first.
func (c *Client) FetchAll(ctx context.Context, group string) (Batch, error) {
	first, err := c.Fetch(ctx, group, 1)
	if err != nil {
		return Batch{}, err
	}
	batch := first.Batch
	last := first.MaxPage
	if last > c.maxPages {
		last = c.maxPages
	}
	for page := 2; page <= last; page++ {
		next, err := c.Fetch(ctx, group, page)
		if err != nil {
			return Batch{}, err
		}
		batch.Append(next.Batch)
	}
	return batch, nil
}

func redactKey(msg, key string) string {
	if key == "" {
		return msg
	}
	return strings.ReplaceAll(msg, key, "REDACTED")
}
