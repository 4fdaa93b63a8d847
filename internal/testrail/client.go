// Package testrail is a small client for the TestRail API v2: enough to build
// a run from a section tree, post one result per scenario, attach failure
// screenshots and close the run.
//
// Requests go to {base}/index.php?/api/v2/{endpoint} with basic auth. Every
// request waits on a token-bucket limiter, and 429/5xx responses are retried
// with backoff by the transport.
package testrail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/kuitang/storefront-e2e/internal/errs"
	"github.com/kuitang/storefront-e2e/internal/logutil"
	"github.com/kuitang/storefront-e2e/internal/obs"
)

const (
	apiPrefix       = "/index.php?/api/v2/"
	logBodyMaxBytes = 512
)

// Config configures a Client.
type Config struct {
	BaseURL      string
	User         string
	Token        string
	RPS          float64 // <= 0 disables throttling
	Burst        int
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
	Logger       *slog.Logger
}

// Client talks to one TestRail instance.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	baseURL string
	log     *slog.Logger
}

// New creates a client. Zero-valued retry and timeout settings get defaults.
func New(cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = obs.Pkg("testrail")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = time.Second
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = 30 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = max(cfg.MaxRetries, 0)
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = log // *slog.Logger satisfies retryablehttp.LeveledLogger
	// Hand the last 429/5xx response back to resty so apiError can map it.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(cfg.Timeout).
		SetBasicAuth(cfg.User, cfg.Token).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "storefront-e2e/1.0")

	restyClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		log.Debug("testrail request",
			"method", req.Method,
			"endpoint", endpointOf(req.URL),
			"headers", logutil.FormatHeadersForLog(req.Header),
			"body", requestBodyForLog(req),
		)
		return nil
	})
	restyClient.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		log.Debug("testrail response",
			"method", resp.Request.Method,
			"endpoint", endpointOf(resp.Request.URL),
			"status", resp.StatusCode(),
			"duration", resp.Time(),
			"body", logutil.FormatBodyForLog(resp.Header().Get("Content-Type"), resp.Body(), logBodyMaxBytes),
		)
		return nil
	})

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), max(cfg.Burst, 1))
	}

	return &Client{
		resty:   restyClient,
		limiter: limiter,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		log:     log,
	}
}

// URL returns the full request URL for endpoint.
func (c *Client) URL(endpoint string) string {
	return c.baseURL + apiPrefix + strings.TrimPrefix(endpoint, "/")
}

func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errs.Wrap(errs.Unavailable, "testrail: rate limiter", err)
	}
	return c.resty.R().SetContext(ctx), nil
}

// Get fetches endpoint and decodes the JSON response into out (may be nil).
func (c *Client) Get(ctx context.Context, endpoint string, out any) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	return c.do(req, http.MethodGet, endpoint, out)
}

// Post sends payload as JSON and decodes the response into out (may be nil).
func (c *Client) Post(ctx context.Context, endpoint string, payload, out any) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return c.do(req.SetBody(payload), http.MethodPost, endpoint, out)
}

// PostFile uploads the file at path as a multipart form field.
func (c *Client) PostFile(ctx context.Context, endpoint, field, path string, out any) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	return c.do(req.SetFile(field, path), http.MethodPost, endpoint, out)
}

func (c *Client) do(req *resty.Request, method, endpoint string, out any) error {
	op := fmt.Sprintf("testrail: %s %s", method, endpoint)

	resp, err := req.Execute(method, c.URL(endpoint))
	if err != nil {
		return errs.Wrap(errs.Unavailable, op, err)
	}
	if resp.IsError() {
		return apiError(op, resp)
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return errs.Wrap(errs.Internal, op+": decode response", err)
	}
	return nil
}

// apiError keeps TestRail's {"error": "..."} message when present.
func apiError(op string, resp *resty.Response) error {
	status := resp.StatusCode()
	var body struct {
		Error string `json:"error"`
	}
	detail := http.StatusText(status)
	if json.Unmarshal(resp.Body(), &body) == nil && body.Error != "" {
		detail = body.Error
	}
	return errs.New(errs.CodeForHTTPStatus(status), fmt.Sprintf("%s: %d: %s", op, status, detail))
}

func endpointOf(url string) string {
	if i := strings.Index(url, apiPrefix); i >= 0 {
		return url[i+len(apiPrefix):]
	}
	return url
}

func requestBodyForLog(req *resty.Request) string {
	if req.Body == nil {
		return ""
	}
	raw, err := json.Marshal(req.Body)
	if err != nil {
		return "[unencodable body]"
	}
	return logutil.FormatBodyForLog("application/json", raw, logBodyMaxBytes)
}
