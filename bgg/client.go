package bgg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	goerrors "github.com/goliatone/go-errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/goliatone/go-bgg-cache/thing"
)

// Text codes of gateway errors.
const (
	TextCodeUpstreamStatus   = "UPSTREAM_STATUS"
	TextCodeUpstreamRejected = "UPSTREAM_REJECTED"
	TextCodeDecodeFailed     = "UPSTREAM_DECODE_FAILED"
	TextCodeBatchTooLarge    = "BATCH_TOO_LARGE"
	TextCodeInvalidConfig    = "INVALID_CONFIG"
)

const (
	thingPath      = "/xmlapi2/thing"
	collectionPath = "/xmlapi2/collection"
	maxBodyBytes   = 16 << 20
)

// Config configures the XML API client.
type Config struct {
	BaseURL   string
	Token     string
	UserAgent string
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
	// MaxAttempts bounds attempts per call, the first one included.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// BatchSize is the largest id list FetchBatch accepts.
	BatchSize  int
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// DefaultConfig returns settings for the public BGG API.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://boardgamegeek.com",
		UserAgent:      "go-bgg-cache",
		Timeout:        30 * time.Second,
		MaxAttempts:    5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		BatchSize:      20,
	}
}

// Client talks to the BGG XML API2.
type Client struct {
	base   *url.URL
	http   *http.Client
	cfg    Config
	logger *slog.Logger
}

// New creates a Client. Zero config values fall back to DefaultConfig.
func New(cfg Config) (*Client, error) {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = max(def.MaxBackoff, cfg.InitialBackoff)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, goerrors.New("invalid bgg base url", goerrors.CategoryBadInput).
			WithTextCode(TextCodeInvalidConfig).
			WithMetadata(map[string]any{"base_url": cfg.BaseURL})
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{base: base, http: httpClient, cfg: cfg, logger: logger}, nil
}

// FetchBatch returns the records for ids. Ids unknown upstream are simply
// absent from the result. More than BatchSize ids is an error.
func (c *Client) FetchBatch(ctx context.Context, ids []string) ([]thing.Parsed, error) {
	if len(ids) == 0 {
		return []thing.Parsed{}, nil
	}
	if len(ids) > c.cfg.BatchSize {
		return nil, goerrors.New("too many ids for one request", goerrors.CategoryBadInput).
			WithTextCode(TextCodeBatchTooLarge).
			WithMetadata(map[string]any{"ids": len(ids), "max": c.cfg.BatchSize})
	}

	params := url.Values{}
	params.Set("id", strings.Join(ids, ","))
	params.Set("stats", "1")

	body, err := c.get(ctx, thingPath, params)
	if err != nil {
		return nil, err
	}
	return ParseThings(body)
}

// Collection returns the ids of the base games username owns.
func (c *Client) Collection(ctx context.Context, username string) ([]string, error) {
	params := url.Values{}
	params.Set("username", username)
	params.Set("own", "1")
	params.Set("excludesubtype", "boardgameexpansion")

	body, err := c.get(ctx, collectionPath, params)
	if err != nil {
		return nil, err
	}
	return ParseCollection(body)
}

// get performs a GET with retries. 202 (request queued), 429 and 5xx are
// retried with exponential backoff; any other non-200 status is final.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.base.JoinPath(path)
	endpoint.RawQuery = params.Encode()
	target := endpoint.String()

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(c.cfg.InitialBackoff),
				backoff.WithMaxInterval(c.cfg.MaxBackoff),
				backoff.WithMaxElapsedTime(0),
			),
			uint64(c.cfg.MaxAttempts-1),
		),
		ctx,
	)

	attempt := 0
	op := func() ([]byte, error) {
		attempt++
		body, status, err := c.do(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		if status == http.StatusOK {
			return body, nil
		}

		statusErr := goerrors.New(fmt.Sprintf("bgg returned %d", status), goerrors.CategoryExternal).
			WithTextCode(TextCodeUpstreamStatus).
			WithCode(status).
			WithMetadata(map[string]any{"path": path, "attempt": attempt})
		if retryable(status) {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("bgg request retry", "path", path, "attempt", attempt, "wait", wait, "error", err)
	}

	body, err := backoff.RetryNotifyWithData(op, policy, notify)
	if err != nil {
		var gerr *goerrors.Error
		if goerrors.As(err, &gerr) {
			return nil, err
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "bgg request failed").
			WithTextCode(TextCodeUpstreamStatus).
			WithMetadata(map[string]any{"path": path, "attempts": attempt})
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, target string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/xml")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func retryable(status int) bool {
	return status == http.StatusAccepted ||
		status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
}
