package fpl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/league"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/picks"
	"github.com/riskibarqy/fpl-combination-analysis/internal/domain/player"
	"github.com/riskibarqy/fpl-combination-analysis/internal/platform/logging"
	"github.com/riskibarqy/fpl-combination-analysis/internal/platform/resilience"
	"github.com/riskibarqy/fpl-combination-analysis/internal/usecase"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultBaseURL    = "https://fantasy.premierleague.com/api"
	defaultUserAgent  = "FPL League Analysis Tool"
	defaultTimeout    = 10 * time.Second
	defaultRetryDelay = time.Second
	maxResponseBytes  = 6 << 20
)

var errFPLTransient = crerr.New("fpl transient failure")

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	UserAgent      string
	Timeout        time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client talks to the public FPL API. It serves the bootstrap, standings and
// picks providers. A 429 trips the shared circuit breaker for the Retry-After
// window so every worker pauses together.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	userAgent      string
	maxRetries     int
	retryDelay     time.Duration
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
	flight         resilience.SingleFlight[[]byte]
}

var (
	_ player.Provider = (*Client)(nil)
	_ league.Provider = (*Client)(nil)
	_ picks.Provider  = (*Client)(nil)
)

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		userAgent:      userAgent,
		maxRetries:     max(cfg.MaxRetries, 0),
		retryDelay:     retryDelay,
		logger:         logger.With("component", "fpl_client"),
		breaker:        resilience.NewCircuitBreaker(breakerCfg),
		circuitEnabled: breakerCfg.Enabled,
	}
}

func (c *Client) FetchBootstrap(ctx context.Context) (player.Bootstrap, error) {
	var payload bootstrapResponse
	if err := c.doJSON(ctx, "/bootstrap-static/", nil, &payload); err != nil {
		return player.Bootstrap{}, fmt.Errorf("fetch bootstrap: %w", err)
	}

	out := payload.toDomain()
	if err := out.Validate(); err != nil {
		return player.Bootstrap{}, fmt.Errorf("%w: bootstrap payload: %v", usecase.ErrUpstream, err)
	}
	return out, nil
}

func (c *Client) FetchStandingsPage(ctx context.Context, leagueID int64, page int) (league.StandingsPage, error) {
	if leagueID <= 0 || page <= 0 {
		return league.StandingsPage{}, fmt.Errorf("%w: league id and page must be greater than zero", usecase.ErrInvalidInput)
	}

	path := fmt.Sprintf("/leagues-classic/%d/standings/", leagueID)
	query := url.Values{"page_standings": []string{strconv.Itoa(page)}}

	var payload standingsResponse
	if err := c.doJSON(ctx, path, query, &payload); err != nil {
		return league.StandingsPage{}, fmt.Errorf("fetch standings league_id=%d page=%d: %w", leagueID, page, err)
	}
	return payload.toDomain(leagueID, page), nil
}

func (c *Client) FetchPicks(ctx context.Context, managerID int64, gameweek int) (picks.ManagerPicks, error) {
	if managerID <= 0 || gameweek <= 0 {
		return picks.ManagerPicks{}, fmt.Errorf("%w: manager id and gameweek must be greater than zero", usecase.ErrInvalidInput)
	}

	path := fmt.Sprintf("/entry/%d/event/%d/picks/", managerID, gameweek)
	var payload picksResponse
	if err := c.doJSON(ctx, path, nil, &payload); err != nil {
		return picks.ManagerPicks{}, fmt.Errorf("fetch picks manager_id=%d gw=%d: %w", managerID, gameweek, err)
	}
	if len(payload.Picks) == 0 {
		return picks.ManagerPicks{}, fmt.Errorf("%w: manager %d has no squad for gw %d", usecase.ErrNotFound, managerID, gameweek)
	}

	out := payload.toDomain(managerID, gameweek)
	if err := out.Validate(); err != nil {
		return picks.ManagerPicks{}, fmt.Errorf("%w: picks payload manager_id=%d: %v", usecase.ErrUpstream, managerID, err)
	}
	return out, nil
}

// RetryAfter reports how long the breaker will keep rejecting calls.
func (c *Client) RetryAfter() time.Duration {
	if !c.circuitEnabled {
		return 0
	}
	return c.breaker.RetryAfter()
}

func (c *Client) doJSON(ctx context.Context, path string, query url.Values, target any) error {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "fpl circuit breaker rejected request",
				"state", c.breaker.State(),
				"retry_after", c.breaker.RetryAfter().String(),
			)
			return &ThrottleError{
				cause: fmt.Errorf("%w: fpl api is paused", usecase.ErrUpstreamUnavailable),
				wait:  c.breaker.RetryAfter(),
			}
		}
	}

	fullURL := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	// Identical requests share one round trip, cancelled only once every caller has given up.
	raw, err, _ := c.flight.Do(ctx, fullURL, func(reqCtx context.Context) ([]byte, error) {
		raw, reqErr := c.executeRequest(reqCtx, fullURL)
		if c.circuitEnabled {
			switch {
			case reqErr == nil:
				c.breaker.RecordSuccess()
			case errors.Is(reqErr, usecase.ErrRateLimited):
				// Already tripped by executeRequest.
			case isCircuitFailure(reqErr):
				c.breaker.RecordFailure()
			default:
				c.breaker.RecordSuccess()
			}
		}
		return raw, reqErr
	})
	if err != nil {
		return err
	}

	if err := sonic.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: decode %s: %v", usecase.ErrUpstream, path, err)
	}
	return nil
}

func (c *Client) executeRequest(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: build request: %v", usecase.ErrUpstream, err)
		}
		req.Header.Set("accept", "application/json")
		req.Header.Set("user-agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = fmt.Errorf("%w: %w: send request: %v", usecase.ErrUpstream, errFPLTransient, err)
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			_ = resp.Body.Close()

			switch {
			case readErr != nil:
				lastErr = fmt.Errorf("%w: %w: read response body: %v", usecase.ErrUpstream, errFPLTransient, readErr)
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return raw, nil
			case resp.StatusCode == http.StatusNotFound:
				return nil, fmt.Errorf("%w: %s", usecase.ErrNotFound, req.URL.Path)
			case resp.StatusCode == http.StatusTooManyRequests:
				return nil, c.rateLimited(ctx, req.URL.Path, resp.Header.Get("Retry-After"))
			case isRetryableStatus(resp.StatusCode):
				lastErr = fmt.Errorf("%w: %w: status=%d body=%s", usecase.ErrUpstream, errFPLTransient, resp.StatusCode, abbreviateBody(raw))
			default:
				return nil, fmt.Errorf("%w: status=%d body=%s", usecase.ErrUpstream, resp.StatusCode, abbreviateBody(raw))
			}
		}

		if attempt == c.maxRetries {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * c.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%w: request failed", usecase.ErrUpstream)
	}
	c.logger.WarnContext(ctx, "fpl request failed", "url", fullURL, "error", lastErr)
	return nil, lastErr
}

func (c *Client) rateLimited(ctx context.Context, path, retryAfterHeader string) error {
	wait := parseRetryAfter(retryAfterHeader, time.Now())
	if c.circuitEnabled {
		c.breaker.Trip(wait)
		wait = c.breaker.RetryAfter()
	}
	c.logger.WarnContext(ctx, "fpl api throttled request", "path", path, "retry_after", wait.String())
	return &ThrottleError{
		cause: fmt.Errorf("%w: %s", usecase.ErrRateLimited, path),
		wait:  wait,
	}
}

// ThrottleError carries how long callers should wait before the next request.
type ThrottleError struct {
	cause error
	wait  time.Duration
}

func (e *ThrottleError) Error() string {
	if e.wait <= 0 {
		return e.cause.Error()
	}
	return fmt.Sprintf("%s (retry after %s)", e.cause.Error(), e.wait)
}

func (e *ThrottleError) Unwrap() error {
	return e.cause
}

func (e *ThrottleError) RetryAfter() time.Duration {
	return e.wait
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := at.Sub(now); wait > 0 {
			return wait
		}
	}
	return 0
}

func isCircuitFailure(err error) bool {
	return err != nil && errors.Is(err, errFPLTransient)
}

func isRetryableStatus(code int) bool {
	return code >= http.StatusInternalServerError
}

func abbreviateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= 240 {
		return text
	}
	return text[:240] + "..."
}
