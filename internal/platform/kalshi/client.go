package kalshi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

const (
	// defaultTimeout bounds each HTTP request when no timeout is configured.
	defaultTimeout = 30 * time.Second

	// pageLimit is the page size requested from the markets endpoint.
	pageLimit = 200

	// defaultMaxPages caps cursor pagination when no ceiling is configured.
	defaultMaxPages = 500
)

// ClientConfig carries the settings for the Kalshi REST client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
	BaseURL  string
	Email    string
	Password string
	Timeout  time.Duration

	// MaxPages caps cursor pagination in ListOpenMarkets. Hitting the cap
	// is an error rather than a silent truncation.
	MaxPages int
}

// Client is the REST client for the Kalshi exchange API. Authentication is
// session based: the client logs in with email and password and reuses the
// issued bearer token until it nears expiry.
type Client struct {
	baseURL    string
	email      string
	password   string
	maxPages   int
	httpClient *http.Client
	tokens     *TokenCache
}

// NewClient creates a new Kalshi REST client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	c := &Client{
		baseURL:  cfg.BaseURL,
		email:    cfg.Email,
		password: cfg.Password,
		maxPages: maxPages,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	c.tokens = NewTokenCache(c.login)

	return c
}

// Tokens exposes the session token cache so callers can invalidate the
// cached token after the API rejects it.
func (c *Client) Tokens() *TokenCache {
	return c.tokens
}

// ListOpenMarkets returns every open market, following cursor pagination
// until the API stops returning a cursor. Markets come back in the order
// the API yields them.
func (c *Client) ListOpenMarkets(ctx context.Context) ([]domain.Market, error) {
	var (
		markets []domain.Market
		cursor  string
	)

	for page := 0; ; page++ {
		if page >= c.maxPages {
			return nil, fmt.Errorf("kalshi: list markets: cursor still present after %d pages", c.maxPages)
		}

		params := url.Values{}
		params.Set("status", "open")
		params.Set("limit", strconv.Itoa(pageLimit))
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		body, err := c.doAuthedRequest(ctx, http.MethodGet, "/markets?"+params.Encode())
		if err != nil {
			return nil, fmt.Errorf("kalshi: list markets: %w", err)
		}

		var resp struct {
			Markets []KalshiMarket `json:"markets"`
			Cursor  string         `json:"cursor"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("kalshi: decode markets: %w", err)
		}

		for _, m := range resp.Markets {
			markets = append(markets, m.ToMarket())
		}

		if resp.Cursor == "" {
			return markets, nil
		}
		cursor = resp.Cursor
	}
}

// GetMarket returns a single market by its ticker. A ticker the API does
// not know maps to domain.ErrNotFound.
func (c *Client) GetMarket(ctx context.Context, ticker string) (domain.Market, error) {
	path := fmt.Sprintf("/markets/%s", url.PathEscape(ticker))

	body, err := c.doAuthedRequest(ctx, http.MethodGet, path)
	if err != nil {
		return domain.Market{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}

	var resp struct {
		Market KalshiMarket `json:"market"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Market{}, fmt.Errorf("kalshi: decode market: %w", err)
	}

	if resp.Market.Ticker == "" {
		// Some deployments return the market object without an envelope.
		if err := json.Unmarshal(body, &resp.Market); err != nil {
			return domain.Market{}, fmt.Errorf("kalshi: decode market: %w", err)
		}
	}

	return resp.Market.ToMarket(), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// login exchanges the configured credentials for a fresh session. The token
// cache calls it whenever no valid token is available.
func (c *Client) login(ctx context.Context) (session, error) {
	payload := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{
		Email:    c.email,
		Password: c.password,
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return session{}, fmt.Errorf("kalshi: marshal login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(jsonBody))
	if err != nil {
		return session{}, fmt.Errorf("kalshi: create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return session{}, fmt.Errorf("kalshi: login: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return session{}, fmt.Errorf("kalshi: read login response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return session{}, fmt.Errorf("kalshi: login: %w", err)
	}

	var loginResp struct {
		Token    string `json:"token"`
		MemberID string `json:"member_id"`
	}
	if err := json.Unmarshal(respBody, &loginResp); err != nil {
		return session{}, fmt.Errorf("kalshi: decode login response: %w", err)
	}
	if loginResp.Token == "" {
		return session{}, fmt.Errorf("kalshi: login response carried no token")
	}

	return session{Token: loginResp.Token, MemberID: loginResp.MemberID}, nil
}

// doAuthedRequest acquires a session token, sends the request with a bearer
// Authorization header, and reads the response.
func (c *Client) doAuthedRequest(ctx context.Context, method, path string) ([]byte, error) {
	token, err := c.tokens.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to appropriate errors. Missing
// resources and authentication rejections map onto domain sentinels so
// callers can branch with errors.Is instead of parsing messages.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr KalshiErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s (%s)", domain.ErrNotFound, apiErr.Message, apiErr.Code)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s (%s)", domain.ErrAuthRejected, apiErr.Message, apiErr.Code)
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited: %s (%s)", apiErr.Message, apiErr.Code)
	case http.StatusBadRequest:
		return fmt.Errorf("bad request: %s (%s)", apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}
