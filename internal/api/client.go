// Package api is the client for the remote feed-sharing API. The server is
// an opaque HTTP service; every authenticated call carries the opaque bearer
// token and every call is single-attempt so failure causes stay legible.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/feedlens/relay/internal/feed"
	"github.com/feedlens/relay/internal/infrastructure/logging"
	"github.com/feedlens/relay/internal/infrastructure/monitoring"
)

// Client talks to the remote API.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics attaches request metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
		}
	}
}

// New creates a client for the API at baseURL. The transport comes from
// retryablehttp for its connection pooling, with retries pinned to zero:
// network operations are single-attempt, errors surface to the user.
func New(baseURL string, logger *logging.Logger, opts ...Option) *Client {
	transportClient := retryablehttp.NewClient()
	transportClient.RetryMax = 0
	transportClient.Logger = nil

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "feedlens-relay/1.0").
		SetTransport(transportClient.HTTPClient.Transport)

	if logger == nil {
		logger = logging.NewNop()
	}

	c := &Client{
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  logger.Named("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetBaseURL repoints the client, e.g. after the synced apiUrl key changes.
func (c *Client) SetBaseURL(baseURL string) {
	c.http.SetBaseURL(baseURL)
}

// BaseURL returns the current API base URL.
func (c *Client) BaseURL() string {
	return c.http.BaseURL
}

// Register creates an account and returns its bearer token.
func (c *Client) Register(ctx context.Context, username, email, password string) (string, error) {
	var out tokenResponse
	err := c.call(ctx, "register", "", func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(registerRequest{Username: username, Email: email, Password: password}).
			SetResult(&out).
			Post("/api/register")
	})
	if err != nil {
		return "", err
	}
	return out.Token, nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out tokenResponse
	err := c.call(ctx, "login", "", func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(loginRequest{Username: username, Password: password}).
			SetResult(&out).
			Post("/api/login")
	})
	if err != nil {
		return "", err
	}
	return out.Token, nil
}

// Logout invalidates the session server-side. Callers treat failures as
// non-fatal; clearing the local token is the authoritative step.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.call(ctx, "logout", token, func(r *resty.Request) (*resty.Response, error) {
		return r.Post("/api/logout")
	})
}

// Verify checks token validity. Idempotent and side-effect-free.
func (c *Client) Verify(ctx context.Context, token string) (bool, error) {
	var out verifyResponse
	err := c.call(ctx, "verify", token, func(r *resty.Request) (*resty.Response, error) {
		return r.SetResult(&out).Get("/api/verify")
	})
	if err != nil {
		return false, err
	}
	return out.Valid, nil
}

// Profile fetches the authenticated user's account record.
func (c *Client) Profile(ctx context.Context, token string) (*Profile, error) {
	var out Profile
	err := c.call(ctx, "profile", token, func(r *resty.Request) (*resty.Response, error) {
		return r.SetResult(&out).Get("/api/user/profile")
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAccount removes the account after password re-entry.
func (c *Client) DeleteAccount(ctx context.Context, token, password string) error {
	return c.call(ctx, "delete", token, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(deleteRequest{Password: password}).Delete("/api/user/delete")
	})
}

// SaveCookies forwards a credential bundle so the server can poll the
// caller's feed on their behalf.
func (c *Client) SaveCookies(ctx context.Context, token string, cookies map[string]string) error {
	return c.call(ctx, "save-cookies", token, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(saveCookiesRequest{Cookies: cookies}).Post("/api/save-cookies")
	})
}

// ShareFeed grants username read access to the caller's feed.
func (c *Client) ShareFeed(ctx context.Context, token, username string) (string, error) {
	var out messageResponse
	err := c.call(ctx, "share-feed", token, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(shareRequest{ShareWith: username}).
			SetResult(&out).
			Post("/api/share-feed")
	})
	if err != nil {
		return "", err
	}
	return out.Message, nil
}

// UnshareFeed revokes a previously granted feed access.
func (c *Client) UnshareFeed(ctx context.Context, token, username string) (string, error) {
	var out messageResponse
	err := c.call(ctx, "unshare-feed", token, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("username", username).
			SetResult(&out).
			Delete("/api/unshare-feed/{username}")
	})
	if err != nil {
		return "", err
	}
	return out.Message, nil
}

// SharedUsers lists grantees: people the caller allowed to view their feed.
func (c *Client) SharedUsers(ctx context.Context, token string) ([]User, error) {
	var out []User
	err := c.call(ctx, "shared-users", token, func(r *resty.Request) (*resty.Response, error) {
		return r.SetResult(&out).Get("/api/shared-users")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FetchUsers lists grantors: people whose feeds the caller may load.
func (c *Client) FetchUsers(ctx context.Context, token string) ([]User, error) {
	var out []User
	err := c.call(ctx, "fetch-users", token, func(r *resty.Request) (*resty.Response, error) {
		return r.SetResult(&out).Get("/api/fetch-users")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FetchFeed pulls a snapshot of username's feed plus its tweet count.
func (c *Client) FetchFeed(ctx context.Context, token, username string) (*feed.Snapshot, int, error) {
	var out feedResponse
	err := c.call(ctx, "fetch-feed", token, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("username", username).
			SetResult(&out).
			Post("/api/fetch-feed/{username}")
	})
	if err != nil {
		return nil, 0, err
	}
	snap := &feed.Snapshot{SourceUser: out.SourceUser, Tweets: out.Tweets}
	if snap.SourceUser == "" {
		snap.SourceUser = username
	}
	count := out.Count
	if count == 0 {
		count = len(out.Tweets)
	}
	return snap, count, nil
}

// call runs one request with rate limiting, bearer auth, error mapping, and
// metrics. Non-2xx responses become ServerError with the server's message
// verbatim; transport failures wrap ErrNetwork.
func (c *Client) call(ctx context.Context, endpoint, token string, fn func(*resty.Request) (*resty.Response, error)) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	req := c.http.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	var fail errorResponse
	req.SetError(&fail)

	start := time.Now()
	resp, err := fn(req)
	elapsed := time.Since(start)

	if err != nil {
		c.metrics.ObserveAPIRequest(endpoint, "network_error", elapsed)
		c.logger.Warn("request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if resp.IsError() {
		c.metrics.ObserveAPIRequest(endpoint, "server_error", elapsed)
		return &ServerError{Status: resp.StatusCode(), Message: fail.Error}
	}

	c.metrics.ObserveAPIRequest(endpoint, "ok", elapsed)
	return nil
}
