// Package gateway is the single outbound channel to the fridge backend. It
// exposes one method per backend operation, attaches bearer tokens through a
// TokenSource, and normalizes transport and status failures into a typed
// error taxonomy.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	basePath       = "/api/v1"
	defaultTimeout = 10 * time.Second
)

// TokenSource produces a currently-valid bearer token for authenticated
// requests. session.Manager implements it.
type TokenSource interface {
	GetValidToken(ctx context.Context) (string, error)
}

// Client talks to the fridge backend. It is stateless per request apart from
// the token read and the cookie jar holding the ambient refresh credential.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     zerolog.Logger
	userAgent  string
	tokens     TokenSource
	limiter    *rate.Limiter
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client (primarily for tests).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the request logger.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithUserAgent sets the default User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// WithTokenSource sets the bearer token provider.
func WithTokenSource(ts TokenSource) ClientOption {
	return func(c *Client) { c.tokens = ts }
}

// WithTimeout overrides the fixed request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRateLimit caps outbound requests at rps with the given burst.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// NewClient builds a Client for the backend at rawURL. The scheme defaults
// to http when omitted. The default HTTP client carries a cookie jar so the
// refresh credential set by the backend round-trips on refresh calls.
func NewClient(rawURL string, options ...ClientOption) (*Client, error) {
	if rawURL == "" {
		return nil, errors.New("[NewClient] base URL is required")
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base URL")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "create cookie jar")
	}

	client := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: defaultTimeout, Jar: jar},
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(client)
	}
	return client, nil
}

// SetTokenSource wires the bearer token provider after construction. The
// session manager needs the client to exist first, so the two are connected
// in a second step.
func (c *Client) SetTokenSource(ts TokenSource) { c.tokens = ts }

// callOpts tunes a single request.
type callOpts struct {
	auth      bool   // attach a bearer token
	userAgent string // per-call User-Agent override
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, opts callOpts) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + basePath + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	ua := c.userAgent
	if opts.userAgent != "" {
		ua = opts.userAgent
	}
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if opts.auth {
		if c.tokens == nil {
			return fmt.Errorf("%w: no token source configured", ErrUnauthenticated)
		}
		token, err := c.tokens.GetValidToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug().Str("method", method).Str("path", path).Msg("backend request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if err := statusToError(resp.StatusCode, string(respBody)); err != nil {
		c.logger.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("backend error response")
		return err
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Login authenticates with email and password. No bearer token is attached;
// the backend sets the refresh credential cookie on success.
func (c *Client) Login(ctx context.Context, req LoginRequest, userAgent string) (*TokenResponse, error) {
	var out TokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", nil, req, &out, callOpts{userAgent: userAgent})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshTokens mints a new access token using the ambient refresh
// credential held in the cookie jar.
func (c *Client) RefreshTokens(ctx context.Context, userAgent string) (*TokenResponse, error) {
	var out TokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/refresh_tokens", nil, struct{}{}, &out, callOpts{userAgent: userAgent})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the session server-side.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/auth/logout", nil, nil, nil, callOpts{auth: true})
}

// GetMe fetches the authenticated user's profile.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, nil, &out, callOpts{auth: true}); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateUser registers a new account.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodPost, "/users/", nil, req, &out, callOpts{}); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMe removes the authenticated user's account.
func (c *Client) DeleteMe(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/users/me", nil, nil, nil, callOpts{auth: true})
}

// GetFridgeProducts lists inventory records matching the filter.
func (c *Client) GetFridgeProducts(ctx context.Context, filter FridgeProductFilter) (*FridgeProductList, error) {
	query := url.Values{}
	if filter.ProductIDEq != nil {
		query.Set("product_id_eq", strconv.FormatInt(*filter.ProductIDEq, 10))
	}
	if filter.FridgeIDEq != nil {
		query.Set("fridge_id_eq", strconv.FormatInt(*filter.FridgeIDEq, 10))
	}
	var out FridgeProductList
	if err := c.do(ctx, http.MethodGet, "/fridge_products/", query, nil, &out, callOpts{auth: true}); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateFridgeProduct creates one inventory record.
func (c *Client) CreateFridgeProduct(ctx context.Context, req CreateFridgeProductRequest) (*FridgeProduct, error) {
	var out FridgeProduct
	if err := c.do(ctx, http.MethodPost, "/fridge_products/", nil, req, &out, callOpts{auth: true}); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteFridgeProduct removes one inventory record.
func (c *Client) DeleteFridgeProduct(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/fridge_products/%d", id)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil, callOpts{auth: true})
}

// CreateProduct registers a physical item; the returned id is what gets
// encoded into its QR code.
func (c *Client) CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error) {
	var out Product
	if err := c.do(ctx, http.MethodPost, "/products/", nil, req, &out, callOpts{auth: true}); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProduct fetches one product.
func (c *Client) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var out Product
	path := fmt.Sprintf("/products/%d", id)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out, callOpts{auth: true}); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetProductOpened marks a product as opened, switching it to the
// post-opening expiry period.
func (c *Client) SetProductOpened(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/products/open/%d", id)
	return c.do(ctx, http.MethodPost, path, nil, nil, nil, callOpts{auth: true})
}

// GetProductTypes lists the known product types.
func (c *Client) GetProductTypes(ctx context.Context) ([]ProductType, error) {
	var out []ProductType
	if err := c.do(ctx, http.MethodGet, "/product_types/", nil, nil, &out, callOpts{auth: true}); err != nil {
		return nil, err
	}
	return out, nil
}

// GetFridges lists the fridges visible to the user.
func (c *Client) GetFridges(ctx context.Context) ([]Fridge, error) {
	var out []Fridge
	if err := c.do(ctx, http.MethodGet, "/fridges/", nil, nil, &out, callOpts{auth: true}); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCartProducts lists the shopping list.
func (c *Client) GetCartProducts(ctx context.Context) ([]CartProduct, error) {
	var out []CartProduct
	if err := c.do(ctx, http.MethodGet, "/cart_products/", nil, nil, &out, callOpts{auth: true}); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateCartProduct adds one entry to the shopping list.
func (c *Client) CreateCartProduct(ctx context.Context, req CreateCartProductRequest) (*CartProduct, error) {
	var out CartProduct
	if err := c.do(ctx, http.MethodPost, "/cart_products/", nil, req, &out, callOpts{auth: true}); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteCartProduct removes one shopping-list entry.
func (c *Client) DeleteCartProduct(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/cart_products/%d", id)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil, callOpts{auth: true})
}

// GetStatistics fetches consumption statistics for the date range.
func (c *Client) GetStatistics(ctx context.Context, filter StatisticsFilter) (*Statistics, error) {
	query := url.Values{}
	if filter.DateFrom != nil {
		query.Set("date_from", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query.Set("date_to", *filter.DateTo)
	}
	var out Statistics
	if err := c.do(ctx, http.MethodGet, "/statistics/", query, nil, &out, callOpts{auth: true}); err != nil {
		return nil, err
	}
	return &out, nil
}
