package ghl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/marketplacekit/ghl-adapter/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout bounds every outbound call to the platform.
	DefaultTimeout = 10 * time.Second

	// APIVersion is the platform API version header sent on resource calls.
	APIVersion = "2021-07-28"

	// maxAttempts is the total number of tries for a transient failure,
	// including the first one.
	maxAttempts = 3
)

var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.JSONFormatter{})
}

// Client talks to the platform's OAuth token endpoint and resource API.
// It is stateless: every method returns its result instead of caching it.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a platform client for the given app credentials.
func NewClient(baseURL, clientID, clientSecret string, opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// tokenResponse is the platform's token endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	UserType     string `json:"userType"`
	CompanyID    string `json:"companyId"`
	LocationID   string `json:"locationId"`
}

// errorResponse covers both RFC 6749 errors and the platform's message form.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

func (e *errorResponse) code() string {
	if e.Error != "" {
		return e.Error
	}
	return models.ErrInvalidRequest
}

func (e *errorResponse) description() string {
	if e.ErrorDescription != "" {
		return e.ErrorDescription
	}
	return e.Message
}

// ExchangeAuthorizationCode redeems an authorization code for an
// installation record. The tenant scope (company vs. location) is inferred
// from the platform response.
func (c *Client) ExchangeAuthorizationCode(ctx context.Context, code string) (*models.Installation, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	tr, errResp, err := c.postToken(ctx, "/oauth/token", form, "")
	if err != nil {
		return nil, &UpstreamUnavailableError{Op: "code exchange", Err: err}
	}
	if errResp != nil {
		return nil, &AuthExchangeError{Code: errResp.code(), Description: errResp.description()}
	}
	return c.toInstallation(tr, "")
}

// Refresh trades the record's refresh token for a fresh token pair. A
// platform rejection means the refresh token is no longer valid; the caller
// must invalidate the record rather than retry.
func (c *Client) Refresh(ctx context.Context, record *models.Installation) (*models.Installation, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {record.RefreshToken},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"user_type":     {string(record.TenantScope)},
	}

	tr, errResp, err := c.postToken(ctx, "/oauth/token", form, "")
	if err != nil {
		return nil, &UpstreamUnavailableError{Op: "token refresh", Err: err}
	}
	if errResp != nil {
		return nil, &RefreshError{TenantID: record.TenantID, Code: errResp.code(), Description: errResp.description()}
	}
	return c.toInstallation(tr, record.ParentCompanyID)
}

// DeriveLocationToken mints a location-scoped token from a company access
// token. Requires a Company+Location distribution with OAuth read-write
// scopes; the platform rejects the call otherwise.
func (c *Client) DeriveLocationToken(ctx context.Context, companyAccessToken, companyID, locationID string) (*models.Installation, error) {
	form := url.Values{
		"companyId":  {companyID},
		"locationId": {locationID},
	}

	tr, errResp, err := c.postToken(ctx, "/oauth/locationToken", form, companyAccessToken)
	if err != nil {
		return nil, &UpstreamUnavailableError{Op: "location token derivation", Err: err}
	}
	if errResp != nil {
		return nil, &ScopeError{CompanyID: companyID, LocationID: locationID,
			Code: errResp.code(), Description: errResp.description()}
	}

	record, err := c.toInstallation(tr, companyID)
	if err != nil {
		return nil, err
	}
	// The derivation endpoint omits userType; the result is a location
	// token by definition.
	record.TenantScope = models.ScopeLocation
	if record.TenantID == "" {
		record.TenantID = locationID
	}
	return record, nil
}

// Get performs an authenticated resource API call and returns the raw
// response body. The platform Version header is attached on every call.
func (c *Client) Get(ctx context.Context, accessToken, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Version", APIVersion)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamUnavailableError{Op: "resource request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamUnavailableError{Op: "resource request", Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("platform API returned %d for %s", resp.StatusCode, path)
	}
	return body, nil
}

// postToken posts a form to a token endpoint with bounded exponential
// retry. Transient failures (network errors, 5xx) are retried up to
// maxAttempts; any 4xx is final and comes back as a parsed error response.
func (c *Client) postToken(ctx context.Context, path string, form url.Values, bearer string) (*tokenResponse, *errorResponse, error) {
	var platformErr *errorResponse

	operation := func() (*tokenResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
			req.Header.Set("Version", APIVersion)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			return nil, fmt.Errorf("platform returned %d", resp.StatusCode)
		case resp.StatusCode >= http.StatusBadRequest:
			var er errorResponse
			if err := json.Unmarshal(body, &er); err != nil {
				er = errorResponse{Error: models.ErrInvalidRequest, Message: string(body)}
			}
			platformErr = &er
			// Protocol rejections are final; stop the retry loop.
			return nil, backoff.Permanent(fmt.Errorf("platform rejected request: %s", er.code()))
		}

		var tr tokenResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("malformed token response: %w", err))
		}
		return &tr, nil
	}

	tr, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.WithFields(logrus.Fields{
				"path":    path,
				"retryIn": next.String(),
			}).Warnf("Token endpoint call failed, retrying: %v", err)
		}),
	)
	if err != nil {
		if platformErr != nil {
			return nil, platformErr, nil
		}
		return nil, nil, err
	}
	return tr, nil, nil
}

// toInstallation converts a token endpoint response into a record keyed by
// the tenant the token belongs to.
func (c *Client) toInstallation(tr *tokenResponse, parentCompanyID string) (*models.Installation, error) {
	record := &models.Installation{
		AccessToken:     tr.AccessToken,
		RefreshToken:    tr.RefreshToken,
		TokenType:       models.TokenType(tr.TokenType),
		IssuedAt:        time.Now(),
		ExpiresIn:       tr.ExpiresIn,
		Scopes:          tr.Scope,
		ParentCompanyID: parentCompanyID,
	}
	if record.TokenType == "" {
		record.TokenType = models.TokenTypeBearer
	}

	switch tr.UserType {
	case string(models.ScopeLocation):
		record.TenantScope = models.ScopeLocation
		record.TenantID = tr.LocationID
	default:
		record.TenantScope = models.ScopeCompany
		record.TenantID = tr.CompanyID
	}
	if record.TenantID == "" && tr.LocationID != "" {
		record.TenantScope = models.ScopeLocation
		record.TenantID = tr.LocationID
	}

	if record.AccessToken == "" || record.TenantID == "" {
		return nil, fmt.Errorf("token response missing access token or tenant id")
	}
	return record, nil
}
