// Package token talks to the platform's security endpoints. It performs a
// single request per call and leaves retry policy to its callers.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	LoginPath   = "/api/v1/security/login"
	RefreshPath = "/api/v1/security/refresh"
	CSRFPath    = "/api/v1/security/csrf_token/"
	LogoutPath  = "/api/v1/security/logout"
	MePath      = "/api/v1/me/"
	MeRolesPath = "/api/v1/me/roles/"

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// LoginResult carries the tokens returned by a successful login.
type LoginResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Provider string `json:"provider"`
	Refresh  bool   `json:"refresh"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

type resultEnvelope struct {
	Result json.RawMessage `json:"result"`
}

// Client issues login, refresh, csrf, identity and logout calls.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(tc *Client) {
		if c != nil {
			tc.httpClient = c
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(tc *Client) {
		if d > 0 {
			tc.httpClient = &http.Client{Timeout: d, Transport: tc.httpClient.Transport}
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(tc *Client) {
		tc.logger = l
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "token").Logger()
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges username and password for an access/refresh token pair.
// 400 and 401 map to errors.ErrInvalidCredentials; transport failures map to
// errors.ErrUnreachable.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	body := loginRequest{Username: username, Password: password, Provider: "db", Refresh: true}

	var res LoginResult
	status, err := c.call(ctx, http.MethodPost, LoginPath, "", body, &res)
	if err != nil {
		if status == http.StatusBadRequest || status == http.StatusUnauthorized {
			return nil, pkgerrors.Wrap(errors.Join(errors.ErrInvalidCredentials, err), "[Client.Login]")
		}
		return nil, pkgerrors.Wrap(err, "[Client.Login]")
	}
	if res.AccessToken == "" {
		return nil, pkgerrors.Wrap(errors.ErrInvalidResponse, "[Client.Login] no access token in response")
	}
	return &res, nil
}

// Refresh trades the refresh token for a new access token. The refresh
// token itself is sent as the bearer.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", pkgerrors.Wrap(errors.ErrTokenExpired, "[Client.Refresh] no refresh token")
	}
	var res refreshResponse
	status, err := c.call(ctx, http.MethodPost, RefreshPath, refreshToken, map[string]string{"refresh_token": refreshToken}, &res)
	if err != nil {
		if status == http.StatusUnauthorized || status == http.StatusUnprocessableEntity {
			return "", pkgerrors.Wrap(errors.Join(errors.ErrTokenExpired, err), "[Client.Refresh]")
		}
		return "", pkgerrors.Wrap(err, "[Client.Refresh]")
	}
	if res.AccessToken == "" {
		return "", pkgerrors.Wrap(errors.ErrInvalidResponse, "[Client.Refresh] no access token in response")
	}
	return res.AccessToken, nil
}

// FetchCSRF returns the anti-forgery token for the session.
func (c *Client) FetchCSRF(ctx context.Context, accessToken string) (string, error) {
	var env resultEnvelope
	if _, err := c.call(ctx, http.MethodGet, CSRFPath, accessToken, nil, &env); err != nil {
		return "", pkgerrors.Wrap(err, "[Client.FetchCSRF]")
	}
	var csrf string
	if err := json.Unmarshal(env.Result, &csrf); err != nil || csrf == "" {
		return "", pkgerrors.Wrap(errors.ErrInvalidResponse, "[Client.FetchCSRF] result is not a token")
	}
	return csrf, nil
}

// Logout tells the platform to end the session. Callers treat failure as
// best-effort.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	if _, err := c.call(ctx, http.MethodPost, LogoutPath, accessToken, nil, nil); err != nil {
		return pkgerrors.Wrap(err, "[Client.Logout]")
	}
	return nil
}

// call sends one JSON request and decodes a 2xx JSON body into out. It returns
// the HTTP status, or 0 when no response was received.
func (c *Client) call(ctx context.Context, method, path, bearer string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, pkgerrors.Wrap(err, "marshal request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		(&oauth2.Token{AccessToken: bearer, TokenType: "Bearer"}).SetAuthHeader(req)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, errors.Join(errors.ErrUnreachable, errors.Join(errors.ErrNetwork, err))
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(started)).
		Msg("security call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, classify(resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, errors.Join(errors.ErrInvalidResponse, err)
	}
	return resp.StatusCode, nil
}

func classify(status int, body string) error {
	detail := fmt.Errorf("status %d: %s", status, body)
	switch {
	case status == http.StatusUnauthorized:
		return errors.Join(errors.ErrUnauthenticated, detail)
	case status == http.StatusForbidden:
		return errors.Join(errors.ErrForbidden, detail)
	case status == http.StatusNotFound || status == http.StatusMethodNotAllowed:
		return errors.Join(errors.ErrEndpointNotFound, detail)
	case status >= 500:
		return errors.Join(errors.ErrUnreachable, errors.Join(errors.ErrServerFault, detail))
	default:
		return detail
	}
}
