// Package apiclient wraps every call to the platform: it attaches the session
// headers, renews the bearer once on 401, retries reads on transport failures
// and resolves endpoints through ordered fallback probing.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	"github.com/jrsteele09/go-superset-kernel/internal/metrics"
	"github.com/jrsteele09/go-superset-kernel/session"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	HeaderCSRF      = "X-CSRFToken"
	HeaderRequestID = "X-Request-ID"

	defaultTimeout  = 30 * time.Second
	defaultAttempts = 3
	defaultBackoff  = 250 * time.Millisecond
	maxErrorBody    = 1024
)

// Session is what the client needs from the session manager.
type Session interface {
	EnsureValidToken(ctx context.Context) (string, error)
	AccessToken() (string, uint64, error)
	RefreshFrom(ctx context.Context, stale string) (string, error)
	CSRFToken() string
	IsCurrent(gen uint64) bool
	Expire(cause error)
	OnLogout(fn func())
}

var _ Session = (*session.Manager)(nil)

// Request describes one call. Path is relative to the base URL and may carry
// a query string.
type Request struct {
	Method string
	Path   string
	Body   any
	Header http.Header
	// ReadOnly marks a non-GET call as free of side effects so it may be
	// retried, such as running an introspection query.
	ReadOnly bool
	// Public sends the call without session credentials.
	Public bool
}

func (r *Request) isRead() bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return r.ReadOnly
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return pkgerrors.Wrap(errors.ErrInvalidResponse, "[Response.Decode] empty body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return pkgerrors.Wrap(errors.Join(errors.ErrInvalidResponse, err), "[Response.Decode]")
	}
	return nil
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	session    Session
	logger     zerolog.Logger
	metrics    *metrics.Recorder
	limiter    *rate.Limiter
	attempts   int
	backoff    time.Duration

	probeLock sync.Mutex
	probes    map[ProbeKey]*EndpointProbe
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.httpClient = &http.Client{Timeout: d, Transport: cl.httpClient.Transport}
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(cl *Client) {
		cl.metrics = r
	}
}

// WithReadRetry sets how many times a read is attempted and the linear
// backoff step between attempts.
func WithReadRetry(attempts int, backoff time.Duration) Option {
	return func(cl *Client) {
		if attempts > 0 {
			cl.attempts = attempts
		}
		if backoff >= 0 {
			cl.backoff = backoff
		}
	}
}

// WithRateLimit caps outgoing requests. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(cl *Client) {
		if rps <= 0 {
			cl.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		cl.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func New(baseURL string, sess Session, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		session:    sess,
		logger:     log.Logger,
		attempts:   defaultAttempts,
		backoff:    defaultBackoff,
		probes:     make(map[ProbeKey]*EndpointProbe),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "apiclient").Logger()
	sess.OnLogout(c.ResetProbes)
	return c
}

// Do sends req with the session's credentials. A 401 triggers one shared
// refresh and a single retry; a second 401 ends the session. Reads are
// retried on network and 5xx failures, mutations never are. Any change of
// session while the call is in flight fails it with errors.ErrUnauthenticated.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	read := req.isRead()
	refreshed := false

	if req.Public {
		return c.doPublic(ctx, req, read)
	}

	_, gen, err := c.session.AccessToken()
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "[Client.Do] %s %s", req.Method, req.Path)
	}

	for attempt := 1; ; attempt++ {
		if !c.session.IsCurrent(gen) {
			return nil, pkgerrors.Wrapf(errors.ErrUnauthenticated, "[Client.Do] %s %s: session ended before send", req.Method, req.Path)
		}
		if _, err := c.session.EnsureValidToken(ctx); err != nil {
			return nil, pkgerrors.Wrapf(err, "[Client.Do] %s %s", req.Method, req.Path)
		}
		bearer, current, err := c.session.AccessToken()
		if err == nil && current != gen {
			err = errors.ErrUnauthenticated
		}
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "[Client.Do] %s %s: session ended before send", req.Method, req.Path)
		}

		resp, err := c.send(ctx, req, bearer)
		if !c.session.IsCurrent(gen) {
			return nil, pkgerrors.Wrapf(errors.ErrUnauthenticated, "[Client.Do] %s %s: session ended while in flight", req.Method, req.Path)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if read && attempt < c.attempts {
				c.metrics.Retry("network")
				c.logger.Debug().Err(err).Int("attempt", attempt).Str("path", req.Path).Msg("retrying read")
				if err := c.sleep(ctx, time.Duration(attempt)*c.backoff); err != nil {
					return nil, err
				}
				continue
			}
			return nil, pkgerrors.Wrapf(errors.Join(errors.ErrNetwork, err), "[Client.Do] %s %s", req.Method, req.Path)
		}

		switch {
		case resp.Status >= 200 && resp.Status < 300:
			return resp, nil

		case resp.Status == http.StatusUnauthorized:
			statusErr := c.statusError(req, resp)
			if refreshed {
				c.session.Expire(statusErr)
				return nil, pkgerrors.Wrapf(errors.Join(errors.ErrUnreachable, statusErr), "[Client.Do] %s %s: rejected after refresh", req.Method, req.Path)
			}
			c.metrics.Retry("unauthorized")
			if _, err := c.session.RefreshFrom(ctx, bearer); err != nil {
				return nil, pkgerrors.Wrapf(err, "[Client.Do] %s %s", req.Method, req.Path)
			}
			if !c.session.IsCurrent(gen) {
				return nil, pkgerrors.Wrapf(errors.ErrUnauthenticated, "[Client.Do] %s %s: session ended during refresh", req.Method, req.Path)
			}
			refreshed = true
			attempt--

		case resp.Status >= 500:
			statusErr := c.statusError(req, resp)
			if read && attempt < c.attempts {
				c.metrics.Retry("server_fault")
				c.logger.Debug().Int("status", resp.Status).Int("attempt", attempt).Str("path", req.Path).Msg("retrying read")
				if err := c.sleep(ctx, time.Duration(attempt)*c.backoff); err != nil {
					return nil, err
				}
				continue
			}
			return nil, statusErr

		default:
			return nil, c.statusError(req, resp)
		}
	}
}

func (c *Client) doPublic(ctx context.Context, req *Request, read bool) (*Response, error) {
	for attempt := 1; ; attempt++ {
		resp, err := c.send(ctx, req, "")
		retryable := err != nil || resp.Status >= 500
		if retryable && read && attempt < c.attempts && ctx.Err() == nil {
			c.metrics.Retry("public")
			if err := c.sleep(ctx, time.Duration(attempt)*c.backoff); err != nil {
				return nil, err
			}
			continue
		}
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, pkgerrors.Wrapf(errors.Join(errors.ErrNetwork, err), "[Client.Do] %s %s", req.Method, req.Path)
		case resp.Status >= 200 && resp.Status < 300:
			return resp, nil
		default:
			return nil, c.statusError(req, resp)
		}
	}
}

func (c *Client) statusError(req *Request, resp *Response) *StatusError {
	body := resp.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &StatusError{Method: req.Method, Path: req.Path, Status: resp.Status, Body: strings.TrimSpace(string(body))}
}

func (c *Client) send(ctx context.Context, req *Request, bearer string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "marshal request body")
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "build request")
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		(&oauth2.Token{AccessToken: bearer, TokenType: "Bearer"}).SetAuthHeader(httpReq)
		if csrf := c.session.CSRFToken(); csrf != "" {
			httpReq.Header.Set(HeaderCSRF, csrf)
		}
	}
	requestID := uuid.New().String()
	httpReq.Header.Set(HeaderRequestID, requestID)

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.Request(req.Method, "network", time.Since(started))
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	took := time.Since(started)
	if err != nil {
		c.metrics.Request(req.Method, "network", took)
		return nil, err
	}

	c.metrics.Request(req.Method, outcome(resp.StatusCode), took)
	c.logger.Debug().
		Str("request_id", requestID).
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Dur("took", took).
		Msg("platform call")

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func outcome(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "ok"
	case status == http.StatusUnauthorized:
		return "unauthorized"
	case status >= 500:
		return "server_error"
	default:
		return "client_error"
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
