package apiclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/jrsteele09/go-superset-kernel/internal/errors"
	pkgerrors "github.com/pkg/errors"
)

// ProbeKey identifies a memoized resolution: one per resource kind and database.
type ProbeKey struct {
	Kind       string
	DatabaseID int
}

func (k ProbeKey) String() string {
	return fmt.Sprintf("%s/%d", k.Kind, k.DatabaseID)
}

// EndpointProbe records the ordered candidates for a key and the one that
// answered. Resolved is empty until a candidate succeeds.
type EndpointProbe struct {
	Candidates []string
	Resolved   string
}

// Attempt tries one candidate. memoized is true when the candidate was
// resolved by an earlier probe.
type Attempt func(ctx context.Context, candidate string, memoized bool) error

// ProbeAttempt is one failed candidate.
type ProbeAttempt struct {
	Candidate string
	Err       error
}

// ProbeError is returned when no candidate answered.
type ProbeError struct {
	Key      ProbeKey
	Attempts []ProbeAttempt
}

func (e *ProbeError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Candidate + ": " + a.Err.Error()
	}
	return fmt.Sprintf("no endpoint answered for %s [%s]", e.Key, strings.Join(parts, "; "))
}

func (e *ProbeError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts)+1)
	errs = append(errs, errors.ErrEndpointNotFound)
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// AnyEmpty reports whether some candidate answered well-formed but empty.
func (e *ProbeError) AnyEmpty() bool {
	for _, a := range e.Attempts {
		if errors.Is(a.Err, errors.ErrEmptyResult) {
			return true
		}
	}
	return false
}

// Advances reports whether a probe should move on to the next candidate
// after err. Authorization failures and exhausted transport retries stop it.
func Advances(err error) bool {
	if err == nil || errors.Terminal(err) || errors.Is(err, errors.ErrUnreachable) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.BadRequest() {
		return true
	}
	return errors.Is(err, errors.ErrEndpointNotFound) ||
		errors.Is(err, errors.ErrServerFault) ||
		errors.Is(err, errors.ErrEmptyResult) ||
		errors.Is(err, errors.ErrInvalidResponse)
}

// Probe walks candidates in order until attempt succeeds and memoizes the
// winner under key for the rest of the session. Once resolved, later probes
// for key go straight to the memoized candidate. If that candidate stops
// answering with an error that Advances, the probe carries on with the
// candidates after it and the memo follows the new winner. Every attempt
// runs under the session that started the probe.
func (c *Client) Probe(ctx context.Context, key ProbeKey, candidates []string, attempt Attempt) (string, error) {
	_, gen, err := c.session.AccessToken()
	if err != nil {
		return "", pkgerrors.Wrapf(err, "[Client.Probe] %s", key)
	}

	c.probeLock.Lock()
	resolved := ""
	if probe, ok := c.probes[key]; ok {
		resolved = probe.Resolved
	}
	c.probeLock.Unlock()

	perr := &ProbeError{Key: key}
	remaining := candidates
	if resolved != "" {
		err := attempt(ctx, resolved, true)
		if err == nil {
			if !c.session.IsCurrent(gen) {
				return "", c.sessionChanged(key)
			}
			return resolved, nil
		}
		if !Advances(err) {
			return "", err
		}
		c.logger.Debug().Err(err).Str("probe", key.String()).Str("endpoint", resolved).Msg("memoized endpoint stopped answering")
		perr.Attempts = append(perr.Attempts, ProbeAttempt{Candidate: resolved, Err: err})
		remaining = after(candidates, resolved)
	}

	for _, candidate := range remaining {
		if !c.session.IsCurrent(gen) {
			return "", c.sessionChanged(key)
		}
		err := attempt(ctx, candidate, false)
		if err == nil {
			if !c.session.IsCurrent(gen) {
				return "", c.sessionChanged(key)
			}
			c.remember(key, candidates, candidate)
			c.metrics.Resolution(key.Kind, candidate)
			c.logger.Debug().Str("probe", key.String()).Str("endpoint", candidate).Msg("endpoint resolved")
			return candidate, nil
		}
		if !Advances(err) {
			return "", err
		}
		c.logger.Debug().Err(err).Str("probe", key.String()).Str("endpoint", candidate).Msg("endpoint miss")
		perr.Attempts = append(perr.Attempts, ProbeAttempt{Candidate: candidate, Err: err})
	}

	if !c.session.IsCurrent(gen) {
		return "", c.sessionChanged(key)
	}
	c.remember(key, candidates, "")
	return "", perr
}

func (c *Client) sessionChanged(key ProbeKey) error {
	return pkgerrors.Wrapf(errors.ErrUnauthenticated, "[Client.Probe] %s: session ended while probing", key)
}

// remember records the outcome for key. An empty resolved forgets any earlier winner.
func (c *Client) remember(key ProbeKey, candidates []string, resolved string) {
	c.probeLock.Lock()
	defer c.probeLock.Unlock()
	c.probes[key] = &EndpointProbe{Candidates: append([]string(nil), candidates...), Resolved: resolved}
}

// after returns the candidates that follow resolved, or every other
// candidate when resolved is no longer listed.
func after(candidates []string, resolved string) []string {
	for i, candidate := range candidates {
		if candidate == resolved {
			return candidates[i+1:]
		}
	}
	out := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate != resolved {
			out = append(out, candidate)
		}
	}
	return out
}

// Probes returns a copy of the memo.
func (c *Client) Probes() map[ProbeKey]EndpointProbe {
	c.probeLock.Lock()
	defer c.probeLock.Unlock()
	out := make(map[ProbeKey]EndpointProbe, len(c.probes))
	for k, p := range c.probes {
		out[k] = EndpointProbe{Candidates: append([]string(nil), p.Candidates...), Resolved: p.Resolved}
	}
	return out
}

// ResetProbes forgets every resolution. It runs on logout.
func (c *Client) ResetProbes() {
	c.probeLock.Lock()
	defer c.probeLock.Unlock()
	c.probes = make(map[ProbeKey]*EndpointProbe)
}
