package config

import (
	"time"

	"github.com/allisson/go-env"
)

type ClientConfig interface {
	GetRequestTimeout() time.Duration
	GetReadRetryAttempts() int
	GetRetryBackoff() time.Duration
	GetRefreshTimeout() time.Duration
	GetRequestsPerSecond() float64
	GetRequestBurst() int
}

type Client struct{}

var _ ClientConfig = Client{}

func (Client) GetRequestTimeout() time.Duration {
	return env.GetDuration("REQUEST_TIMEOUT_SECONDS", 30, time.Second)
}

// GetReadRetryAttempts is the total number of attempts for a read call, including the first.
func (Client) GetReadRetryAttempts() int {
	return env.GetInt("READ_RETRY_ATTEMPTS", 3)
}

// GetRetryBackoff is the linear backoff step; attempt n waits n*step.
func (Client) GetRetryBackoff() time.Duration {
	return env.GetDuration("RETRY_BACKOFF_MS", 250, time.Millisecond)
}

func (Client) GetRefreshTimeout() time.Duration {
	return env.GetDuration("REFRESH_TIMEOUT_SECONDS", 10, time.Second)
}

// GetRequestsPerSecond of zero disables outgoing rate limiting.
func (Client) GetRequestsPerSecond() float64 {
	return env.GetFloat64("REQUESTS_PER_SECOND", 0)
}

func (Client) GetRequestBurst() int {
	return env.GetInt("REQUEST_BURST", 10)
}
