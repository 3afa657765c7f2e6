package errors_test

import (
	stderrors "errors"
	"testing"

	apperrors "github.com/jrsteele09/go-superset-kernel/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinMatchesBothSentinelAndCause(t *testing.T) {
	cause := stderrors.New("dial tcp: connection refused")
	err := apperrors.Join(apperrors.ErrUnreachable, cause)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnreachable))
	assert.True(t, apperrors.Is(err, cause))
	assert.Equal(t, apperrors.ErrNetwork, apperrors.Join(apperrors.ErrNetwork, nil))
}

func TestTerminalAndTransport(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		terminal  bool
		transport bool
	}{
		{"invalid credentials", apperrors.ErrInvalidCredentials, true, false},
		{"forbidden", apperrors.Wrapf(apperrors.ErrForbidden, "GET %s", "/api/v1/chart/"), true, false},
		{"unauthenticated", apperrors.ErrUnauthenticated, true, false},
		{"network", apperrors.Join(apperrors.ErrNetwork, stderrors.New("eof")), false, true},
		{"server fault", apperrors.ErrServerFault, false, true},
		{"endpoint not found", apperrors.ErrEndpointNotFound, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.terminal, apperrors.Terminal(tt.err))
			assert.Equal(t, tt.transport, apperrors.Transport(tt.err))
		})
	}
}

func TestWrapfNil(t *testing.T) {
	assert.Nil(t, apperrors.Wrapf(nil, "ignored %d", 1))
}
