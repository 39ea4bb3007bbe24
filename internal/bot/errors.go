package bot

import (
	"errors"

	"github.com/riftline/inspectgate/internal/bot/gcclient"
)

var (
	// ErrNotReady is returned by InspectItem in every state except READY,
	// including while another inspect is in flight.
	ErrNotReady = errors.New("bot is not ready")

	// ErrInspectTimeout wraps a failed or timed-out inspect round-trip.
	ErrInspectTimeout = errors.New("inspect deadline exceeded")

	// ErrInitTimeout is returned when the overall initialize deadline
	// elapses before login and the GC handshake complete.
	ErrInitTimeout = errors.New("initialize timed out")
)

// classifyLoginFailure returns the reason string to record when a login
// error is terminal (the account can never log in again), and whether the
// account should instead be held for 30 minutes before the next attempt.
func classifyLoginFailure(err error) (blacklistReason string, throttle bool) {
	switch {
	case errors.Is(err, gcclient.ErrAccountDisabled):
		return "ACCOUNT_DISABLED", false
	case errors.Is(err, gcclient.ErrInvalidCredentials):
		return "INVALID_CREDENTIALS", false
	case errors.Is(err, gcclient.ErrRateLimited):
		return "RATE_LIMITED", false
	case errors.Is(err, gcclient.ErrLoginThrottled):
		return "", true
	default:
		return "", false
	}
}
