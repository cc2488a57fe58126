package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session client
var (
	// Session errors
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidState    = errors.New("invalid session state")

	// Authentication errors
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidCode          = errors.New("invalid verification code")
	ErrRateLimited          = errors.New("rate limited")
	ErrVerificationRequired = errors.New("verification required")

	// Token errors
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshFailed       = errors.New("refresh failed")

	// Transport errors
	ErrNetworkFailure = errors.New("network failure")
	ErrBadResponse    = errors.New("unexpected response")

	// Store errors
	ErrStoreCorrupt = errors.New("credential store corrupt")
)

// GatewayError describes a failed call to the remote auth API.
type GatewayError struct {
	Op         string // login, verify-code, resend-code, refresh, logout, profile
	StatusCode int    // 0 when no response was received
	Message    string // server supplied message, if any
	Err        error  // one of the sentinels above
}

func (e *GatewayError) Error() string {
	msg := e.Op
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (%d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsTerminalRefresh reports whether err means the stored session can no
// longer be renewed. Network failures are not terminal.
func IsTerminalRefresh(err error) bool {
	return errors.Is(err, ErrRefreshFailed) || errors.Is(err, ErrInvalidRefreshToken)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
