package ble

import (
	"errors"
	"fmt"
	"strings"
)

// ConnectionState names the specific kind of connection-state failure a
// caller ran into, so callers can branch on errors.Is rather than string
// matching.
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents a connection-state problem.
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State.
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

var (
	ErrTimeout        = errors.New("timeout")
	ErrServiceMissing = errors.New("required service not found on device")
	ErrCharMissing    = errors.New("required characteristic not found on service")
)

// NormalizeError maps known go-ble error strings onto the structured
// ConnectionError sentinels so callers depending on errors.Is keep
// working even if the upstream library's message wording shifts.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "device not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case strings.Contains(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case strings.Contains(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	case strings.Contains(msg, "central manager has invalid state"):
		if strings.Contains(msg, "have=4") {
			return fmt.Errorf("bluetooth is turned off - please enable bluetooth and retry: %w", err)
		}
		return fmt.Errorf("bluetooth is not ready: %w", err)
	default:
		return err
	}
}

// IsConnectionState reports whether err is a ConnectionError with state.
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}
