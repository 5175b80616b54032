package exact

import (
	"errors"
	"fmt"
)

// Parse errors. A malformed body is reported with the decoder's own error.
var (
	ErrMissingResults = errors.New("exact: profile response has no d.results")
	ErrMissingEntry   = errors.New("exact: profile feed has no entry")
	ErrMissingUserID  = errors.New("exact: profile has no UserID")
)

var (
	ErrMissingAccessToken  = errors.New("exact: access token required")
	ErrMissingRefreshToken = errors.New("exact: refresh token required")

	// ErrUserRejected is returned by Authenticate when the verify callback
	// returns neither a user nor an error.
	ErrUserRejected = errors.New("exact: user rejected by verify callback")
)

// InternalOAuthError messages.
const (
	MsgTokenFailed   = "failed to obtain access token"
	MsgProfileFailed = "failed to fetch user profile"
)

// InternalOAuthError reports a failure talking to Exact, as opposed to a
// failure understanding what Exact sent back.
type InternalOAuthError struct {
	Message string
	Err     error
}

func (e *InternalOAuthError) Error() string {
	if e.Err == nil {
		return "exact: " + e.Message
	}
	return fmt.Sprintf("exact: %s: %v", e.Message, e.Err)
}

func (e *InternalOAuthError) Unwrap() error { return e.Err }

// StatusError is the cause recorded when Exact answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsInternalOAuthError reports whether err is (or wraps) an InternalOAuthError.
func IsInternalOAuthError(err error) bool {
	var target *InternalOAuthError
	return errors.As(err, &target)
}
