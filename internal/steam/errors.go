package steam

import (
	"errors"
	"fmt"
)

// Sentinel errors for Steam Web API operations.
var (
	// ErrMissingCredentials means no API key or user ID is configured.
	// Operations fail fast with it before any network call.
	ErrMissingCredentials = errors.New("steam: missing API key or user ID")
	// ErrRateLimited maps 403/429 responses; callers should back off rather
	// than retry immediately.
	ErrRateLimited = errors.New("steam: rate limited by server")
	// ErrRemoteUnavailable covers timeouts, connection failures, 5xx
	// responses and unparseable bodies.
	ErrRemoteUnavailable = errors.New("steam: remote unavailable")
	// ErrBadRequest maps 400 responses.
	ErrBadRequest = errors.New("steam: bad request")
	// ErrShutdown is returned once the client has been shut down.
	ErrShutdown = errors.New("steam: client is shut down")
)

// Error wraps an underlying error with operation context.
type Error struct {
	Op     string // Operation: "achievements", "schema", "ownedGames", "appDetails"
	GameID int64  // If applicable
	Err    error
}

func (e *Error) Error() string {
	if e.GameID != 0 {
		return fmt.Sprintf("steam %s [app %d]: %v", e.Op, e.GameID, e.Err)
	}
	return fmt.Sprintf("steam %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrapError creates an Error with context.
func wrapError(op string, gameID int64, err error) error {
	return &Error{
		Op:     op,
		GameID: gameID,
		Err:    err,
	}
}
