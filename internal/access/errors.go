package access

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden indicates the acting user lacks the permission for an action.
	ErrForbidden = errors.New("forbidden")

	// ErrBadRequest indicates a request that can never succeed as stated,
	// such as attaching a private framework the user has no membership of.
	ErrBadRequest = errors.New("bad request")
)

// PermissionError describes a denied action.
type PermissionError struct {
	UserID string
	Action string
	Reason string
}

func (e *PermissionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("user %s may not %s", e.UserID, e.Action)
	}
	return fmt.Sprintf("user %s may not %s: %s", e.UserID, e.Action, e.Reason)
}

func (e *PermissionError) Unwrap() error {
	return ErrForbidden
}

func deny(userID, action, reason string) error {
	return &PermissionError{UserID: userID, Action: action, Reason: reason}
}
