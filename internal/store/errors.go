package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate")
	ErrFrameworkMismatch = errors.New("entry and widget belong to different analysis frameworks")
)

// ConsistencyError reports an entry/widget pair whose frameworks differ.
type ConsistencyError struct {
	EntryID           string
	WidgetID          string
	EntryFrameworkID  string
	WidgetFrameworkID string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("entry %s (framework %s) and widget %s (framework %s): %s",
		e.EntryID, e.EntryFrameworkID, e.WidgetID, e.WidgetFrameworkID, ErrFrameworkMismatch)
}

func (e *ConsistencyError) Unwrap() error {
	return ErrFrameworkMismatch
}
