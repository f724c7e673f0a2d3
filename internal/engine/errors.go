package engine

import (
	"errors"
	"fmt"
)

// Command failures are tagged types rather than free-text errors so callers
// can branch with errors.As instead of string matching. Each Error() string
// is written to be shown to the chat user as-is (behind an "Error: " prefix
// at the handler boundary).

type DuplicateTriggerError struct {
	Trigger string
}

func (e *DuplicateTriggerError) Error() string {
	return fmt.Sprintf("trigger %q already exists", e.Trigger)
}

type TriggerNotFoundError struct {
	Trigger string
}

func (e *TriggerNotFoundError) Error() string {
	return fmt.Sprintf("trigger %q not found", e.Trigger)
}

type InvalidFormatError struct {
	Command CommandKind
	Hint    string
}

func (e *InvalidFormatError) Error() string { return e.Hint }

// UserMessage renders an executor failure for the chat. Tagged command
// errors carry their own user-safe text; anything else (wrapped store
// failures, timeouts) collapses to a generic line so internals never leak
// into the channel.
func UserMessage(err error) string {
	var dup *DuplicateTriggerError
	var missing *TriggerNotFoundError
	var format *InvalidFormatError
	switch {
	case errors.As(err, &dup):
		return dup.Error()
	case errors.As(err, &missing):
		return missing.Error()
	case errors.As(err, &format):
		return format.Error()
	default:
		return "storage unavailable, try again later"
	}
}

// IsUserError reports whether err is one of the tagged command failures.
func IsUserError(err error) bool {
	var dup *DuplicateTriggerError
	var missing *TriggerNotFoundError
	var format *InvalidFormatError
	return errors.As(err, &dup) || errors.As(err, &missing) || errors.As(err, &format)
}
