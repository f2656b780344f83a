package ota

import (
	"errors"
	"fmt"
)

var (
	errNotFound = errors.New("NotFound")
	errInvalid  = errors.New("Invalid")
)

// NotFound creates a new notfound error with a given error message.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errNotFound, fmt.Sprintf(format, args...))
}

// IsNotFound checks if an error is a notfound error.
func IsNotFound(e error) bool {
	return errors.Is(e, errNotFound)
}

// Invalid creates a new error for malformed firmware or config data.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalid, fmt.Sprintf(format, args...))
}

// IsInvalid checks if an error is an invalid data error.
func IsInvalid(e error) bool {
	return errors.Is(e, errInvalid)
}
