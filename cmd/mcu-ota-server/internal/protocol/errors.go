package protocol

import (
	"errors"
	"fmt"
)

// ErrFraming is returned for data that does not start with the frame magic.
// Such data is dropped without a response.
var ErrFraming = errors.New("invalid frame magic")

// Error is a protocol failure that is answered with an error response.
type Error struct {
	Code   ErrorCode
	Reason string
}

// NewError creates a protocol error answered with code.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Reason: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (0x%02X): %s", e.Code, byte(e.Code), e.Reason)
}

// AsError extracts a protocol error from err.
func AsError(err error) (*Error, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}
