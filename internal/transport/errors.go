package transport

import (
	"errors"
	"fmt"
)

var ErrEmptyTarget = errors.New("chat target is empty")

type InvalidTargetError struct {
	Raw string
	Err error
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("invalid chat target %q: expected numeric id or @username", e.Raw)
}

func (e *InvalidTargetError) Unwrap() error { return e.Err }
