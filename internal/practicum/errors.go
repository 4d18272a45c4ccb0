package practicum

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnexpectedStatus is a hard response fault: the API answered with a
	// status other than 200.
	ErrUnexpectedStatus = errors.New("unexpected api response status")
	// ErrFormat marks a body that is not valid JSON.
	ErrFormat = errors.New("api response is not json")
	// ErrTransport marks a request that never produced a response
	// (dns, refused connection, timeout).
	ErrTransport = errors.New("api request failed")
)

// FetchError is returned by Client.FetchHomeworkStatuses. Kind is one of the
// sentinel errors above; errors.Is matches both Kind and Err.
type FetchError struct {
	Kind       error
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsTransient reports whether err is a fetch failure expected to clear up
// on its own. Transient failures are logged but never reported to the chat.
func IsTransient(err error) bool {
	return errors.Is(err, ErrFormat) || errors.Is(err, ErrTransport)
}

// SchemaError reports a response or homework record that does not match
// the expected shape.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return "invalid api response: " + e.Reason
	}
	return fmt.Sprintf("invalid api response: %s: %s", e.Field, e.Reason)
}
