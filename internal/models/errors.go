package models

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the services. Wrap them with %w and test with errors.Is.
var (
	ErrConfig          = errors.New("configuration error")
	ErrTimeout         = errors.New("timed out")
	ErrNotFound        = errors.New("not found")
	ErrNonZeroExit     = errors.New("non-zero exit")
	ErrIO              = errors.New("i/o failure")
	ErrTransport       = errors.New("transport failure")
	ErrPayloadTooLarge = errors.New("payload too large")
)

var kinds = []struct {
	err   error
	label string
}{
	{ErrConfig, "configuration error"},
	{ErrTimeout, "timeout"},
	{ErrNotFound, "not found"},
	{ErrNonZeroExit, "non-zero exit"},
	{ErrIO, "i/o error"},
	{ErrTransport, "transport error"},
	{ErrPayloadTooLarge, "payload too large"},
}

// ErrorKind returns a short label for the kind of err, or "unexpected error".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.label
		}
	}
	return "unexpected error"
}

// Wrap annotates err with kind unless it already carries one.
func Wrap(kind error, msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", kind, msg)
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return fmt.Errorf("%s: %w", msg, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", kind, msg, err)
}
