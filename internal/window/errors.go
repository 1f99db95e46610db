package window

import (
	"errors"
	"fmt"
)

// ErrSolarDataUnavailable is returned when a sunrise or sunset cannot be
// produced for a day, e.g. during polar day or night. Callers should report
// the window as unknown and try again later.
var ErrSolarDataUnavailable = errors.New("solar data unavailable")

// ConfigurationError describes a window definition that cannot be accepted.
type ConfigurationError struct {
	Window string
	Field  string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("window %q: %v", e.Window, e.Err)
	}
	return fmt.Sprintf("window %q: %s: %v", e.Window, e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErr(id, field string, err error) error {
	return &ConfigurationError{Window: id, Field: field, Err: err}
}
