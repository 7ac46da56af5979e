package slots

import (
	"errors"
	"fmt"
)

// ErrConfiguration matches every ConfigurationError via errors.Is.
var ErrConfiguration = errors.New("venue misconfigured")

// ConfigurationError reports venue settings that make slot generation or pricing impossible.
type ConfigurationError struct {
	VenueID int64
	Field   string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("venue %d misconfigured: %s: %s", e.VenueID, e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func configError(venueID int64, field, format string, args ...any) error {
	return &ConfigurationError{VenueID: venueID, Field: field, Reason: fmt.Sprintf(format, args...)}
}
