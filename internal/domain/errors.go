package domain

import "errors"

// Error kinds. Wrap with fmt.Errorf("...: %w", Err...) and classify with errors.Is.
var (
	// ErrValidation marks bad user input (time format, empty keyword). Recovered by re-prompting.
	ErrValidation = errors.New("validation failed")
	// ErrLookup marks a destination that cannot be resolved or where the bot cannot post.
	ErrLookup = errors.New("destination lookup failed")
	// ErrFeedUnavailable marks a failed or malformed metadata feed read.
	ErrFeedUnavailable = errors.New("feed unavailable")
	// ErrDelivery marks a failed send to one destination.
	ErrDelivery = errors.New("delivery failed")
	// ErrStorage marks a failed subscription store operation.
	ErrStorage = errors.New("storage failure")
	// ErrNotFound is returned by stores for missing rows.
	ErrNotFound = errors.New("not found")
)

// ValidationError describes which input field was rejected.
type ValidationError struct {
	Field string
	Msg   string
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Msg: msg}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

// Is lets errors.Is(err, ErrValidation) match any *ValidationError.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
