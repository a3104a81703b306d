package vpn

import "errors"

// Error classes. Wrap one of these with fmt.Errorf("%w: ...") and test with errors.Is.
var (
	// ErrValidation is bad input. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrTransientState means a conflicting transition is in flight.
	ErrTransientState = errors.New("transient state")
	// ErrProvider is a failed provider or store call.
	ErrProvider = errors.New("provider error")
	// ErrConfig is missing or malformed configuration.
	ErrConfig = errors.New("configuration error")
	// ErrNetwork is a transport-level failure of a cross-environment call.
	ErrNetwork = errors.New("network error")
)

// Kind returns a short tag for the error class, used in logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrTransientState):
		return "transient_state"
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrProvider):
		return "provider"
	default:
		return "unknown"
	}
}
