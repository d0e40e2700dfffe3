package catalog

import (
	"errors"
	"fmt"
)

// Error classes. Callers wrap these with fmt.Errorf("...: %w", ...) and
// classify with errors.Is; the HTTP layer maps each class to a status code.
var (
	// ErrValidation marks a malformed or incomplete request. It is always
	// returned before any external call is made.
	ErrValidation = errors.New("validation error")

	// ErrExternalService marks a failure talking to the AI service or to
	// object storage on its behalf.
	ErrExternalService = errors.New("external service error")

	// ErrNotReady is returned when batch results are requested before the
	// job has produced an output file.
	ErrNotReady = errors.New("batch results not ready")

	// ErrStorageUnavailable marks an unreachable or failing durable store.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrCredentialMissing means the secret exists but has no usable key.
	ErrCredentialMissing = errors.New("credential missing")

	// ErrSecretNotFound means the secret store holds no value.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrNotFound means a lookup matched nothing.
	ErrNotFound = errors.New("not found")
)

// Validationf builds an ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ErrorClass returns a short machine-readable name for err's class, or
// "internal" when err matches none of the known classes.
func ErrorClass(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotReady):
		return "not_ready"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, ErrCredentialMissing):
		return "credential_missing"
	case errors.Is(err, ErrSecretNotFound):
		return "secret_not_found"
	case errors.Is(err, ErrExternalService):
		return "external_service_error"
	}
	return "internal"
}
