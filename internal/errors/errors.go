package errors

import (
	"errors"
	"fmt"
)

// Startup errors shared by the entry point and its configuration checks.
var (
	ErrMissingEncryptionKey = errors.New("ENCRYPTION_KEY is required")
	ErrMissingSigningKey    = errors.New("SIGNING_SECRET or SIGNING_KEY_PEM is required")
	ErrMissingUpstreamURL   = errors.New("UPSTREAM_AUTH_URL is required")
	ErrUnknownStoreBackend  = errors.New("unknown store backend")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
