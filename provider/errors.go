package provider

import (
	"errors"
	"fmt"
)

// ErrPermanent marks a provider failure that must not be retried.
var ErrPermanent = errors.New("provider: permanent failure")

// Permanent wraps err so IsPermanent reports true for it.
// A nil err returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsPermanent reports whether err is marked permanent. Any provider error
// without the marker is transient and eligible for fallback.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
