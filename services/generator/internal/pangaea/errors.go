// Package pangaea talks to the PANGAEA data catalogue: tab-separated data
// over HTTPS and dataset metadata over the PangaVista SOAP service.
package pangaea

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the catalogue has no dataset with the requested ID.
	ErrNotFound = errors.New("pangaea: dataset not found")
	// ErrSessionExpired means the PangaVista session must be registered again.
	ErrSessionExpired = errors.New("pangaea: session expired")
)

// FaultError is a SOAP fault returned by PangaVista.
type FaultError struct {
	Code   string
	String string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("pangavista fault %s: %s", e.Code, e.String)
}

// InvalidValueError is returned when a metadata value exists but cannot be
// interpreted.
type InvalidValueError struct {
	Field string
	Value string
	Err   error
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid %s value %q: %v", e.Field, e.Value, e.Err)
}

func (e *InvalidValueError) Unwrap() error { return e.Err }
