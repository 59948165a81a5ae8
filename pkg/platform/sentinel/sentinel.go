// Package sentinel holds the storage facts that stores report and services
// translate into domain errors.
package sentinel

import "errors"

var (
	// ErrNotFound means no record exists for the key.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyUsed means a unique key, such as a tenant binding or a
	// payment reference, is taken.
	ErrAlreadyUsed = errors.New("already used")
)
