package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotReady indicates a store was queried before it was initialized.
	ErrNotReady = errors.New("called before initialization")
	// ErrConflict indicates the target already exists or is being written.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates the resolved permission does not allow the operation.
	ErrForbidden = errors.New("forbidden")
)
