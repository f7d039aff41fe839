package authz

import "errors"

var (
	ErrNotFound     = errors.New("authz: not found")
	ErrConflict     = errors.New("authz: already exists")
	ErrInvalidInput = errors.New("authz: invalid input")
	ErrUnauthorized = errors.New("authz: unauthorized")
	ErrForbidden    = errors.New("authz: forbidden")

	// ErrPolicyNotFound is raised when a requested scope names a policy with
	// no record; distinct from ErrInvalidScope so the transport can answer
	// 404 instead of 400.
	ErrPolicyNotFound = errors.New("authz: policy not found")

	// ErrInvalidScope covers malformed scope strings and unknown access
	// level names.
	ErrInvalidScope = errors.New("authz: invalid scope")
)
