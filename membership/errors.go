package membership

import "errors"

// Error kinds surfaced by the engine. The HTTP layer maps these onto status
// codes; everything else wraps one of them with context via fmt.Errorf("%w").
var (
	// ErrNotFound covers absent teams, users and invites.
	ErrNotFound = errors.New("not found")

	// ErrConflict covers duplicate invites and already-a-member cases.
	ErrConflict = errors.New("conflict")

	// ErrForbidden is returned when the actor lacks owner/admin privilege for
	// the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrExpired marks an invite past its expiry. Callers surface it as not
	// found; the distinct kind exists so the expiration email fires exactly
	// once before the operation fails.
	ErrExpired = errors.New("invite expired")

	// ErrInvalid covers malformed or state-invalid requests, e.g. removing
	// the team owner.
	ErrInvalid = errors.New("invalid request")
)
