package emergency

import (
	"errors"
	"fmt"
)

// Kind classifies protocol failures. The HTTP layer maps each kind to a
// status code; Reason is safe to show to clients.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindForbidden
	KindNotFound
	KindConflict
	KindInvalidTransition
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidTransition:
		return "invalid_transition"
	default:
		return "internal"
	}
}

type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

const (
	reasonAccessNotFound  = "emergency access not found"
	reasonUserNotFound    = "user not found"
	reasonForbidden       = "forbidden"
	reasonNotTrusted      = "not a trusted contact"
	reasonConflict        = "conflict"
	reasonStateChanged    = "state changed"
	reasonInternal        = "internal error"
	reasonInvalidEmail    = "invalid email"
	reasonInvalidWaitDays = "waitDays must be between 1 and 30"
	reasonSelfContact     = "cannot add yourself as an emergency contact"
	reasonSelfRequest     = "cannot request access to your own vault"
	reasonGrantorRequired = "grantorId is required"
	reasonIDRequired      = "id is required"
	reasonInvalidAction   = "invalid action"
	reasonVaultKeyMissing = "encryptedVaultKey is required for approval"
)

func invalidInput(reason string) error { return &Error{Kind: KindInvalidInput, Reason: reason} }

func forbidden(reason string) error { return &Error{Kind: KindForbidden, Reason: reason} }

func notFound(reason string) error { return &Error{Kind: KindNotFound, Reason: reason} }

func conflict(reason string) error { return &Error{Kind: KindConflict, Reason: reason} }

func internal(op string, err error) error {
	return &Error{Kind: KindInternal, Reason: reasonInternal, Err: fmt.Errorf("%s: %w", op, err)}
}
