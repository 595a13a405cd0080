package apperr

import (
	"errors"
	"fmt"
)

// Kind is a stable machine-readable error category.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindUnauthorized        Kind = "unauthorized"
	KindAlreadyMember       Kind = "already_member"
	KindAlreadyInvited      Kind = "already_invited"
	KindAlreadyInParty      Kind = "already_in_party"
	KindQuestNotFound       Kind = "quest_not_found"
	KindQuestInProgress     Kind = "quest_already_in_progress"
	KindNoPendingInvitation Kind = "no_pending_invitation"
	KindConflict            Kind = "conflict"
	KindStoreUnavailable    Kind = "store_unavailable"
	KindPartialFailure      Kind = "partial_failure"
)

// Error is a structured error with a stable kind.
// PartialFailure errors additionally carry the member IDs whose
// fan-out delta failed, for external reconciliation.
type Error struct {
	Kind          Kind
	Msg           string
	FailedMembers []string
	Cause         error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an Error with the given kind and formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error with the given kind wrapping a cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// Partial creates a PartialFailure error carrying the failed member IDs.
func Partial(failed []string) *Error {
	return &Error{
		Kind:          KindPartialFailure,
		Msg:           fmt.Sprintf("%d member update(s) failed", len(failed)),
		FailedMembers: failed,
	}
}

// KindOf returns the Kind of err, or "" if err carries no Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err is an Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
