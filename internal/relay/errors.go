package relay

import "errors"

// Kind is the machine-readable class of a relay failure. Values match the
// callable error codes.
type Kind string

const (
	KindFailedPrecondition Kind = "failed-precondition"
	KindUnknown            Kind = "unknown"
)

const (
	MsgAppCheckRequired   = "The function must be called from an App Check verified app."
	MsgRecipientForbidden = "The recipient is not allowed."
	MsgUnknown            = "something went wrong"
)

// Error is the caller-facing failure of Handle. Message never carries
// internal error detail.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// AsError reports whether err is a *Error and returns it.
func AsError(err error) (*Error, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

var (
	errAppCheckRequired   = &Error{Kind: KindFailedPrecondition, Message: MsgAppCheckRequired}
	errRecipientForbidden = &Error{Kind: KindFailedPrecondition, Message: MsgRecipientForbidden}
	errUnknown            = &Error{Kind: KindUnknown, Message: MsgUnknown}
)
