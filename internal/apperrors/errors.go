// Package apperrors classifies failures of a caption call. The kind decides
// what the pipeline does next: only KindReadTimeout earns a server restart.
package apperrors

import (
	"errors"
	"strings"
)

type Kind string

const (
	// KindReadTimeout: the server accepted the request but never answered.
	KindReadTimeout Kind = "read_timeout"
	// KindTransient: the server could not be reached or failed on its side.
	KindTransient  Kind = "transient"
	KindAuth       Kind = "auth"
	KindValidation Kind = "validation"
	KindBadRequest Kind = "bad_request"
	KindCanceled   Kind = "canceled"
)

var defaultMessages = map[Kind]string{
	KindReadTimeout: "Model server did not answer in time.",
	KindTransient:   "Model server is unreachable. Check that it is running.",
	KindAuth:        "Model server rejected the credentials.",
	KindValidation:  "Invalid input.",
	KindBadRequest:  "Request rejected by the model server.",
	KindCanceled:    "Canceled.",
}

// Error pairs a message safe to print with the underlying cause.
type Error struct {
	Kind        Kind
	SafeMessage string
	Cause       error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.SafeMessage != "":
		return e.SafeMessage
	case e.Cause != nil:
		return e.Cause.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// New builds an *Error. A blank message falls back to the kind's default.
func New(kind Kind, safeMessage string, cause error) error {
	msg := strings.TrimSpace(safeMessage)
	if msg == "" {
		msg = defaultMessages[kind]
	}
	if msg == "" {
		msg = "Request failed."
	}
	return &Error{Kind: kind, SafeMessage: msg, Cause: cause}
}

// Canceled marks err as the result of the run being aborted.
func Canceled(err error) error { return New(KindCanceled, "", err) }

// Validation is an input problem described by msg alone.
func Validation(msg string) error { return New(KindValidation, msg, nil) }

// KindOf finds the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// PublicMessage is what a user may see for err; causes stay internal.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}

func hasKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func IsReadTimeout(err error) bool { return hasKind(err, KindReadTimeout) }
func IsValidation(err error) bool  { return hasKind(err, KindValidation) }
func IsCanceled(err error) bool    { return hasKind(err, KindCanceled) }
