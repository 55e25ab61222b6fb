// Package tmserrors defines the error kinds the credential kernel and HTTP
// layer agree on. Kinds describe behavior, not Go types, so callers switch on
// Kind rather than using errors.As against a family of structs.
package tmserrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind names one of the error behaviors described by the credential kernel.
type Kind string

const (
	Policy        Kind = "Policy"
	Auth          Kind = "Auth"
	BadRequest    Kind = "BadRequest"
	BadKeyType    Kind = "BadKeyType"
	Conflict      Kind = "Conflict"
	NotFound      Kind = "NotFound"
	Expired       Kind = "Expired"
	Exhausted     Kind = "Exhausted"
	NotAuthorized Kind = "NotAuthorized"
	Internal      Kind = "Internal"
)

// Error is the typed error carried across the kernel/HTTP boundary. Message
// is always safe to return to the caller; the wrapped Err (if any) is not.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps a Kind to the HTTP status class described in the error
// handling design: auth failures are 401-class, policy/request failures are
// 400-class, and unexpected errors are 500-class.
func (e *Error) Status() int {
	switch e.Kind {
	case Auth, NotAuthorized:
		return http.StatusUnauthorized
	case BadRequest, BadKeyType:
		return http.StatusBadRequest
	case Policy:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	case Expired, Exhausted:
		return http.StatusGone
	case Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func newErr(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func NewPolicy(why string) *Error       { return newErr(Policy, why, nil) }
func NewAuth(msg string) *Error         { return newErr(Auth, msg, nil) }
func NewBadRequest(msg string) *Error   { return newErr(BadRequest, msg, nil) }
func NewConflict(msg string) *Error     { return newErr(Conflict, msg, nil) }
func NewNotFound(resource string) *Error { return newErr(NotFound, resource+" not found", nil) }
func NewExpired(msg string) *Error      { return newErr(Expired, msg, nil) }
func NewExhausted(msg string) *Error    { return newErr(Exhausted, msg, nil) }

func NewBadKeyType(keyType string) *Error {
	return newErr(BadKeyType, fmt.Sprintf("unrecognized key_type %q", keyType), nil)
}

func NewNotAuthorized() *Error {
	return newErr(NotAuthorized, "not authorized", nil)
}

func NewInternal(err error) *Error {
	return newErr(Internal, "internal error", err)
}

// As reports whether err is (or wraps) a *Error, returning it when so.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Classify maps a raw database driver error onto one of the kinds above. It
// never lets the engine's own message reach the caller directly; the
// classified Message is always a safe, generic description.
//
// modernc.org/sqlite (and SQLite generally) report constraint violations as
// plain strings from sqlite3_errmsg rather than a typed error code, so
// classification here is substring matching instead of the typed
// pq.Error.Code switch a Postgres-backed classifier would use.
func Classify(err error, fkHints map[string]Kind) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return newErr(Conflict, "a record with these values already exists", err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return newErr(classifyForeignKey(msg, fkHints), "referenced record does not exist", err)
	case strings.Contains(msg, "CHECK constraint failed"):
		return newErr(BadRequest, "value violates a check constraint", err)
	case strings.Contains(msg, "NOT NULL constraint failed"):
		return newErr(BadRequest, "a required field was empty", err)
	default:
		return newErr(Internal, "internal error", err)
	}
}

// classifyForeignKey picks NotFound vs Policy for a foreign-key violation
// based on which table's reference failed, when the caller supplies hints
// (e.g. {"user_mfa": tmserrors.Policy} because a missing MFA row is a policy
// failure, while {"tenants": tmserrors.NotFound} because a missing tenant is
// simply unknown). Callers that don't care pass a nil map and get NotFound.
func classifyForeignKey(msg string, hints map[string]Kind) Kind {
	for table, kind := range hints {
		if strings.Contains(msg, table) {
			return kind
		}
	}
	return NotFound
}
