package app

import (
	"errors"
	"fmt"
)

// Kind classifies failures so the transport can map them without inspecting messages.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindValidation
	KindRejected
	KindProfileNotFound
	KindOracleUnavailable
	KindOracleMalformedResponse
	KindAnalysisInternal
	KindForbidden
	KindJobNotFound
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindRejected:
		return "rejected"
	case KindProfileNotFound:
		return "profile_not_found"
	case KindOracleUnavailable:
		return "oracle_unavailable"
	case KindOracleMalformedResponse:
		return "oracle_malformed_response"
	case KindAnalysisInternal:
		return "analysis_internal"
	case KindForbidden:
		return "forbidden"
	case KindJobNotFound:
		return "job_not_found"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is the typed error returned by App operations.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// KindOf extracts the kind of err, KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage is the message safe to show a caller. Causes are never exposed.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}
