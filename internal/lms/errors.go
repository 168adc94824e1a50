package lms

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an LMS failure so callers can render "feature unavailable"
// or "re-enter credentials" instead of a generic error.
type Kind int

const (
	KindUpstream Kind = iota
	KindConfiguration
	KindCredential
	KindAuthorization
	KindNotFound
	KindNoRestriction
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindCredential:
		return "credential"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindNoRestriction:
		return "no_restriction"
	case KindUnsupported:
		return "unsupported"
	default:
		return "upstream"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Error is the typed outcome of every failed template or adapter call.
// Body holds a truncated upstream body for operator logs; it is never shown to end users.
type Error struct {
	Kind     Kind
	Op       string
	Endpoint string
	Status   int
	Body     string
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("lms")
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status=%d", e.Status)
		if e.Endpoint != "" {
			fmt.Fprintf(&b, " endpoint=%s", e.Endpoint)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the Kind of err. Errors that are not *Error count as upstream failures.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUpstream
}

func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

func ConfigError(op, msg string) error {
	return &Error{Kind: KindConfiguration, Op: op, Msg: msg}
}

func CredentialError(op string, err error) error {
	return &Error{Kind: KindCredential, Op: op, Msg: "credentials unavailable, please re-enter the LMS client credentials", Err: err}
}

func AuthorizationError(op, endpoint string, status int) error {
	return &Error{
		Kind:     KindAuthorization,
		Op:       op,
		Endpoint: endpoint,
		Status:   status,
		Msg:      "unable to get access for API, please check the corresponding LMS setup",
	}
}

func NotFoundError(op, endpoint, msg string) error {
	return &Error{Kind: KindNotFound, Op: op, Endpoint: endpoint, Status: 404, Msg: msg}
}

func NoRestrictionError(op, courseID string) error {
	return &Error{Kind: KindNoRestriction, Op: op, Msg: "no restriction configured for course " + courseID}
}

func UnsupportedError(op, msg string) error {
	return &Error{Kind: KindUnsupported, Op: op, Msg: msg}
}

func UpstreamError(op string, err error) error {
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	return &Error{Kind: KindUpstream, Op: op, Err: err}
}

// Guard runs fn and converts a panic into an upstream error.
func Guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Kind: KindUpstream, Op: op, Msg: fmt.Sprintf("unexpected failure: %v", r)}
		}
	}()
	return fn()
}
