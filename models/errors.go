package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

type Error_Kind string

const (
	Not_Configured     Error_Kind = "not_configured"
	Unauthorized       Error_Kind = "unauthorized"
	Rate_Limited       Error_Kind = "rate_limited"
	Content_Blocked    Error_Kind = "content_blocked"
	Malformed_Response Error_Kind = "malformed_response"
	Network_Failure    Error_Kind = "network_failure"
	Cancelled          Error_Kind = "cancelled"
)

// Provider_Error is the single failure type crossing the adapter boundary.
type Provider_Error struct {
	Kind     Error_Kind  `json:"kind"`
	Provider Provider_ID `json:"provider,omitempty"`
	Status   int         `json:"status,omitempty"`
	Detail   string      `json:"detail,omitempty"`
	Err      error       `json:"-"`
}

// Sentinels for errors.Is. They match any Provider_Error of the same kind.
var (
	ErrNotConfigured     = &Provider_Error{Kind: Not_Configured}
	ErrUnauthorized      = &Provider_Error{Kind: Unauthorized}
	ErrRateLimited       = &Provider_Error{Kind: Rate_Limited}
	ErrContentBlocked    = &Provider_Error{Kind: Content_Blocked}
	ErrMalformedResponse = &Provider_Error{Kind: Malformed_Response}
	ErrNetworkFailure    = &Provider_Error{Kind: Network_Failure}
	ErrCancelled         = &Provider_Error{Kind: Cancelled}
)

func (e *Provider_Error) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(string(e.Provider))
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Provider_Error) Unwrap() error { return e.Err }

func (e *Provider_Error) Is(target error) bool {
	t, ok := target.(*Provider_Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Provider == "" || t.Provider == e.Provider)
}

func New_Error(provider Provider_ID, kind Error_Kind, detail string) *Provider_Error {
	return &Provider_Error{Kind: kind, Provider: provider, Detail: detail}
}

func Wrap_Error(provider Provider_ID, kind Error_Kind, err error) *Provider_Error {
	return &Provider_Error{Kind: kind, Provider: provider, Err: err}
}

// Not_Configured_Error is what an adapter returns when its credential is missing or malformed.
func Not_Configured_Error(provider Provider_ID) *Provider_Error {
	return New_Error(provider, Not_Configured, fmt.Sprintf("%s API not configured. Check API key in settings.", Display_Name(provider)))
}

// Classify_Status maps an HTTP status code to a failure kind.
func Classify_Status(code int) Error_Kind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return Unauthorized
	case code == http.StatusTooManyRequests:
		return Rate_Limited
	case code == http.StatusUnavailableForLegalReasons:
		return Content_Blocked
	default:
		return Network_Failure
	}
}

// Max_Detail_Length caps the provider message kept on a status error.
const Max_Detail_Length = 300

// Status_Error builds an error for a non-2xx response. Only a short
// provider message is kept, never the whole body.
func Status_Error(provider Provider_ID, code int, message string) *Provider_Error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = http.StatusText(code)
	}
	if utf8.RuneCountInString(message) > Max_Detail_Length {
		message = string([]rune(message)[:Max_Detail_Length])
	}
	return &Provider_Error{Kind: Classify_Status(code), Provider: provider, Status: code, Detail: message}
}

// As_Provider_Error normalizes any error into the taxonomy. Existing
// Provider_Errors pass through unchanged.
func As_Provider_Error(provider Provider_ID, err error) *Provider_Error {
	if err == nil {
		return nil
	}
	var pe *Provider_Error
	if errors.As(err, &pe) {
		if pe.Provider == "" {
			cp := *pe
			cp.Provider = provider
			return &cp
		}
		return pe
	}
	if errors.Is(err, context.Canceled) {
		return &Provider_Error{Kind: Cancelled, Provider: provider, Detail: "request cancelled", Err: err}
	}
	if errors.Is(err, ErrEmptyQuery) {
		return &Provider_Error{Kind: Malformed_Response, Provider: provider, Detail: err.Error(), Err: err}
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &Provider_Error{Kind: Malformed_Response, Provider: provider, Err: err}
	}
	return &Provider_Error{Kind: Network_Failure, Provider: provider, Err: err}
}

// Kind_Of returns the failure kind of err, or "" when err is not a provider error.
func Kind_Of(err error) Error_Kind {
	var pe *Provider_Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
