// Package auth provides authentication of the client requests.
//
// An Authenticator decorates each outgoing request before it is sent
// and inspects each incoming response before it is classified.
// Variants: None, Basic and OAuth2.
package auth

import (
	"errors"
	"net/http"
)

// ErrAuthenticationNotConfigured signals that an operation requires credentials, but none are configured.
var ErrAuthenticationNotConfigured = errors.New("authentication not configured")

// Authenticator attaches credentials to requests and inspects responses.
type Authenticator interface {
	// DecorateRequest is called once per request, before it is sent.
	DecorateRequest(req *http.Request) error
	// DecorateResponse is called once per request, before the response is classified.
	DecorateResponse(res *http.Response) error
}

// None is used until credentials are configured, it never modifies requests.
type None struct{}

func (None) DecorateRequest(*http.Request) error {
	return nil
}

func (None) DecorateResponse(*http.Response) error {
	return nil
}

// Require returns ErrAuthenticationNotConfigured if the authenticator has no credentials.
func Require(a Authenticator) error {
	switch a.(type) {
	case nil, None, *None:
		return ErrAuthenticationNotConfigured
	default:
		return nil
	}
}
