package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// Basic authenticates requests by the HTTP basic authentication.
type Basic struct {
	username string
	password string
}

// NewBasic creates Basic authenticator from the username and password pair.
func NewBasic(username, password string) *Basic {
	return &Basic{username: username, password: password}
}

// NewBasicFromAPIKey creates Basic authenticator from an API key in the "key:secret" form.
func NewBasicFromAPIKey(apiKey string) (*Basic, error) {
	key, secret, ok := strings.Cut(apiKey, ":")
	if !ok || key == "" || secret == "" {
		return nil, fmt.Errorf(`api key must be in the "key:secret" form`)
	}
	return NewBasic(key, secret), nil
}

// Username returns the configured username.
func (a *Basic) Username() string {
	return a.username
}

func (a *Basic) DecorateRequest(req *http.Request) error {
	req.SetBasicAuth(a.username, a.password)
	return nil
}

func (a *Basic) DecorateResponse(*http.Response) error {
	return nil
}
