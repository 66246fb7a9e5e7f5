package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// OAuth2 authenticates requests by a bearer token obtained from the OAuth2 token endpoint.
//
// An expired token is refreshed before the request is sent.
// A 401 response with the "invalid_token" error invalidates the current token,
// so the next request re-authenticates. The failed request is not repeated.
type OAuth2 struct {
	config     *oauth2.Config
	httpClient *http.Client
	onRefresh  func(token *oauth2.Token)

	lock   sync.Mutex
	token  *oauth2.Token
	source oauth2.TokenSource
	group  singleflight.Group
}

type OAuth2Option func(a *OAuth2)

// WithHTTPClient sets HTTP client used for requests to the token endpoint.
func WithHTTPClient(c *http.Client) OAuth2Option {
	return func(a *OAuth2) {
		a.httpClient = c
	}
}

// WithRefreshCallback registers a callback invoked with each newly obtained token, e.g. to persist it.
func WithRefreshCallback(fn func(token *oauth2.Token)) OAuth2Option {
	return func(a *OAuth2) {
		a.onRefresh = fn
	}
}

// NewOAuth2 creates OAuth2 authenticator from an existing token.
// The token may contain only the refresh token, then the access token is obtained by the first request.
func NewOAuth2(config *oauth2.Config, token *oauth2.Token, opts ...OAuth2Option) *OAuth2 {
	a := &OAuth2{config: config}
	for _, opt := range opts {
		opt(a)
	}
	a.setToken(token)
	return a
}

// PasswordCredentials exchanges the username and password for a token and creates OAuth2 authenticator.
func PasswordCredentials(ctx context.Context, config *oauth2.Config, username, password string, opts ...OAuth2Option) (*OAuth2, error) {
	a := NewOAuth2(config, nil, opts...)
	token, err := config.PasswordCredentialsToken(a.context(ctx), username, password)
	if err != nil {
		return nil, fmt.Errorf("cannot exchange credentials for OAuth2 token: %w", err)
	}
	a.setToken(token)
	if a.onRefresh != nil {
		a.onRefresh(token)
	}
	return a, nil
}

// Token returns a valid token, it is refreshed if needed.
func (a *OAuth2) Token() (*oauth2.Token, error) {
	a.lock.Lock()
	source := a.source
	a.lock.Unlock()

	// Only one refresh is in flight, concurrent callers share the result
	v, err, _ := a.group.Do("token", func() (any, error) {
		return source.Token()
	})
	if err != nil {
		return nil, err
	}
	token := v.(*oauth2.Token)

	a.lock.Lock()
	refreshed := a.token == nil || a.token.AccessToken != token.AccessToken
	if refreshed {
		a.token = token
	}
	a.lock.Unlock()

	if refreshed && a.onRefresh != nil {
		a.onRefresh(token)
	}
	return token, nil
}

// Invalidate marks the current access token as expired, the refresh token is kept.
func (a *OAuth2) Invalidate() {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.token == nil {
		return
	}
	expired := *a.token
	expired.Expiry = time.Now().Add(-time.Minute)
	a.token = &expired
	a.source = a.newSource(&expired)
}

func (a *OAuth2) DecorateRequest(req *http.Request) error {
	token, err := a.Token()
	if err != nil {
		return fmt.Errorf("cannot obtain OAuth2 token: %w", err)
	}
	token.SetAuthHeader(req)
	return nil
}

func (a *OAuth2) DecorateResponse(res *http.Response) error {
	if res.StatusCode == http.StatusUnauthorized && isInvalidToken(res.Header.Get("WWW-Authenticate")) {
		a.Invalidate()
	}
	return nil
}

func (a *OAuth2) setToken(token *oauth2.Token) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.token = token
	a.source = a.newSource(token)
}

func (a *OAuth2) newSource(token *oauth2.Token) oauth2.TokenSource {
	return a.config.TokenSource(a.context(context.Background()), token)
}

// context sets the token endpoint HTTP client, if any.
func (a *OAuth2) context(ctx context.Context) context.Context {
	if a.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

// isInvalidToken checks the WWW-Authenticate header, see RFC 6750, section 3.
func isInvalidToken(challenge string) bool {
	challenge = strings.ToLower(challenge)
	return strings.HasPrefix(challenge, "bearer") && strings.Contains(challenge, "invalid_token")
}
