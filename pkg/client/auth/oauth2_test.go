package auth_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	. "github.com/dotcloud/go-client/pkg/client/auth"
)

const tokenURL = "https://auth.example.com/oauth2/token"

func TestOAuth2_PasswordCredentials(t *testing.T) {
	t.Parallel()
	transport, cfg := mockedTokenEndpoint(t)

	var refreshed []string
	a, err := PasswordCredentials(
		context.Background(), cfg, "john", "secret",
		WithHTTPClient(&http.Client{Transport: transport}),
		WithRefreshCallback(func(token *oauth2.Token) { refreshed = append(refreshed, token.AccessToken) }),
	)
	require.NoError(t, err)

	// Access token is reused
	for i := 0; i < 3; i++ {
		req := newRequest(t)
		require.NoError(t, a.DecorateRequest(req))
		assert.Equal(t, "Bearer access-password", req.Header.Get("Authorization"))
	}
	assert.Equal(t, []string{"access-password"}, refreshed)
	assert.Equal(t, 1, transport.GetCallCountInfo()["POST "+tokenURL])
}

func TestOAuth2_PasswordCredentials_Error(t *testing.T) {
	t.Parallel()
	transport, cfg := mockedTokenEndpoint(t)

	_, err := PasswordCredentials(context.Background(), cfg, "john", "wrong", WithHTTPClient(&http.Client{Transport: transport}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot exchange credentials for OAuth2 token")
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestOAuth2_InvalidTokenResponse(t *testing.T) {
	t.Parallel()
	transport, cfg := mockedTokenEndpoint(t)

	var refreshed []string
	a := NewOAuth2(
		cfg, &oauth2.Token{AccessToken: "access-old", RefreshToken: "refresh-1", TokenType: "Bearer"},
		WithHTTPClient(&http.Client{Transport: transport}),
		WithRefreshCallback(func(token *oauth2.Token) { refreshed = append(refreshed, token.AccessToken) }),
	)

	req := newRequest(t)
	require.NoError(t, a.DecorateRequest(req))
	assert.Equal(t, "Bearer access-old", req.Header.Get("Authorization"))

	// Unrelated 401 keeps the token
	res := &http.Response{StatusCode: http.StatusUnauthorized, Header: http.Header{}}
	res.Header.Set("WWW-Authenticate", `Bearer realm="dotcloud"`)
	require.NoError(t, a.DecorateResponse(res))
	req = newRequest(t)
	require.NoError(t, a.DecorateRequest(req))
	assert.Equal(t, "Bearer access-old", req.Header.Get("Authorization"))
	assert.Equal(t, 0, transport.GetCallCountInfo()["POST "+tokenURL])

	// Invalid token is refreshed by the next request
	res.Header.Set("WWW-Authenticate", `Bearer realm="dotcloud", error="invalid_token", error_description="The access token expired"`)
	require.NoError(t, a.DecorateResponse(res))
	req = newRequest(t)
	require.NoError(t, a.DecorateRequest(req))
	assert.Equal(t, "Bearer access-refreshed", req.Header.Get("Authorization"))
	assert.Equal(t, 1, transport.GetCallCountInfo()["POST "+tokenURL])
	assert.Equal(t, []string{"access-refreshed"}, refreshed)

	token, err := a.Token()
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", token.RefreshToken)
}

func TestOAuth2_RefreshTokenOnly(t *testing.T) {
	t.Parallel()
	transport, cfg := mockedTokenEndpoint(t)

	a := NewOAuth2(cfg, &oauth2.Token{RefreshToken: "refresh-1"}, WithHTTPClient(&http.Client{Transport: transport}))
	req := newRequest(t)
	require.NoError(t, a.DecorateRequest(req))
	assert.Equal(t, "Bearer access-refreshed", req.Header.Get("Authorization"))
}

func TestOAuth2_RefreshError(t *testing.T) {
	t.Parallel()
	transport, cfg := mockedTokenEndpoint(t)

	a := NewOAuth2(cfg, &oauth2.Token{RefreshToken: "revoked"}, WithHTTPClient(&http.Client{Transport: transport}))
	err := a.DecorateRequest(newRequest(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot obtain OAuth2 token")
}

func mockedTokenEndpoint(t *testing.T) (*httpmock.MockTransport, *oauth2.Config) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, tokenURL, func(req *http.Request) (*http.Response, error) {
		if err := req.ParseForm(); err != nil {
			return nil, err
		}
		assert.Equal(t, "cli", req.PostForm.Get("client_id"))
		invalidGrant, invalidGrantErr := httpmock.NewJsonResponse(http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
		switch req.PostForm.Get("grant_type") {
		case "password":
			if req.PostForm.Get("username") != "john" || req.PostForm.Get("password") != "secret" {
				return invalidGrant, invalidGrantErr
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"access_token":  "access-password",
				"refresh_token": "refresh-1",
				"token_type":    "bearer",
				"expires_in":    3600,
			})
		case "refresh_token":
			if req.PostForm.Get("refresh_token") != "refresh-1" {
				return invalidGrant, invalidGrantErr
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"access_token": "access-refreshed",
				"token_type":   "bearer",
				"expires_in":   3600,
			})
		default:
			return invalidGrant, invalidGrantErr
		}
	})
	cfg := &oauth2.Config{
		ClientID: "cli",
		Endpoint: oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}
	return transport, cfg
}

func newRequest(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "https://rest.dotcloud.com/v1/me", nil)
	require.NoError(t, err)
	return req
}
