// Package http exposes MCP over HTTP: POST /mcp for JSON-RPC, liveness
// and readiness probes, bearer-token auth, and per-client rate limiting.
package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator validates the Authorization header of an /mcp request.
type Authenticator interface {
	// Authenticate returns nil when the request may proceed.
	Authenticate(r *http.Request) error
}

// errUnauthorized is the uniform failure; details are never leaked to
// the client.
var errUnauthorized = fmt.Errorf("unauthorized")

func bearerToken(r *http.Request) (string, bool) {
	value := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(value, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// StaticTokenAuth requires Authorization: Bearer <token> with an exact
// match. This is the default auth mode.
type StaticTokenAuth struct {
	token string
}

// NewStaticTokenAuth creates the exact-match authenticator.
func NewStaticTokenAuth(token string) *StaticTokenAuth {
	return &StaticTokenAuth{token: token}
}

// Authenticate implements Authenticator.
func (a *StaticTokenAuth) Authenticate(r *http.Request) error {
	token, ok := bearerToken(r)
	if !ok || token != a.token {
		return errUnauthorized
	}
	return nil
}

// JWTAuth accepts HS256-signed bearer tokens instead of a shared static
// string, so deployments can mint expiring per-client credentials.
type JWTAuth struct {
	secret []byte
}

// NewJWTAuth creates the JWT authenticator with the given HMAC secret.
func NewJWTAuth(secret []byte) *JWTAuth {
	return &JWTAuth{secret: secret}
}

// Authenticate implements Authenticator. Only HS256 is accepted;
// expiry and not-before claims are enforced by the parser.
func (a *JWTAuth) Authenticate(r *http.Request) error {
	tokenStr, ok := bearerToken(r)
	if !ok {
		return errUnauthorized
	}
	token, err := jwt.Parse(tokenStr, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return errUnauthorized
	}
	return nil
}
