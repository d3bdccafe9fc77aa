package auth

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthProvider supplies the credentials sent when connecting to a server.
type AuthProvider interface {
	// GetAuthHeaders returns the headers to add to the connect request.
	GetAuthHeaders() map[string]string
	// GetAuthToken returns the raw token, or "" when there is none.
	GetAuthToken() string
}

// bearerAuth implements AuthProvider with Bearer token authentication
type bearerAuth struct {
	token string
}

// NewBearerAuth creates a new Bearer token auth provider
func NewBearerAuth(token string) AuthProvider {
	return &bearerAuth{token: token}
}

func (a *bearerAuth) GetAuthHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.token}
}

func (a *bearerAuth) GetAuthToken() string {
	return a.token
}

// basicAuth implements AuthProvider with Basic authentication
type basicAuth struct {
	token string
}

// NewBasicAuth creates a new Basic auth provider
func NewBasicAuth(username, password string) AuthProvider {
	return &basicAuth{token: base64.StdEncoding.EncodeToString([]byte(username + ":" + password))}
}

func (a *basicAuth) GetAuthHeaders() map[string]string {
	return map[string]string{"Authorization": "Basic " + a.token}
}

func (a *basicAuth) GetAuthToken() string {
	return a.token
}

// customHeaderAuth implements AuthProvider with arbitrary headers
type customHeaderAuth struct {
	headers map[string]string
}

// NewCustomHeaderAuth creates an auth provider sending the given headers as-is.
func NewCustomHeaderAuth(headers map[string]string) AuthProvider {
	copied := make(map[string]string, len(headers))
	for k, v := range headers {
		copied[k] = v
	}
	return &customHeaderAuth{headers: copied}
}

func (a *customHeaderAuth) GetAuthHeaders() map[string]string {
	out := make(map[string]string, len(a.headers))
	for k, v := range a.headers {
		out[k] = v
	}
	return out
}

func (a *customHeaderAuth) GetAuthToken() string {
	return ""
}

// noAuth implements AuthProvider with no authentication
type noAuth struct{}

// NewNoAuth creates a new no-auth provider
func NewNoAuth() AuthProvider {
	return &noAuth{}
}

func (a *noAuth) GetAuthHeaders() map[string]string { return map[string]string{} }
func (a *noAuth) GetAuthToken() string               { return "" }

// SignedTokenConfig describes the HS256 tokens minted by a signed-token provider.
type SignedTokenConfig struct {
	Secret   []byte
	Subject  string
	Issuer   string
	Audience string
	// TTL is the token lifetime. Defaults to 5 minutes.
	TTL time.Duration
	// Claims are extra private claims added to every token.
	Claims map[string]interface{}
}

// signedTokenAuth mints a fresh bearer token on every call.
type signedTokenAuth struct {
	config SignedTokenConfig
	now    func() time.Time
}

// NewSignedTokenAuth creates a provider that signs a short-lived HS256 JWT
// per connect, for servers validating with a shared secret.
func NewSignedTokenAuth(config SignedTokenConfig) (AuthProvider, error) {
	if len(config.Secret) == 0 {
		return nil, fmt.Errorf("signing secret is required")
	}
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	return &signedTokenAuth{config: config, now: time.Now}, nil
}

func (a *signedTokenAuth) GetAuthHeaders() map[string]string {
	token := a.GetAuthToken()
	if token == "" {
		return map[string]string{}
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

// GetAuthToken returns a newly signed token, or "" if signing fails.
func (a *signedTokenAuth) GetAuthToken() string {
	token, err := a.sign()
	if err != nil {
		return ""
	}
	return token
}

func (a *signedTokenAuth) sign() (string, error) {
	now := a.now()
	claims := jwt.MapClaims{}
	for k, v := range a.config.Claims {
		claims[k] = v
	}
	claims["iat"] = jwt.NewNumericDate(now)
	claims["exp"] = jwt.NewNumericDate(now.Add(a.config.TTL))
	if a.config.Subject != "" {
		claims["sub"] = a.config.Subject
	}
	if a.config.Issuer != "" {
		claims["iss"] = a.config.Issuer
	}
	if a.config.Audience != "" {
		claims["aud"] = a.config.Audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.config.Secret)
}

// Headers merges the provider's headers over extra into an http.Header.
func Headers(provider AuthProvider, extra map[string]string) http.Header {
	h := make(http.Header, len(extra)+1)
	for k, v := range extra {
		h.Set(k, v)
	}
	if provider != nil {
		for k, v := range provider.GetAuthHeaders() {
			h.Set(k, v)
		}
	}
	return h
}
