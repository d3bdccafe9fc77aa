package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/localrivet/mcpcontent/protocol"
)

// ClaimsConfig holds the registered-claim expectations shared by all validators.
type ClaimsConfig struct {
	// ExpectedIssuer is the required value for the 'iss' claim. (Optional)
	ExpectedIssuer string
	// ExpectedAudience is the required value for the 'aud' claim. (Optional)
	ExpectedAudience string
	// ClockSkew is the acceptable leeway for 'exp' and 'nbf'. Defaults to 0.
	ClockSkew time.Duration
}

func (c ClaimsConfig) parserOptions(methods ...string) []jwt.ParserOption {
	opts := []jwt.ParserOption{jwt.WithValidMethods(methods)}
	if c.ExpectedIssuer != "" {
		opts = append(opts, jwt.WithIssuer(c.ExpectedIssuer))
	}
	if c.ExpectedAudience != "" {
		opts = append(opts, jwt.WithAudience(c.ExpectedAudience))
	}
	if c.ClockSkew > 0 {
		opts = append(opts, jwt.WithLeeway(c.ClockSkew))
	}
	return opts
}

// jwtPrincipal implements the Principal interface for JWT claims.
type jwtPrincipal struct {
	claims jwt.MapClaims
}

func (p *jwtPrincipal) GetClaims() interface{} {
	return p.claims
}

func (p *jwtPrincipal) GetSubject() string {
	sub, _ := p.claims.GetSubject()
	return sub
}

func authFailed(format string, args ...interface{}) error {
	return protocol.NewMCPError(protocol.ErrorPayload{
		Code:    protocol.ErrorCodeMCPAuthenticationFailed,
		Message: fmt.Sprintf(format, args...),
	})
}

// principalFromToken parses and validates a token and wraps its claims.
func principalFromToken(tokenString string, keyFunc jwt.Keyfunc, opts []jwt.ParserOption) (Principal, error) {
	token, err := jwt.Parse(tokenString, keyFunc, opts...)
	if err != nil {
		return nil, authFailed("token validation failed: %v", err)
	}
	if !token.Valid {
		return nil, authFailed("token is invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, authFailed("invalid token claims format")
	}
	return &jwtPrincipal{claims: claims}, nil
}

// HMACTokenValidator validates HS256/HS384/HS512 tokens signed with a shared secret.
type HMACTokenValidator struct {
	secret []byte
	claims ClaimsConfig
}

// NewHMACTokenValidator creates a validator for tokens signed with secret.
func NewHMACTokenValidator(secret []byte, claims ClaimsConfig) (*HMACTokenValidator, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("HMAC secret is required")
	}
	return &HMACTokenValidator{secret: secret, claims: claims}, nil
}

// ValidateToken implements the TokenValidator interface.
func (v *HMACTokenValidator) ValidateToken(_ context.Context, tokenString string) (Principal, error) {
	keyFunc := func(*jwt.Token) (interface{}, error) { return v.secret, nil }
	opts := v.claims.parserOptions(
		jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg(),
	)
	return principalFromToken(tokenString, keyFunc, opts)
}

// JWKSConfig holds configuration for the JWKS-based validator.
type JWKSConfig struct {
	ClaimsConfig
	// JWKSURL is the URL of the JSON Web Key Set endpoint. (Required)
	JWKSURL string
	// RefreshInterval defines how often to refresh the key set. Defaults to 1 hour.
	RefreshInterval time.Duration
}

// JWKSTokenValidator validates asymmetrically signed tokens against a JWKS endpoint.
type JWKSTokenValidator struct {
	config   JWKSConfig
	jwkCache *jwk.Cache
}

// NewJWKSTokenValidator registers the key set with a refreshing cache and
// performs the initial fetch. The cache lives until ctx is cancelled.
func NewJWKSTokenValidator(ctx context.Context, config JWKSConfig, client *http.Client) (*JWKSTokenValidator, error) {
	if config.JWKSURL == "" {
		return nil, fmt.Errorf("JWKSURL is required in JWKSConfig")
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = time.Hour
	}
	if client == nil {
		client = http.DefaultClient
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(config.JWKSURL, jwk.WithMinRefreshInterval(config.RefreshInterval), jwk.WithHTTPClient(client)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL %s with cache: %w", config.JWKSURL, err)
	}
	if _, err := cache.Refresh(ctx, config.JWKSURL); err != nil {
		return nil, fmt.Errorf("failed initial JWKS fetch from %s: %w", config.JWKSURL, err)
	}

	return &JWKSTokenValidator{config: config, jwkCache: cache}, nil
}

// ValidateToken implements the TokenValidator interface.
func (v *JWKSTokenValidator) ValidateToken(ctx context.Context, tokenString string) (Principal, error) {
	keyFunc := func(token *jwt.Token) (interface{}, error) { return v.lookupKey(ctx, token) }
	opts := v.config.parserOptions(
		jwt.SigningMethodRS256.Alg(), jwt.SigningMethodRS384.Alg(), jwt.SigningMethodRS512.Alg(),
		jwt.SigningMethodES256.Alg(), jwt.SigningMethodES384.Alg(), jwt.SigningMethodES512.Alg(),
		jwt.SigningMethodPS256.Alg(), jwt.SigningMethodEdDSA.Alg(),
	)
	return principalFromToken(tokenString, keyFunc, opts)
}

// lookupKey finds the token's 'kid' in the cached key set, refreshing once
// when the key is not found.
func (v *JWKSTokenValidator) lookupKey(ctx context.Context, token *jwt.Token) (interface{}, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("JWT header missing 'kid' field")
	}

	keySet, err := v.jwkCache.Get(ctx, v.config.JWKSURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWK set for %s: %w", v.config.JWKSURL, err)
	}
	key, found := keySet.LookupKeyID(kid)
	if !found {
		keySet, err = v.jwkCache.Refresh(ctx, v.config.JWKSURL)
		if err != nil {
			return nil, fmt.Errorf("key with kid '%s' not found in JWKS at %s (refresh failed: %v)", kid, v.config.JWKSURL, err)
		}
		if key, found = keySet.LookupKeyID(kid); !found {
			return nil, fmt.Errorf("key with kid '%s' not found in JWKS at %s", kid, v.config.JWKSURL)
		}
	}

	var rawKey interface{}
	if err := key.Raw(&rawKey); err != nil {
		return nil, fmt.Errorf("failed to get raw public key material for kid '%s': %w", kid, err)
	}
	return rawKey, nil
}

var (
	_ TokenValidator = (*HMACTokenValidator)(nil)
	_ TokenValidator = (*JWKSTokenValidator)(nil)
)
