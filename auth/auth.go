// Package auth carries the identity of the caller through the content
// pipeline and supplies the credentials a client presents when connecting.
//
// A Principal is attached to the context of a tool call and handed to the
// media sink so stored files can be attributed. Validators turn bearer
// tokens into principals; providers produce the headers sent on connect.
package auth

import "context"

// Principal represents the authenticated entity on whose behalf tool
// results are processed. It can carry claims from the token.
type Principal interface {
	// GetClaims returns the claims associated with the principal.
	GetClaims() interface{}
	// GetSubject returns a unique identifier for the principal (e.g. the 'sub' claim).
	GetSubject() string
}

// TokenValidator validates access tokens and returns the Principal they identify.
type TokenValidator interface {
	// ValidateToken returns the authenticated Principal, or an error
	// (a *protocol.MCPError with ErrorCodeMCPAuthenticationFailed) otherwise.
	ValidateToken(ctx context.Context, tokenString string) (Principal, error)
}

// principalKeyType is the context key for storing the authenticated Principal.
type principalKeyType struct{}

var principalKey = principalKeyType{}

// ContextWithPrincipal returns a new context with the given Principal embedded.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// PrincipalFromContext retrieves the Principal from the context, if present.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalKey).(Principal)
	return principal, ok
}

// StaticPrincipal is a Principal with a fixed subject and claims, used when
// the caller's identity is known without a token.
type StaticPrincipal struct {
	Subject string
	Claims  map[string]interface{}
}

// NewStaticPrincipal creates a principal for subject.
func NewStaticPrincipal(subject string, claims map[string]interface{}) *StaticPrincipal {
	return &StaticPrincipal{Subject: subject, Claims: claims}
}

func (p *StaticPrincipal) GetClaims() interface{} { return p.Claims }
func (p *StaticPrincipal) GetSubject() string     { return p.Subject }

// SubjectOf returns the subject of p, or "" when p is nil.
func SubjectOf(p Principal) string {
	if p == nil {
		return ""
	}
	return p.GetSubject()
}

var _ Principal = (*StaticPrincipal)(nil)
