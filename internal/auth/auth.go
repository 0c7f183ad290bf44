package auth

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/metadata"
)

var (
	ErrMissingAPIKey   = errors.New("missing authorization header")
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrAuthUnavailable = errors.New("auth backend unavailable")
)

// TokenPrefix starts every WordMath API key.
const TokenPrefix = "wmk_"

// Principal is the identity behind an authenticated request.
type Principal struct {
	KeyPrefix string
	Name      string
	Profile   string // default profile for the key; empty means the server default
}

// Authenticator validates a bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Principal, error)
}

// ParseBearer extracts the token from an Authorization header value. The
// "Bearer" scheme is case-insensitive (RFC 6750).
func ParseBearer(header string) (string, error) {
	token := header
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = token[7:]
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingAPIKey
	}
	if !strings.HasPrefix(token, TokenPrefix) {
		return "", ErrInvalidAPIKey
	}
	return token, nil
}

// TokenFromMetadata reads the bearer token from incoming gRPC metadata.
func TokenFromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", ErrMissingAPIKey
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", ErrMissingAPIKey
	}
	return ParseBearer(values[0])
}

type principalKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by WithPrincipal, or nil.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
