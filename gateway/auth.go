package gateway

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
)

// ErrUnauthenticated is returned when the gateway rejects the caller's credentials.
var ErrUnauthenticated = errors.New("unauthenticated")

// TokenAuth implements bearer token authentication for the gateway.
type TokenAuth struct {
	// Token to send in client requests (for client-side)
	Token string

	// Validate checks incoming tokens (for server-side) and returns the
	// caller identity.
	Validate func(token string) (identity string, err error)

	// Header is the header name for the token.
	// Default: "Authorization"
	Header string

	// Prefix is the token prefix.
	// Default: "Bearer "
	Prefix string
}

// NewTokenAuth creates a token auth provider.
// For client-side: provide token
// For server-side: provide validate function
func NewTokenAuth(token string, validate func(string) (string, error)) *TokenAuth {
	return &TokenAuth{
		Token:    token,
		Validate: validate,
		Header:   "Authorization",
		Prefix:   "Bearer ",
	}
}

// StaticToken returns a validator accepting exactly token.
func StaticToken(token string) func(string) (string, error) {
	return func(got string) (string, error) {
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			return "", errors.New("token mismatch")
		}
		return "token", nil
	}
}

// ClientInterceptor returns an interceptor that adds the token to outgoing requests.
func (t *TokenAuth) ClientInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if t.Token != "" {
				req.Header().Set(t.Header, t.Prefix+t.Token)
			}
			return next(ctx, req)
		}
	}
}

// ServerInterceptor returns an interceptor that validates incoming tokens.
func (t *TokenAuth) ServerInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			header := req.Header().Get(t.Header)
			if header == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated,
					fmt.Errorf("missing %s header", t.Header))
			}

			token := header
			if t.Prefix != "" {
				if !strings.HasPrefix(header, t.Prefix) {
					return nil, connect.NewError(connect.CodeUnauthenticated,
						fmt.Errorf("invalid token format, expected %s prefix", t.Prefix))
				}
				token = strings.TrimPrefix(header, t.Prefix)
			}

			if t.Validate == nil {
				return nil, connect.NewError(connect.CodeInternal,
					fmt.Errorf("token validator not configured"))
			}

			identity, err := t.Validate(token)
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated,
					fmt.Errorf("invalid token: %w", err))
			}

			return next(WithIdentity(ctx, identity), req)
		}
	}
}

type identityKey struct{}

// WithIdentity stores the authenticated caller in ctx.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// Identity returns the authenticated caller, or "" when the request was
// not authenticated.
func Identity(ctx context.Context) string {
	id, _ := ctx.Value(identityKey{}).(string)
	return id
}
