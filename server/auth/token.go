package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/indieinfra/plume/storage/entries"
)

type userKeyType struct{}

var userKey = userKeyType{}

var ErrEmptyToken = errors.New("received empty token")

// UserResolver maps an API token to the user it was issued to.
type UserResolver interface {
	UserByToken(ctx context.Context, token string) (*entries.User, error)
}

// ExtractBearerToken extracts a Bearer token from an Authorization header value.
// Returns an empty string if the header is not present, malformed, or not a Bearer token.
func ExtractBearerToken(auth string) string {
	if auth == "" {
		return ""
	}

	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}

	return strings.TrimSpace(token)
}

// VerifyAccessToken resolves token to its user. An unknown token yields a
// nil user and a nil error; errors are reserved for store failures.
func VerifyAccessToken(ctx context.Context, resolver UserResolver, token string) (*entries.User, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	user, err := resolver.UserByToken(ctx, token)
	if errors.Is(err, entries.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve access token: %w", err)
	}

	return user, nil
}

func AddUser(ctx context.Context, user *entries.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func GetUser(ctx context.Context) *entries.User {
	user, ok := ctx.Value(userKey).(*entries.User)
	if !ok {
		return nil
	}

	return user
}
