package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"
)

// jwtCredentials signs short-lived HS256 bearer tokens with a shared
// key. Tokens are cached and re-signed shortly before expiry.
type jwtCredentials struct {
	key    []byte
	issuer string
	ttl    time.Duration

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewJWTCredentials returns a provider which signs HS256 tokens with
// the given key, issued by issuer and valid for ttl.
func NewJWTCredentials(key []byte, issuer string, ttl time.Duration) CredentialsProvider {
	return &jwtCredentials{key: key, issuer: issuer, ttl: ttl}
}

func (c *jwtCredentials) SetCredentials(ctx context.Context) (context.Context, error) {
	var token, err = c.getToken(time.Now())
	if err != nil {
		return nil, err
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token), nil
}

func (c *jwtCredentials) getToken(now time.Time) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-sign once three quarters of the validity window has elapsed.
	if c.token != "" && now.Add(c.ttl/4).Before(c.expires) {
		return c.token, nil
	}
	var expires = now.Add(c.ttl)
	var claims = &jwt.RegisteredClaims{
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	var token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	c.token, c.expires = token, expires
	return token, nil
}
