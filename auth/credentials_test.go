package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func authHeader(t *testing.T, ctx context.Context) string {
	var md, ok = metadata.FromOutgoingContext(ctx)
	require.True(t, ok)
	require.Len(t, md.Get("authorization"), 1)
	return md.Get("authorization")[0]
}

func TestTokenFileCredentials(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("secret-token\n"), 0600))

	var creds = NewTokenFileCredentials(path, time.Hour)
	var ctx, err = creds.SetCredentials(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Bearer secret-token", authHeader(t, ctx))

	// The token is cached for the refresh interval: a rewrite of the
	// file is not observed yet.
	require.NoError(t, os.WriteFile(path, []byte("rotated"), 0600))
	ctx, err = creds.SetCredentials(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Bearer secret-token", authHeader(t, ctx))
}

func TestTokenFileCredentialsRefresh(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("first"), 0600))

	// A zero refresh interval re-reads the file on every call.
	var creds = NewTokenFileCredentials(path, 0)
	var ctx, err = creds.SetCredentials(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Bearer first", authHeader(t, ctx))

	require.NoError(t, os.WriteFile(path, []byte("second"), 0600))
	ctx, err = creds.SetCredentials(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Bearer second", authHeader(t, ctx))
}

func TestTokenFileCredentialsEmptyFile(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	var creds = NewTokenFileCredentials(path, time.Hour)
	var _, err = creds.SetCredentials(context.Background())
	require.Error(t, err)
	require.Equal(t, codes.Unauthenticated, status.Convert(err).Code())
}

func TestTokenFileCredentialsMissingFile(t *testing.T) {
	var creds = NewTokenFileCredentials(filepath.Join(t.TempDir(), "absent"), time.Hour)
	var _, err = creds.SetCredentials(context.Background())
	require.Error(t, err)
}

func TestJWTCredentials(t *testing.T) {
	var key = []byte("shared-key")
	var creds = NewJWTCredentials(key, "test-issuer", time.Hour)

	var ctx, err = creds.SetCredentials(context.Background())
	require.NoError(t, err)

	var header = authHeader(t, ctx)
	require.Equal(t, "Bearer ", header[:7])

	var token, parseErr = jwt.ParseWithClaims(header[7:], &jwt.RegisteredClaims{},
		func(*jwt.Token) (interface{}, error) { return key, nil })
	require.NoError(t, parseErr)
	require.True(t, token.Valid)
	require.Equal(t, "test-issuer", token.Claims.(*jwt.RegisteredClaims).Issuer)

	// The signed token is cached while it remains fresh.
	ctx2, err := creds.SetCredentials(context.Background())
	require.NoError(t, err)
	require.Equal(t, header, authHeader(t, ctx2))
}
