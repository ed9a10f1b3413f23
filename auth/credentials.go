// Package auth provides credentials providers which decorate outbound
// RPC contexts with authentication metadata.
package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// CredentialsProvider is applied by a client immediately before a call
// to attach authentication metadata to the outgoing context.
type CredentialsProvider interface {
	SetCredentials(ctx context.Context) (context.Context, error)
}

// tokenFileCredentials reads a bearer token from a flat file. The token
// is cached for the length of one refresh interval, then the entire
// file is re-read.
type tokenFileCredentials struct {
	filename        string
	refreshInterval time.Duration

	mu          sync.Mutex
	token       string
	refreshTime time.Time
}

// NewTokenFileCredentials returns a provider reading an OAuth bearer
// token from the given flat file, re-reading it every refreshInterval.
func NewTokenFileCredentials(filename string, refreshInterval time.Duration) CredentialsProvider {
	return &tokenFileCredentials{
		filename:        filename,
		refreshInterval: refreshInterval,
	}
}

func (c *tokenFileCredentials) SetCredentials(ctx context.Context) (context.Context, error) {
	var token, err = c.getToken()
	if err != nil {
		return nil, err
	} else if token == "" {
		return nil, status.Error(codes.Unauthenticated, "no authentication token")
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token), nil
}

func (c *tokenFileCredentials) getToken() (string, error) {
	var now = time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Before(c.refreshTime) {
		return c.token, nil
	}
	var data, err = os.ReadFile(c.filename)
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}
	c.token = strings.TrimSpace(string(data))
	c.refreshTime = now.Add(c.refreshInterval)
	return c.token, nil
}
