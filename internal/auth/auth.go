// Package auth provides bearer tokens for the feed connection URL.
package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// TokenProvider supplies the bearer token appended to the connection URL.
// Implementations must be safe for concurrent use.
type TokenProvider interface {
	// Token returns the current token, or empty string for anonymous access.
	Token(ctx context.Context) (string, error)
}

// Static is a TokenProvider backed by a fixed token.
type Static string

// Token returns the fixed token.
func (s Static) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// FileProvider reads the token from a file, re-reading at most once per
// refresh interval so rotated tokens are picked up without a restart.
type FileProvider struct {
	path    string
	refresh time.Duration

	mu       sync.Mutex
	token    string
	readAt   time.Time
}

// NewFileProvider creates a provider reading tokens from path. A refresh
// of 0 uses a 1 minute default.
func NewFileProvider(path string, refresh time.Duration) (*FileProvider, error) {
	if path == "" {
		return nil, fmt.Errorf("token file path is required")
	}
	if refresh <= 0 {
		refresh = time.Minute
	}

	p := &FileProvider{path: path, refresh: refresh}
	if err := p.reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Token returns the cached token, reloading the file when stale.
func (p *FileProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.readAt) >= p.refresh {
		if err := p.reloadLocked(); err != nil {
			// Serve the last known token on transient read failures.
			if p.token != "" {
				return p.token, nil
			}
			return "", err
		}
	}
	return p.token, nil
}

func (p *FileProvider) reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloadLocked()
}

func (p *FileProvider) reloadLocked() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return fmt.Errorf("token file %s is empty", p.path)
	}

	p.token = token
	p.readAt = time.Now()
	return nil
}
