// Package feed builds the WebSocket connection URL for the market feed.
package feed

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rickgao/quotestream/internal/auth"
	"github.com/rickgao/quotestream/internal/config"
)

// BuildURL constructs the feed URL from config: scheme by transport
// security, host and path from config, bearer token as a query parameter
// when the provider supplies one.
func BuildURL(ctx context.Context, cfg config.FeedConfig, tokens auth.TokenProvider) (string, error) {
	if cfg.Host == "" {
		return "", fmt.Errorf("feed host is required")
	}

	scheme := "ws"
	if cfg.Secure {
		scheme = "wss"
	}

	u := url.URL{
		Scheme: scheme,
		Host:   cfg.Host,
		Path:   cfg.Path,
	}

	if tokens != nil {
		token, err := tokens.Token(ctx)
		if err != nil {
			return "", fmt.Errorf("fetch token: %w", err)
		}
		if token != "" {
			q := u.Query()
			q.Set("token", token)
			u.RawQuery = q.Encode()
		}
	}

	return u.String(), nil
}
