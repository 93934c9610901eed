package feed

import (
	"context"
	"testing"

	"github.com/rickgao/quotestream/internal/auth"
	"github.com/rickgao/quotestream/internal/config"
)

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name  string
		cfg   config.FeedConfig
		token string
		want  string
	}{
		{
			name:  "secure with token",
			cfg:   config.FeedConfig{Host: "feed.example.com", Path: "/v1/stream", Secure: true},
			token: "abc123",
			want:  "wss://feed.example.com/v1/stream?token=abc123",
		},
		{
			name: "plain without token",
			cfg:  config.FeedConfig{Host: "localhost:9000", Path: "/v1/stream"},
			want: "ws://localhost:9000/v1/stream",
		},
		{
			name:  "empty token omits query",
			cfg:   config.FeedConfig{Host: "feed.example.com", Path: "/v1/stream", Secure: true},
			token: "",
			want:  "wss://feed.example.com/v1/stream",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildURL(context.Background(), tt.cfg, auth.Static(tt.token))
			if err != nil {
				t.Fatalf("BuildURL failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("BuildURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildURL_MissingHost(t *testing.T) {
	_, err := BuildURL(context.Background(), config.FeedConfig{}, nil)
	if err == nil {
		t.Fatal("expected error for missing host")
	}
}
