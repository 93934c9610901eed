package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStatic_Token(t *testing.T) {
	p := Static("tok-123")

	got, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if got != "tok-123" {
		t.Errorf("Token = %q, want %q", got, "tok-123")
	}
}

func TestStatic_Empty(t *testing.T) {
	p := Static("")

	got, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if got != "" {
		t.Errorf("Token = %q, want empty", got)
	}
}

func TestFileProvider_Token(t *testing.T) {
	path := writeTokenFile(t, "file-token\n")

	p, err := NewFileProvider(path, time.Minute)
	if err != nil {
		t.Fatalf("NewFileProvider failed: %v", err)
	}

	got, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if got != "file-token" {
		t.Errorf("Token = %q, want %q", got, "file-token")
	}
}

func TestFileProvider_Refresh(t *testing.T) {
	path := writeTokenFile(t, "first")

	p, err := NewFileProvider(path, time.Nanosecond)
	if err != nil {
		t.Fatalf("NewFileProvider failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("second"), 0o600); err != nil {
		t.Fatalf("rewrite token file: %v", err)
	}
	time.Sleep(time.Millisecond)

	got, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if got != "second" {
		t.Errorf("Token = %q, want %q", got, "second")
	}
}

func TestFileProvider_MissingFile(t *testing.T) {
	_, err := NewFileProvider(filepath.Join(t.TempDir(), "nope"), time.Minute)
	if err == nil {
		t.Fatal("expected error for missing token file")
	}
}

func TestFileProvider_EmptyFile(t *testing.T) {
	path := writeTokenFile(t, "  \n")

	_, err := NewFileProvider(path, time.Minute)
	if err == nil {
		t.Fatal("expected error for empty token file")
	}
}

func writeTokenFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write token file: %v", err)
	}
	return path
}
