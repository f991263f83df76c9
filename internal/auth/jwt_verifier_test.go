package auth

import (
	"log/slog"
	"os"
	"testing"
)

func TestNewJWTVerifier_RejectsEmptyURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if _, err := NewJWTVerifier("", logger); err == nil {
		t.Error("expected error for empty JWKS URL, got nil")
	}
}
