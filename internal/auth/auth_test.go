package auth

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/metadata"
)

func TestParseBearer(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		err    error
	}{
		{"bearer", "Bearer wmk_abc123", "wmk_abc123", nil},
		{"lowercase scheme", "bearer wmk_abc123", "wmk_abc123", nil},
		{"extra whitespace", "Bearer  wmk_abc123 ", "wmk_abc123", nil},
		{"bare token", "wmk_abc123", "wmk_abc123", nil},
		{"wrong prefix", "Bearer sk_live_abc123", "", ErrInvalidAPIKey},
		{"no prefix", "Bearer abc123", "", ErrInvalidAPIKey},
		{"empty after Bearer", "Bearer ", "", ErrMissingAPIKey},
		{"empty", "", "", ErrMissingAPIKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBearer(tt.header)
			if !errors.Is(err, tt.err) {
				t.Fatalf("ParseBearer(%q) error = %v, want %v", tt.header, err, tt.err)
			}
			if got != tt.want {
				t.Errorf("ParseBearer(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestTokenFromMetadata(t *testing.T) {
	md := metadata.Pairs("authorization", "Bearer wmk_abc123")
	ctx := metadata.NewIncomingContext(context.Background(), md)

	token, err := TokenFromMetadata(ctx)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if token != "wmk_abc123" {
		t.Errorf("expected wmk_abc123, got %q", token)
	}
}

func TestTokenFromMetadata_NoMetadata(t *testing.T) {
	_, err := TokenFromMetadata(context.Background())
	if err != ErrMissingAPIKey {
		t.Errorf("expected ErrMissingAPIKey, got: %v", err)
	}
}

func TestTokenFromMetadata_MissingHeader(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-other", "1"))
	_, err := TokenFromMetadata(ctx)
	if err != ErrMissingAPIKey {
		t.Errorf("expected ErrMissingAPIKey, got: %v", err)
	}
}

func TestPrincipalContext(t *testing.T) {
	if PrincipalFrom(context.Background()) != nil {
		t.Fatal("expected nil principal on a bare context")
	}
	p := &Principal{Name: "ci", Profile: "strict"}
	got := PrincipalFrom(WithPrincipal(context.Background(), p))
	if got != p {
		t.Errorf("expected stored principal, got %+v", got)
	}
}

func BenchmarkParseBearer(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		ParseBearer("Bearer wmk_abc123")
	}
}
