package extractor

import (
	"context"
	"errors"
	"testing"
)

// Verify interfaces are satisfied at compile time
var _ Backend = (*JinaBackend)(nil)

type mockBackend struct {
	content string
	err     error
	calls   int
}

func (m *mockBackend) Fetch(ctx context.Context, url string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.content, nil
}

func TestMockBackend_Interface(t *testing.T) {
	var b Backend = &mockBackend{content: "# hi"}
	got, err := b.Fetch(context.Background(), "https://example.com")
	if err != nil || got != "# hi" {
		t.Fatalf("Fetch() = %q, %v", got, err)
	}

	failing := &mockBackend{err: errors.New("down")}
	if _, err := failing.Fetch(context.Background(), "https://example.com"); err == nil {
		t.Fatal("expected error")
	}
	if failing.calls != 1 {
		t.Errorf("expected 1 call, got %d", failing.calls)
	}
}
