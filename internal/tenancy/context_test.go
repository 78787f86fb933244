package tenancy

import (
	"context"
	"testing"

	"github.com/wolfman30/studio-booking-assistant/internal/assistant"
)

func TestWithStudioAndStudioFromContext(t *testing.T) {
	ctx := WithStudio(context.Background(), assistant.Studio{Slug: "ink-and-iron", Name: "Ink & Iron"})

	got, ok := StudioFromContext(ctx)
	if !ok {
		t.Fatalf("expected studio to be present")
	}
	if got.Name != "Ink & Iron" {
		t.Fatalf("expected Ink & Iron, got %s", got.Name)
	}
}

func TestStudioFromContext_EmptyOrMissing(t *testing.T) {
	ctx := context.Background()
	if _, ok := StudioFromContext(ctx); ok {
		t.Fatalf("expected missing studio to return false")
	}

	ctx = context.WithValue(ctx, studioKey, "ink-and-iron")
	if _, ok := StudioFromContext(ctx); ok {
		t.Fatalf("expected non-studio value to return false")
	}

	ctx = WithStudio(context.Background(), assistant.Studio{})
	if _, ok := StudioFromContext(ctx); ok {
		t.Fatalf("expected studio without slug to return false")
	}
}
