package tenancy

import (
	"context"

	"github.com/wolfman30/studio-booking-assistant/internal/assistant"
)

type ctxKey string

const studioKey ctxKey = "studio.identity"

// WithStudio stores the resolved studio in context.
func WithStudio(ctx context.Context, studio assistant.Studio) context.Context {
	return context.WithValue(ctx, studioKey, studio)
}

// StudioFromContext extracts the studio if present.
func StudioFromContext(ctx context.Context) (assistant.Studio, bool) {
	val := ctx.Value(studioKey)
	if val == nil {
		return assistant.Studio{}, false
	}
	studio, ok := val.(assistant.Studio)
	return studio, ok && studio.Slug != ""
}
