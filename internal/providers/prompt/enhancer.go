package prompt

import (
	"context"

	"veogen/internal/domain"
)

// Enhancer rewrites a raw prompt into a richer generation prompt. Enhancement
// is best-effort: implementations absorb their own failures and hand back the
// raw prompt with UsedFallback set instead of erroring the pipeline.
type Enhancer interface {
	Enhance(ctx context.Context, raw string, aspect domain.AspectRatio) (domain.EnhancedPrompt, error)
}

// Passthrough returns the prompt unchanged. Used when no enhancement
// provider is wanted and as the terminal fallback of real providers.
type Passthrough struct{}

func NewPassthrough() *Passthrough {
	return &Passthrough{}
}

func (p *Passthrough) Enhance(ctx context.Context, raw string, aspect domain.AspectRatio) (domain.EnhancedPrompt, error) {
	if err := ctx.Err(); err != nil {
		return domain.EnhancedPrompt{}, err
	}
	return domain.EnhancedPrompt{Original: raw, Enhanced: raw}, nil
}

var _ Enhancer = (*Passthrough)(nil)
