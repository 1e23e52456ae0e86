package embedder

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Limited throttles an embedder to a number of texts per second. Each text
// is sent as its own call.
type Limited struct {
	next    Embedder
	limiter *rate.Limiter
}

// NewLimited returns next unchanged when perSecond is not positive.
func NewLimited(next Embedder, perSecond float64) Embedder {
	if perSecond <= 0 {
		return next
	}

	burst := int(math.Max(1, math.Ceil(perSecond)))
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (l *Limited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	res := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		vecs, err := l.next.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		res = append(res, vecs...)
	}

	return res, nil
}
