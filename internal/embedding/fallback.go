package embedding

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

type FallbackOptions struct {
	Dimension int
	Timeout   time.Duration
	Failures  uint32        // consecutive failures that open the breaker
	Cooldown  time.Duration // time the breaker stays open
}

// Fallback serves embeddings from the primary tier while its circuit breaker is
// closed and from the degraded tier otherwise. Failed primary calls are counted
// by the breaker and answered by the degraded tier.
type Fallback struct {
	primary  Embedder
	degraded Embedder
	opts     FallbackOptions
	breaker  *gobreaker.CircuitBreaker
}

func NewFallback(primary, degraded Embedder, opts FallbackOptions) *Fallback {
	if opts.Failures == 0 {
		opts.Failures = 3
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Second
	}
	failures := opts.Failures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding",
		MaxRequests: 1,
		Timeout:     opts.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Embedding breaker state changed")
		},
	})
	return &Fallback{primary: primary, degraded: degraded, opts: opts, breaker: breaker}
}

// Degraded reports whether requests currently bypass the primary tier.
func (f *Fallback) Degraded() bool {
	return f.breaker.State() == gobreaker.StateOpen
}

func (f *Fallback) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if f.Degraded() {
		log.Debug().Int("texts", len(texts)).Msg("Embedding breaker open, using degraded tier")
		return f.degraded.EmbedDocuments(ctx, texts)
	}

	res, err := f.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := f.withTimeout(ctx)
		defer cancel()
		vectors, err := f.primary.EmbedDocuments(callCtx, texts)
		if err != nil {
			return nil, err
		}
		if err := checkVectors(vectors, len(texts), f.opts.Dimension); err != nil {
			return nil, err
		}
		return vectors, nil
	})
	if err != nil {
		log.Warn().Err(err).Int("texts", len(texts)).Msg("Primary embedder failed, using degraded tier")
		return f.degraded.EmbedDocuments(ctx, texts)
	}
	return res.([][]float32), nil
}

func (f *Fallback) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.Degraded() {
		return f.degraded.EmbedQuery(ctx, text)
	}

	res, err := f.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := f.withTimeout(ctx)
		defer cancel()
		vector, err := f.primary.EmbedQuery(callCtx, text)
		if err != nil {
			return nil, err
		}
		if err := checkVectors([][]float32{vector}, 1, f.opts.Dimension); err != nil {
			return nil, err
		}
		return vector, nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("Primary embedder failed for query, using degraded tier")
		return f.degraded.EmbedQuery(ctx, text)
	}
	return res.([]float32), nil
}

func (f *Fallback) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.opts.Timeout)
}
