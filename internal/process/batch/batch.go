// Package batch splits classification input into bounded chunks and runs
// them against an LLM backend in parallel waves. A wave finishes completely
// before the next one starts, so backend pressure stays capped. Rate-limited
// chunks are retried after the backend-requested wait; any other failure
// settles the chunk immediately.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/leadscan/lead-scan-bot/internal/core/domain"
	"github.com/leadscan/lead-scan-bot/internal/core/llm"
	"github.com/leadscan/lead-scan-bot/internal/platform/worker"
)

// Item is one indexed classification input.
type Item = llm.Item

// Defaults applied when the config leaves a knob unset.
const (
	defaultChunkSize     = 100
	defaultMaxParallel   = 3
	defaultMaxRetries    = 3
	defaultRateLimitWait = 60 * time.Second

	// retrySlack pads backend-supplied wait hints so the retry lands
	// after the window actually resets.
	retrySlack = 5 * time.Second
)

var errChunkPanicked = errors.New("chunk classification panicked")

// Classifier is the backend the batcher drives.
type Classifier interface {
	Classify(ctx context.Context, items []llm.Item) ([]llm.BatchVerdict, error)
}

// Config tunes chunking and retry behavior.
type Config struct {
	// Size is the maximum number of items per chunk.
	Size int

	// MaxParallel is the number of chunks classified concurrently.
	MaxParallel int

	// MaxRetries is the total number of attempts per chunk. Only
	// rate-limited attempts are repeated.
	MaxRetries int

	// RateLimitWait is the fallback wait when the backend gives no hint.
	RateLimitWait time.Duration
}

// Result is the merged outcome of one batch run. Verdicts is keyed by item
// index and holds leads from the chunks that succeeded; Succeeded is true
// only when every chunk resolved. Partial verdicts are still returned so
// the caller can decide what to do with them.
type Result struct {
	Verdicts  map[int]domain.Verdict
	Succeeded bool
}

// Batcher runs chunked classification against a backend.
type Batcher struct {
	cfg        Config
	classifier Classifier
	logger     *zerolog.Logger
}

// New creates a Batcher.
func New(cfg Config, classifier Classifier, logger *zerolog.Logger) *Batcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Batcher{cfg: cfg, classifier: classifier, logger: logger}
}

// Classify chunks the items and resolves every chunk, wave by wave.
func (b *Batcher) Classify(ctx context.Context, items []llm.Item) Result {
	result := Result{Verdicts: make(map[int]domain.Verdict), Succeeded: true}
	if len(items) == 0 {
		return result
	}

	chunks := chunkItems(items, b.chunkSize())

	parallel := b.cfg.MaxParallel
	if parallel <= 0 {
		parallel = defaultMaxParallel
	}

	for start := 0; start < len(chunks); start += parallel {
		end := start + parallel
		if end > len(chunks) {
			end = len(chunks)
		}

		wave := chunks[start:end]

		// Pre-marked failed so a panicked goroutine cannot pass as success.
		outcomes := make([]chunkOutcome, len(wave))
		for i := range outcomes {
			outcomes[i] = chunkOutcome{err: errChunkPanicked}
		}

		var wg sync.WaitGroup

		for i, chunk := range wave {
			wg.Add(1)

			go func(slot int, chunkIdx int, chunk []llm.Item) {
				defer wg.Done()
				defer worker.RecoverPanic(b.logger, "classify chunk")

				outcomes[slot] = b.classifyChunk(ctx, chunkIdx, chunk)
			}(i, start+i, chunk)
		}

		wg.Wait()

		for _, outcome := range outcomes {
			if outcome.err != nil {
				b.logger.Error().Err(outcome.err).Msg("chunk classification failed")

				result.Succeeded = false

				continue
			}

			for idx, verdict := range outcome.verdicts {
				result.Verdicts[idx] = verdict
			}
		}
	}

	return result
}

type chunkOutcome struct {
	verdicts map[int]domain.Verdict
	err      error
}

// classifyChunk resolves one chunk, retrying rate-limited attempts.
func (b *Batcher) classifyChunk(ctx context.Context, chunkIdx int, chunk []llm.Item) chunkOutcome {
	maxRetries := b.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		batchVerdicts, err := b.classifier.Classify(ctx, chunk)
		if err == nil {
			return chunkOutcome{verdicts: b.collectVerdicts(chunkIdx, chunk, batchVerdicts)}
		}

		lastErr = err

		if !errors.Is(err, llm.ErrRateLimited) || attempt == maxRetries {
			break
		}

		wait := b.retryWait(err)

		b.logger.Warn().
			Int("chunk", chunkIdx).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("classification rate limited, backing off")

		if waitErr := worker.Wait(ctx, wait); waitErr != nil {
			return chunkOutcome{err: waitErr}
		}
	}

	return chunkOutcome{err: fmt.Errorf("chunk %d: %w", chunkIdx, lastErr)}
}

// collectVerdicts keys the backend verdicts by item index, dropping any
// index the chunk never contained.
func (b *Batcher) collectVerdicts(chunkIdx int, chunk []llm.Item, batchVerdicts []llm.BatchVerdict) map[int]domain.Verdict {
	known := make(map[int]struct{}, len(chunk))
	for _, item := range chunk {
		known[item.Index] = struct{}{}
	}

	verdicts := make(map[int]domain.Verdict, len(batchVerdicts))

	for _, bv := range batchVerdicts {
		if _, ok := known[bv.Index]; !ok {
			b.logger.Warn().
				Int("chunk", chunkIdx).
				Int("index", bv.Index).
				Msg("verdict references an index outside the chunk, dropping")

			continue
		}

		verdicts[bv.Index] = bv.Verdict
	}

	return verdicts
}

// retryWait picks the backoff before the next attempt: the backend hint
// plus slack when present, the configured fallback otherwise.
func (b *Batcher) retryWait(err error) time.Duration {
	if hint := llm.RetryAfter(err); hint > 0 {
		return hint + retrySlack
	}

	if b.cfg.RateLimitWait > 0 {
		return b.cfg.RateLimitWait
	}

	return defaultRateLimitWait
}

func (b *Batcher) chunkSize() int {
	if b.cfg.Size > 0 {
		return b.cfg.Size
	}

	return defaultChunkSize
}

// chunkItems splits items into consecutive chunks of at most size each.
func chunkItems(items []llm.Item, size int) [][]llm.Item {
	chunks := make([][]llm.Item, 0, (len(items)+size-1)/size)

	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}

		chunks = append(chunks, items[start:end])
	}

	return chunks
}
