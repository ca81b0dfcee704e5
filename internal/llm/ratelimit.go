package llm

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Epistemic-Technology/exam-mcp/internal/logger"
)

const (
	// Token budget shared by every oracle call in the process.
	// Gemini flash and gpt-5-mini both allow well above 1M tokens/min on paid tiers;
	// 30k tokens/sec keeps a margin under either.
	tokensPerSecond = 30000
	// Burst allows one large batch (5 pages at high resolution) to go out immediately
	burstTokens = 60000

	// Worker pool size for cross-document processing.
	// Each worker runs one document's batches sequentially.
	defaultMaxWorkers = 4

	// EstimatedTokensPerPage is a conservative input+output estimate for one exam page
	// sent as a rendered page plus its extracted primitives.
	EstimatedTokensPerPage = 3000

	// Retry configuration (429 only)
	maxRetries     = 5
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 32 * time.Second
)

var (
	// Global rate limiter for oracle calls.
	// This ensures all concurrent documents share the same provider quota.
	oracleRateLimiter = rate.NewLimiter(rate.Limit(tokensPerSecond), burstTokens)
)

// RateLimitedCall wraps an oracle call with rate limiting and retry logic.
// It waits for rate limiter approval before making the call, and retries only
// when the provider reports a rate limit. Any other failure is returned
// unchanged after a single attempt.
func RateLimitedCall[T any](ctx context.Context, estimatedTokens int, log logger.Logger, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if estimatedTokens > burstTokens {
		estimatedTokens = burstTokens
	}

	// Wait for rate limiter approval
	err := oracleRateLimiter.WaitN(ctx, estimatedTokens)
	if err != nil {
		return zero, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	// Retry loop with exponential backoff
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			log.Info("Retry attempt %d/%d after %v delay", attempt, maxRetries, delay)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				log.Info("Retry succeeded on attempt %d", attempt)
			}
			return result, nil
		}

		lastErr = err

		if !isRateLimitError(err) {
			return zero, err
		}

		log.Warn("Rate limit error on attempt %d/%d: %v", attempt+1, maxRetries+1, err)
	}

	return zero, fmt.Errorf("max retries (%d) exceeded, last error: %w", maxRetries, lastErr)
}

// backoffDelay returns the exponential delay before the given retry attempt
func backoffDelay(attempt int) time.Duration {
	delay := time.Duration(float64(baseRetryDelay) * math.Pow(2, float64(attempt-1)))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

// rateLimitMarkers are substrings that OpenAI and Gemini use for quota errors
var rateLimitMarkers = []string{
	"429",
	"rate limit",
	"rate_limit_exceeded",
	"Too Many Requests",
	"RESOURCE_EXHAUSTED",
	"Resource has been exhausted",
}

// isRateLimitError checks if an error is a provider rate limit error
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	for _, marker := range rateLimitMarkers {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

// WorkerPool manages a pool of workers for parallel processing with rate limiting
type WorkerPool struct {
	maxWorkers int
	semaphore  chan struct{}
}

// NewWorkerPool creates a new worker pool with the specified maximum workers
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		semaphore:  make(chan struct{}, maxWorkers),
	}
}

// Acquire acquires a worker slot, blocking if all workers are busy
func (wp *WorkerPool) Acquire(ctx context.Context) error {
	select {
	case wp.semaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release releases a worker slot, allowing another worker to proceed
func (wp *WorkerPool) Release() {
	<-wp.semaphore
}

// ParallelProcess processes items in parallel, at most maxWorkers at a time
// (defaultMaxWorkers when maxWorkers <= 0). Every item is processed even when
// some fail; per-item errors are returned alongside results at the same index.
func ParallelProcess[T any, R any](
	ctx context.Context,
	items []T,
	maxWorkers int,
	log logger.Logger,
	processFn func(context.Context, int, T) (R, error),
) ([]R, []error) {
	results := make([]R, len(items))
	errs := make([]error, len(items))
	if len(items) == 0 {
		return results, errs
	}

	wp := NewWorkerPool(maxWorkers)

	type result struct {
		index int
		value R
		err   error
	}
	resultChan := make(chan result, len(items))

	spawned := 0
	for i, item := range items {
		if err := wp.Acquire(ctx); err != nil {
			// Context cancelled, mark the rest as cancelled
			for j := i; j < len(items); j++ {
				errs[j] = err
			}
			break
		}
		spawned++

		go func(idx int, itm T) {
			defer wp.Release()

			select {
			case <-ctx.Done():
				var zero R
				resultChan <- result{index: idx, value: zero, err: ctx.Err()}
				return
			default:
			}

			val, err := processFn(ctx, idx, itm)
			resultChan <- result{index: idx, value: val, err: err}
		}(i, item)
	}

	for range spawned {
		res := <-resultChan
		if res.err != nil {
			log.Warn("Item %d failed: %v", res.index, res.err)
		}
		results[res.index] = res.value
		errs[res.index] = res.err
	}
	close(resultChan)

	return results, errs
}
