package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"
)

// RetryConfig holds retry configuration for provider calls.
type RetryConfig struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
	// CallTimeout bounds each attempt.
	CallTimeout time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        20 * time.Second,
		CallTimeout:       60 * time.Second,
	}
}

// RetryingGenerator retries transient failures of the wrapped generator with
// jittered exponential backoff. Calls run detached from caller cancellation so
// a started generation is never abandoned halfway; CallTimeout still applies.
type RetryingGenerator struct {
	next  TextGenerator
	cfg   RetryConfig
	sleep func(time.Duration)
}

func NewRetryingGenerator(next TextGenerator, cfg RetryConfig) *RetryingGenerator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultRetryConfig().CallTimeout
	}
	return &RetryingGenerator{next: next, cfg: cfg, sleep: time.Sleep}
}

func (g *RetryingGenerator) GenerateContent(ctx context.Context, req Request) (ContentResponse, error) {
	detached := context.WithoutCancel(ctx)

	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(detached, g.cfg.CallTimeout)
		resp, err := g.next.GenerateContent(callCtx, req)
		cancel()
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, context.DeadlineExceeded) && !IsFatal(err) {
			err = NewTransientError(err)
		}
		lastErr = err

		if IsFatal(err) {
			return ContentResponse{}, err
		}
		if attempt == g.cfg.MaxAttempts {
			break
		}

		backoff := g.backoff(attempt)
		log.WithFields(log.Fields{
			"model":   req.Model,
			"attempt": attempt,
			"backoff": backoff,
		}).Warnf("LLM call failed, retrying: %v", err)
		g.sleep(backoff)
	}

	return ContentResponse{}, fmt.Errorf("llm call failed after %d attempts: %w", g.cfg.MaxAttempts, lastErr)
}

// backoff computes the delay before the next attempt with +/-25% jitter.
func (g *RetryingGenerator) backoff(attempt int) time.Duration {
	multiplier := math.Pow(g.cfg.BackoffMultiplier, float64(attempt-1))
	d := time.Duration(float64(g.cfg.BackoffBase) * multiplier)
	if g.cfg.MaxBackoff > 0 && d > g.cfg.MaxBackoff {
		d = g.cfg.MaxBackoff
	}
	jitter := float64(d) * 0.25 * (rand.Float64()*2 - 1)
	return d + time.Duration(jitter)
}

// Close closes the wrapped generator when it holds resources.
func (g *RetryingGenerator) Close() error {
	if c, ok := g.next.(Closer); ok {
		return c.Close()
	}
	return nil
}
