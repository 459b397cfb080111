package clients

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/auditflow/automation-engine/common/cache"
)

// CachingProvider wraps a CompletionProvider with a digest-keyed cache
// so queue redeliveries replay completed stages without paying for the
// same completion twice. Cache failures never fail the call.
type CachingProvider struct {
	inner  CompletionProvider
	cache  cache.Cache
	ttl    time.Duration
	logger Logger
}

// NewCachingProvider creates a caching wrapper around a provider
func NewCachingProvider(inner CompletionProvider, c cache.Cache, ttl time.Duration, logger Logger) *CachingProvider {
	return &CachingProvider{
		inner:  inner,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

// Complete returns a cached completion when the exact prompt and
// options were seen before, otherwise delegates and caches the result
func (p *CachingProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	key := completionKey(prompt, opts)

	if cached, found, err := p.cache.Get(ctx, key); err != nil {
		p.logger.Warn("completion cache read failed", "error", err)
	} else if found {
		p.logger.Debug("completion cache hit", "key", key)
		return string(cached), nil
	}

	completion, err := p.inner.Complete(ctx, prompt, opts)
	if err != nil {
		return "", err
	}

	if err := p.cache.Set(ctx, key, []byte(completion), p.ttl); err != nil {
		p.logger.Warn("completion cache write failed", "error", err)
	}

	return completion, nil
}

// completionKey derives a stable cache key from the prompt and options
func completionKey(prompt string, opts CompletionOpts) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%.2f|%s", opts.Tier, opts.MaxTokens, opts.Temperature, prompt)))
	return "completion:" + hex.EncodeToString(sum[:])
}
