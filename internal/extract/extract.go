package extract

import (
	"context"
	"errors"
	"log"

	"golang.org/x/sync/singleflight"

	"github.com/voyatech/ticketcheck/internal/cache"
	"github.com/voyatech/ticketcheck/internal/telemetry"
	"github.com/voyatech/ticketcheck/models"
)

// Provider turns raw document bytes into a structured ticket. Implementations
// wrap external recognizers; Name identifies the provider for cache keying.
type Provider interface {
	Name() string
	Extract(ctx context.Context, doc models.Document) (models.ExtractedTicket, error)
}

// Options tune a single extraction call.
type Options struct {
	// BypassCache skips the cache lookup for this call only. The result is
	// still written back, so the bypass refreshes rather than disables caching.
	BypassCache bool
}

// Extractor orchestrates cache lookup, provider invocation on miss, and cache
// population. Concurrent misses for the same fingerprint are coalesced into a
// single provider call.
type Extractor struct {
	provider Provider
	cache    cache.Cache
	group    singleflight.Group
	logger   *log.Logger
}

func NewExtractor(provider Provider, c cache.Cache, logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.New(log.Writer(), "[EXTRACT] ", log.LstdFlags)
	}
	return &Extractor{provider: provider, cache: c, logger: logger}
}

// Extract returns the structured ticket for a document, via the cache when
// possible. Provider failures are never memoized; only a fully successful
// extraction is committed.
func (e *Extractor) Extract(ctx context.Context, doc models.Document, opts Options) (models.ExtractedTicket, error) {
	fp := cache.Fingerprint(e.provider.Name(), doc.Data)

	if !opts.BypassCache {
		ticket, err := e.cache.Get(ctx, fp)
		switch {
		case err == nil:
			telemetry.CacheHitsTotal.Inc()
			return ticket, nil
		case errors.Is(err, models.ErrCacheMiss):
			telemetry.CacheMissesTotal.Inc()
		default:
			// Storage trouble: fall through to the provider.
			telemetry.CacheErrorsTotal.Inc()
			e.logger.Printf("cache get error for %s: %v", fp[:12], err)
		}
	}

	// The provider call is shared between every coalesced waiter, so it runs
	// on a context detached from whichever caller happened to start it: one
	// client cancelling must not fail the others. Each waiter still honors
	// its own ctx in the select below, and providers bound their own call
	// duration (HTTP client timeouts), so the detached call cannot hang.
	callCtx := context.WithoutCancel(ctx)
	ch := e.group.DoChan(fp, func() (interface{}, error) {
		ticket, err := e.provider.Extract(callCtx, doc)
		if err != nil {
			var exErr *models.ExtractionError
			if !errors.As(err, &exErr) {
				err = &models.ExtractionError{Provider: e.provider.Name(), Reason: "provider call failed", Err: err}
			}
			telemetry.ProviderFailuresTotal.Inc()
			return nil, err
		}
		telemetry.ProviderCallsTotal.Inc()
		if putErr := e.cache.Put(callCtx, fp, ticket); putErr != nil {
			// A write failure must not fail the extraction.
			telemetry.CacheErrorsTotal.Inc()
			e.logger.Printf("cache put error for %s: %v", fp[:12], putErr)
		}
		return ticket, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return models.ExtractedTicket{}, res.Err
		}
		return res.Val.(models.ExtractedTicket), nil
	case <-ctx.Done():
		return models.ExtractedTicket{}, ctx.Err()
	}
}

// Fingerprint exposes the cache key the extractor would use for a document.
func (e *Extractor) Fingerprint(doc models.Document) string {
	return cache.Fingerprint(e.provider.Name(), doc.Data)
}
