package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/voyatech/ticketcheck/models"
)

// Cache is a content-addressed store for extraction results. It is an
// optimization, never a correctness dependency: callers must treat every
// returned error as a reason to fall through to the provider, not to abort.
type Cache interface {
	// Get returns the cached ticket for a fingerprint. A miss is reported as
	// models.ErrCacheMiss; any other error signals a storage problem.
	Get(ctx context.Context, fingerprint string) (models.ExtractedTicket, error)

	// Put stores a ticket under a fingerprint. Writes are whole-entry
	// replacements; repeated puts with the same value are no-ops in effect.
	Put(ctx context.Context, fingerprint string, ticket models.ExtractedTicket) error

	// Clear removes all entries.
	Clear(ctx context.Context) error
}

// Fingerprint derives the cache key for a document. Identical bytes seen by the
// same provider always map to the same key; the provider name is mixed in so a
// provider swap never serves stale results from a different recognizer.
func Fingerprint(provider string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
