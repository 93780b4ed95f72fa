package service

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
)

const DefaultHandleCacheSize = 10_000

// Enricher remembers handles announced by identity events and resolves
// them for display.
type Enricher interface {
	// Learn records what ev tells about its subject, if anything.
	Learn(ev model.Event)
	// Handle returns the last known handle for did.
	Handle(did string) (string, bool)
}

type HandleEnricher struct {
	cache *lru.Cache[string, string]
}

// NewHandleEnricher provides a thread-safe directory bounded by an LRU.
func NewHandleEnricher(size int) *HandleEnricher {
	if size <= 0 {
		size = DefaultHandleCacheSize
	}
	// [MEMORY_MANAGEMENT] hot identities only
	cache, _ := lru.New[string, string](size)
	return &HandleEnricher{cache: cache}
}

func (e *HandleEnricher) Learn(ev model.Event) {
	id, ok := ev.(*model.IdentityEvent)
	if !ok || id.Identity.Handle == "" {
		return
	}
	e.cache.Add(id.DID, id.Identity.Handle)
}

func (e *HandleEnricher) Handle(did string) (string, bool) {
	return e.cache.Get(did)
}
