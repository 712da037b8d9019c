// Package observability provides hooks for metrics and tracing.
//
// Library packages emit events through the registered hooks; the binary
// decides at startup what, if anything, receives them. The defaults are
// no-ops, so packages such as pipeline and avatar never depend on a metrics
// backend directly.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    m := metrics.New(prometheus.NewRegistry())
//	    observability.SetCardHooks(m)
//	    observability.SetCacheHooks(m)
//	    observability.SetHTTPHooks(m)
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Card().OnRenderStart(ctx, username)
//	// ... draw ...
//	observability.Card().OnRenderComplete(ctx, username, len(png), duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Card Hooks
// =============================================================================

// CardHooks receives events from the card pipeline.
type CardHooks interface {
	// OnSummarize records the outcome of turning a stats payload into a summary.
	OnSummarize(ctx context.Context, username string, languages int, err error)

	// Avatar events. found is false when no avatar could be used.
	OnAvatarStart(ctx context.Context, username string)
	OnAvatarComplete(ctx context.Context, username string, found bool, duration time.Duration)

	// Render events
	OnRenderStart(ctx context.Context, username string)
	OnRenderComplete(ctx context.Context, username string, size int, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
// keyType is "avatar" or "card".
type CacheHooks interface {
	OnCacheHit(ctx context.Context, keyType string)
	OnCacheMiss(ctx context.Context, keyType string)
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from outgoing HTTP requests.
type HTTPHooks interface {
	OnRequest(ctx context.Context, method, host, path string)
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopCardHooks is a no-op implementation of CardHooks.
type NoopCardHooks struct{}

func (NoopCardHooks) OnSummarize(context.Context, string, int, error)                     {}
func (NoopCardHooks) OnAvatarStart(context.Context, string)                               {}
func (NoopCardHooks) OnAvatarComplete(context.Context, string, bool, time.Duration)       {}
func (NoopCardHooks) OnRenderStart(context.Context, string)                               {}
func (NoopCardHooks) OnRenderComplete(context.Context, string, int, time.Duration, error) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	cardHooks  CardHooks  = NoopCardHooks{}
	cacheHooks CacheHooks = NoopCacheHooks{}
	httpHooks  HTTPHooks  = NoopHTTPHooks{}
	hooksMu    sync.RWMutex
)

// SetCardHooks registers card pipeline hooks. Nil is ignored.
func SetCardHooks(h CardHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cardHooks = h
	}
}

// SetCacheHooks registers cache hooks. Nil is ignored.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetHTTPHooks registers HTTP hooks. Nil is ignored.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Card returns the registered card hooks.
func Card() CardHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cardHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	cardHooks = NoopCardHooks{}
	cacheHooks = NoopCacheHooks{}
	httpHooks = NoopHTTPHooks{}
}
