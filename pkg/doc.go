// Package pkg provides the libraries behind wakacard, a renderer for
// coding-time stats cards.
//
// # Overview
//
// A card shows a user's total coding hours, their top five languages as
// proportional bars, their avatar and a timestamp watermark. The pkg
// directory is organized by stage:
//
//  1. [stats] - Decode a stats payload and reduce it to a card summary
//  2. [avatar] - Resolve and decode avatars over HTTP or from disk
//  3. [card] - Plan the fixed layout and draw the PNG
//  4. [pipeline] - Orchestration (summarize → avatar → render, with caching)
//  5. [cache] - Byte caches for avatars and rendered cards
//
// # Architecture
//
// The typical data flow:
//
//	Stats payload (JSON)
//	         ↓
//	   stats.Summarize
//	         ↓
//	   card.StatsSummary ──→ avatar.Client.Fetch
//	         ↓                      ↓
//	   card.Renderer.Render ←── image.Image
//	         ↓
//	       PNG bytes
//
// Supporting packages: [fonts] loads the typeface, [errors] carries error
// codes, [httputil] builds retrying HTTP clients, [observability] and
// [metrics] expose hooks and Prometheus collectors, and [buildinfo] holds
// the version.
//
// [stats]: https://pkg.go.dev/github.com/matzehuels/wakacard/pkg/stats
// [avatar]: https://pkg.go.dev/github.com/matzehuels/wakacard/pkg/avatar
// [card]: https://pkg.go.dev/github.com/matzehuels/wakacard/pkg/card
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/wakacard/pkg/pipeline
// [cache]: https://pkg.go.dev/github.com/matzehuels/wakacard/pkg/cache
// [fonts]: https://pkg.go.dev/github.com/matzehuels/wakacard/pkg/fonts
// [errors]: https://pkg.go.dev/github.com/matzehuels/wakacard/pkg/errors
// [httputil]: https://pkg.go.dev/github.com/matzehuels/wakacard/pkg/httputil
// [observability]: https://pkg.go.dev/github.com/matzehuels/wakacard/pkg/observability
// [metrics]: https://pkg.go.dev/github.com/matzehuels/wakacard/pkg/metrics
// [buildinfo]: https://pkg.go.dev/github.com/matzehuels/wakacard/pkg/buildinfo
package pkg
