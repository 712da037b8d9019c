// Package card renders a coding-time summary as a fixed-layout PNG card.
//
// # Overview
//
// A card shows a user's name and total coding time, a ranked bar chart of
// their top languages, an optional avatar and a timestamp watermark:
//
//	┌──────────────────────────────────────────┐
//	│ User: alice                      ┌─────┐ │
//	│ Total coding time: 12.50 hrs     │ img │ │
//	│ ┌────────────────────────────────┴─────┴┐│
//	│ │ Top 5 language time:                  ││
//	│ │ Go: 8.00 hrs                          ││
//	│ │ ██████████████████░░░░░░░░░░░░░░░░░░  ││
//	│ │ ...                                   ││
//	│ └───────────────────────────────────────┘│
//	│ 2026/10/18 12:00:00                      │
//	└──────────────────────────────────────────┘
//
// Rendering is split in two steps. [Plan] is a pure function from a
// [StatsSummary] and a [Geometry] to a [Layout]: every string, position,
// width and colour the card will contain. The [Renderer] then paints a
// Layout onto a fresh canvas in a fixed order:
//
//	background → panel → header → title → rows → avatar → watermark
//
// Later draws occlude earlier ones, so the avatar always sits above the
// panel and the watermark above everything.
//
// # Bars
//
// Row i shows the i-th language by descending seconds (ties keep input
// order). Its width is the language's share of the total coding time scaled
// to [Geometry.MaxBarWidth], floored at [Geometry.MinBarWidth] so tiny
// shares stay visible. See [BarWidth].
//
// # Concurrency
//
// A Renderer is immutable and safe for concurrent use. Each call allocates
// its own canvas and font faces.
package card
