package pipeline

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/matzehuels/wakacard/pkg/cache"
	"github.com/matzehuels/wakacard/pkg/card"
	"github.com/matzehuels/wakacard/pkg/errors"
	"github.com/matzehuels/wakacard/pkg/observability"
	"github.com/matzehuels/wakacard/pkg/stats"
)

// AvatarSource resolves avatars. Both methods return nil when no avatar can
// be used. *avatar.Client implements it.
type AvatarSource interface {
	Fetch(ctx context.Context, username string) image.Image
	FetchURL(ctx context.Context, url string) image.Image
}

// Runner encapsulates pipeline execution with caching.
//
// The Runner holds no per-card state, so multiple goroutines can safely use
// the same Runner with different options. Fields must not be changed once
// the Runner is in use.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger

	// Renderers maps variant names to renderers. When nil, renderers for
	// the built-in variants are created on first use.
	Renderers map[string]*card.Renderer
	// DefaultVariant is used for requests that name no variant. Empty
	// means VariantDefault.
	DefaultVariant string
	// Avatars resolves avatars; nil draws every card without one.
	Avatars AvatarSource

	Clock           func() time.Time
	Location        *time.Location
	TimestampLayout string
	TTL             time.Duration

	builtinOnce sync.Once
	builtin     map[string]*card.Renderer
	builtinErr  error
}

// NewRunner creates a runner with the given cache and keyer. Renderers for
// the built-in variants are built lazily unless Renderers is set.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:           c,
		Keyer:           keyer,
		Logger:          logger,
		Clock:           time.Now,
		Location:        time.Local,
		TimestampLayout: DefaultTimestampLayout,
		TTL:             DefaultCardTTL,
	}
}

// Execute runs the complete summarize → avatar → render pipeline.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger := r.logger(opts)

	opts.Variant = r.variant(opts.Variant)
	renderer, err := r.Renderer(opts.Variant)
	if err != nil {
		return nil, err
	}

	// Stage 1: Summarize
	summary, err := r.Summarize(ctx, opts)
	if err != nil {
		return nil, err
	}
	logger.Debug("summarized stats",
		"user", summary.Username,
		"languages", len(summary.Languages),
		"hours", card.FormatHours(summary.TotalCodingSeconds))

	result := &Result{
		Summary:   summary,
		CardID:    uuid.NewString(),
		Timestamp: opts.Timestamp,
	}
	result.Stats.Languages = len(summary.Languages)
	if result.Timestamp == "" {
		result.Timestamp = r.timestamp()
	}

	// Stage 2: Avatar
	avatarStart := time.Now()
	img := r.ResolveAvatar(ctx, summary.Username, opts)
	result.Stats.AvatarTime = time.Since(avatarStart)
	result.AvatarFound = img != nil

	// Stage 3: Render
	renderStart := time.Now()
	png, hit, err := r.RenderWithCacheInfo(ctx, renderer, summary, img, result.Timestamp, opts)
	if err != nil {
		return nil, err
	}
	result.PNG = png
	result.CacheHit = hit
	result.Stats.RenderTime = time.Since(renderStart)

	logger.Info("rendered card",
		"id", result.CardID,
		"user", summary.Username,
		"avatar", result.AvatarFound,
		"cached", hit,
		"bytes", len(png),
		"duration", result.Stats.RenderTime)

	return result, nil
}

// Renderer returns the renderer for a variant. An empty name selects
// DefaultVariant.
func (r *Runner) Renderer(variant string) (*card.Renderer, error) {
	variant = r.variant(variant)
	renderers := r.Renderers
	if renderers == nil {
		r.builtinOnce.Do(func() {
			r.builtin, r.builtinErr = BuiltinRenderers(r.Logger)
		})
		if r.builtinErr != nil {
			return nil, r.builtinErr
		}
		renderers = r.builtin
	}
	if rr, ok := renderers[variant]; ok && rr != nil {
		return rr, nil
	}
	return nil, errors.New(errors.ErrCodeInvalidInput, "variant %q is not configured", variant)
}

func (r *Runner) variant(v string) string {
	switch {
	case v != "":
		return v
	case r.DefaultVariant != "":
		return r.DefaultVariant
	default:
		return VariantDefault
	}
}

// BuiltinRenderers creates a renderer for every built-in variant with the
// default font.
func BuiltinRenderers(logger *log.Logger) (map[string]*card.Renderer, error) {
	renderers := make(map[string]*card.Renderer, len(Variants))
	for _, v := range Variants {
		g, err := Geometry(v)
		if err != nil {
			return nil, err
		}
		rr, err := card.NewRenderer(card.WithGeometry(g), card.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("%s renderer: %w", v, err)
		}
		renderers[v] = rr
	}
	return renderers, nil
}

// Summarize builds the summary from opts.Stats, or normalizes opts.Summary.
func (r *Runner) Summarize(ctx context.Context, opts Options) (card.StatsSummary, error) {
	var (
		summary card.StatsSummary
		err     error
	)
	if opts.Summary != nil {
		username := opts.Summary.Username
		if opts.Username != "" {
			username = opts.Username
		}
		summary, err = card.NewSummary(username, opts.Summary.TotalCodingSeconds, opts.Summary.Languages)
		if err == nil && (summary.TotalCodingSeconds == 0 || len(summary.Languages) == 0) {
			err = stats.NoData(username)
		}
	} else {
		summary, err = stats.Summarize(opts.Username, opts.Stats)
	}
	observability.Card().OnSummarize(ctx, opts.Username, len(summary.Languages), err)
	if err != nil {
		return card.StatsSummary{}, err
	}
	return summary, nil
}

// ResolveAvatar picks the avatar for the card. It never fails; nil means the
// card is drawn without one.
func (r *Runner) ResolveAvatar(ctx context.Context, username string, opts Options) image.Image {
	switch {
	case opts.NoAvatar:
		return nil
	case opts.Avatar != nil:
		return opts.Avatar
	case r.Avatars == nil:
		return nil
	case opts.AvatarURL != "":
		return r.Avatars.FetchURL(ctx, opts.AvatarURL)
	case username == "":
		return nil
	default:
		return r.Avatars.Fetch(ctx, username)
	}
}

// RenderWithCacheInfo renders a card with caching and reports whether the
// PNG came from the cache.
func (r *Runner) RenderWithCacheInfo(ctx context.Context, renderer *card.Renderer, summary card.StatsSummary, avatar image.Image, timestamp string, opts Options) ([]byte, bool, error) {
	logger := r.logger(opts)
	key, err := r.cardKey(renderer, summary, avatar, timestamp, opts.Variant)
	if err != nil {
		// Uncacheable, but still renderable.
		logger.Debug("card key unavailable", "err", err)
	}

	if key != "" && !opts.Refresh {
		if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
			observability.Cache().OnCacheHit(ctx, "card")
			return data, true, nil
		} else if err != nil {
			logger.Debug("card cache read failed", "err", err)
		}
		observability.Cache().OnCacheMiss(ctx, "card")
	}

	hooks := observability.Card()
	hooks.OnRenderStart(ctx, summary.Username)
	start := time.Now()
	png, err := renderer.Render(summary, avatar, timestamp)
	hooks.OnRenderComplete(ctx, summary.Username, len(png), time.Since(start), err)
	if err != nil {
		return nil, false, err
	}

	if key != "" {
		if err := r.Cache.Set(ctx, key, png, r.TTL); err != nil {
			logger.Debug("card cache write failed", "err", err)
		} else {
			observability.Cache().OnCacheSet(ctx, "card", len(png))
		}
	}
	return png, false, nil
}

func (r *Runner) cardKey(renderer *card.Renderer, summary card.StatsSummary, avatar image.Image, timestamp, variant string) (string, error) {
	summaryHash, err := cache.HashJSON(summary)
	if err != nil {
		return "", fmt.Errorf("hash summary: %w", err)
	}
	geomHash, err := cache.HashJSON(renderer.Geometry())
	if err != nil {
		return "", fmt.Errorf("hash geometry: %w", err)
	}
	opts := cache.CardKeyOpts{
		Timestamp: timestamp,
		Variant:   variant,
		Geometry:  geomHash,
	}
	if f := renderer.Fonts(); f != nil {
		opts.Font = f.Source
	}
	if avatar != nil {
		opts.AvatarHash = imageHash(avatar)
	}
	return r.Keyer.CardKey(summaryHash, opts), nil
}

// imageHash hashes the pixels of img in NRGBA form.
func imageHash(img image.Image) string {
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	return fmt.Sprintf("%dx%d:%s", b.Dx(), b.Dy(), cache.Hash(nrgba.Pix))
}

func (r *Runner) timestamp() string {
	now := time.Now
	if r.Clock != nil {
		now = r.Clock
	}
	t := now()
	if r.Location != nil {
		t = t.In(r.Location)
	}
	layout := r.TimestampLayout
	if layout == "" {
		layout = DefaultTimestampLayout
	}
	return t.Format(layout)
}

func (r *Runner) logger(opts Options) *log.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return r.Logger
}
