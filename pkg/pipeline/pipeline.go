// Package pipeline runs the summarize → avatar → render sequence shared by
// the CLI and the HTTP server.
//
// # Architecture
//
// The pipeline consists of three stages:
//
//  1. Summarize: Turn a stats payload into a [card.StatsSummary]
//  2. Avatar: Resolve the user's avatar; failures yield no avatar
//  3. Render: Draw the card PNG, consulting the card cache first
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	runner.Avatars = avatars
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Username: "alice",
//	    Stats:    payload,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.WriteFile("card.png", result.PNG, 0o644)
package pipeline

import (
	"image"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/wakacard/pkg/card"
	"github.com/matzehuels/wakacard/pkg/errors"
	"github.com/matzehuels/wakacard/pkg/stats"
)

const (
	// DefaultTimestampLayout formats the watermark like "2024/3/9 14:05:09".
	DefaultTimestampLayout = "2006/1/2 15:04:05"

	// DefaultCardTTL is how long rendered cards stay cached.
	DefaultCardTTL = 24 * time.Hour
)

// Card variants.
const (
	VariantDefault = "default"
	VariantAlt     = "alt"
)

// Variants lists the built-in variant names.
var Variants = []string{VariantDefault, VariantAlt}

// Geometry returns the built-in geometry for a variant. An empty name
// selects the default.
func Geometry(variant string) (card.Geometry, error) {
	switch variant {
	case "", VariantDefault:
		return card.DefaultGeometry(), nil
	case VariantAlt:
		return card.AltGeometry(), nil
	default:
		return card.Geometry{}, ValidateVariant(variant)
	}
}

// ValidateVariant checks that a variant name is known.
func ValidateVariant(variant string) error {
	switch variant {
	case "", VariantDefault, VariantAlt:
		return nil
	}
	return errors.New(errors.ErrCodeInvalidInput, "invalid variant: %q (must be one of: default, alt)", variant)
}

// Options describes one card. Exactly one of Stats and Summary is required.
// This struct supports JSON serialization for API requests.
type Options struct {
	Username  string         `json:"username"`
	Stats     *stats.Payload `json:"stats,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	NoAvatar  bool           `json:"no_avatar,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Variant   string         `json:"variant,omitempty"`
	Refresh   bool           `json:"refresh,omitempty"`

	// Summary bypasses the summarize stage.
	Summary *card.StatsSummary `json:"-"`
	// Avatar bypasses avatar resolution.
	Avatar image.Image  `json:"-"`
	Logger *log.Logger `json:"-"`
}

// Validate checks the options before any stage runs.
func (o *Options) Validate() error {
	if o.Stats == nil && o.Summary == nil {
		return errors.New(errors.ErrCodeInvalidInput, "stats are required")
	}
	if o.Stats != nil && o.Summary != nil {
		return errors.New(errors.ErrCodeInvalidInput, "stats and summary are mutually exclusive")
	}
	if o.Username != "" {
		if err := errors.ValidateUsername(o.Username); err != nil {
			return err
		}
	}
	if o.AvatarURL != "" {
		if err := errors.ValidateURL(o.AvatarURL); err != nil {
			return err
		}
	}
	return ValidateVariant(o.Variant)
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// PNG is the encoded card.
	PNG []byte

	// Summary is the data the card was drawn from.
	Summary card.StatsSummary

	// CardID identifies this run in logs and response headers.
	CardID string

	// Timestamp is the watermark text drawn on the card.
	Timestamp string

	// AvatarFound reports whether an avatar was drawn.
	AvatarFound bool

	// CacheHit is true when the PNG came from the card cache.
	CacheHit bool

	Stats Stats
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Languages  int
	AvatarTime time.Duration
	RenderTime time.Duration
}
