// Package avatar resolves a user's avatar into a decoded image.
//
// Avatars are optional decoration. Every failure (missing photo, network
// error, undecodable bytes) is logged and reported as "no avatar" so the
// card can still be rendered. Raw bytes are cached so repeated cards for
// the same user do not refetch.
package avatar

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	// Register decoders for the formats avatar services commonly serve.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/matzehuels/wakacard/pkg/cache"
	"github.com/matzehuels/wakacard/pkg/errors"
	"github.com/matzehuels/wakacard/pkg/httputil"
	"github.com/matzehuels/wakacard/pkg/observability"
)

// DefaultBaseURL is the photo service root.
const DefaultBaseURL = "https://wakatime.com"

// DefaultTTL is how long fetched avatar bytes are cached.
const DefaultTTL = 24 * time.Hour

// maxBytes bounds a downloaded avatar.
const maxBytes = 5 << 20

// MaxDimension bounds the width and height of a decoded avatar.
const MaxDimension = 4096

// Config configures a Client.
type Config struct {
	BaseURL string
	// CheckExists issues a HEAD before fetching, mirroring services that
	// answer GET for missing photos with a placeholder image.
	CheckExists bool
	TTL         time.Duration
	HTTP        httputil.Options
}

// Client fetches avatars.
type Client struct {
	base        string
	checkExists bool
	ttl         time.Duration
	http        *retryablehttp.Client
	cache       cache.Cache
	keys        cache.Keyer
	logger      *log.Logger
}

// NewClient creates a client. A nil cache disables caching, a nil keyer uses
// the default keys and a nil logger discards.
func NewClient(cfg Config, c cache.Cache, keys cache.Keyer, logger *log.Logger) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if err := errors.ValidateURL(base); err != nil {
		return nil, err
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if keys == nil {
		keys = cache.NewDefaultKeyer()
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	httpOpts := cfg.HTTP
	if httpOpts.Logger == nil {
		httpOpts.Logger = logger
	}
	return &Client{
		base:        base,
		checkExists: cfg.CheckExists,
		ttl:         ttl,
		http:        httputil.NewClient(httpOpts),
		cache:       c,
		keys:        keys,
		logger:      logger,
	}, nil
}

// URL returns the photo URL for username.
func (c *Client) URL(username string) string {
	return fmt.Sprintf("%s/photo/@%s", c.base, username)
}

// Exists reports whether the photo URL answers a HEAD with 200.
func (c *Client) Exists(ctx context.Context, username string) (bool, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, c.URL(username), nil)
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeInvalidInput, err, "build avatar request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeNetwork, err, "head %s", c.URL(username))
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// Fetch returns the decoded avatar for username, or nil when none can be used.
func (c *Client) Fetch(ctx context.Context, username string) image.Image {
	hooks := observability.Card()
	hooks.OnAvatarStart(ctx, username)
	start := time.Now()

	img, err := c.fetch(ctx, username)
	hooks.OnAvatarComplete(ctx, username, img != nil, time.Since(start))
	if err != nil {
		c.logger.Warn("avatar unavailable", "user", username, "err", err)
		return nil
	}
	return img
}

// FetchBytes returns the raw avatar bytes, using the cache.
func (c *Client) FetchBytes(ctx context.Context, username string) ([]byte, error) {
	if err := errors.ValidateUsername(username); err != nil {
		return nil, err
	}

	key := c.keys.AvatarKey(username)
	if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		observability.Cache().OnCacheHit(ctx, "avatar")
		return data, nil
	} else if err != nil {
		c.logger.Debug("avatar cache read failed", "err", err)
	}
	observability.Cache().OnCacheMiss(ctx, "avatar")

	if c.checkExists {
		ok, err := c.Exists(ctx, username)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.New(errors.ErrCodeNotFound, "no avatar for %s", username)
		}
	}

	data, err := c.get(ctx, c.URL(username))
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Debug("avatar cache write failed", "err", err)
	} else {
		observability.Cache().OnCacheSet(ctx, "avatar", len(data))
	}
	return data, nil
}

// FetchURL downloads and decodes an arbitrary avatar URL without caching.
func (c *Client) FetchURL(ctx context.Context, rawURL string) image.Image {
	if err := errors.ValidateURL(rawURL); err != nil {
		c.logger.Warn("avatar unavailable", "url", rawURL, "err", err)
		return nil
	}
	data, err := c.get(ctx, rawURL)
	if err == nil {
		var img image.Image
		if img, err = Decode(data); err == nil {
			return img
		}
	}
	c.logger.Warn("avatar unavailable", "url", rawURL, "err", err)
	return nil
}

func (c *Client) fetch(ctx context.Context, username string) (image.Image, error) {
	data, err := c.FetchBytes(ctx, username)
	if err != nil {
		return nil, err
	}
	img, err := Decode(data)
	if err != nil {
		// Do not keep serving bytes we cannot decode.
		_ = c.cache.Delete(ctx, c.keys.AvatarKey(username))
		return nil, err
	}
	return img, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "build avatar request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrCodeTimeout, err, "get %s", url)
		}
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "get %s", url)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.New(errors.ErrCodeNotFound, "no avatar at %s", url)
	case resp.StatusCode != http.StatusOK:
		return nil, errors.New(errors.ErrCodeNetwork, "get %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "read %s", url)
	}
	if len(data) > maxBytes {
		return nil, errors.New(errors.ErrCodeAvatar, "avatar at %s exceeds %d bytes", url, maxBytes)
	}
	return data, nil
}

// Decode decodes avatar bytes, honouring EXIF orientation. Images larger
// than MaxDimension on either side are rejected before their pixels are
// allocated.
func Decode(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAvatar, err, "decode avatar")
	}
	if cfg.Width > MaxDimension || cfg.Height > MaxDimension {
		return nil, errors.New(errors.ErrCodeAvatar, "avatar is %dx%d, limit is %dx%d",
			cfg.Width, cfg.Height, MaxDimension, MaxDimension)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAvatar, err, "decode avatar")
	}
	if img.Bounds().Empty() {
		return nil, errors.New(errors.ErrCodeAvatar, "avatar has no pixels")
	}
	return img, nil
}

// Load decodes a local avatar file. Failures are logged and yield nil.
func Load(path string, logger *log.Logger) image.Image {
	data, err := os.ReadFile(path)
	if err == nil {
		var img image.Image
		if img, err = Decode(data); err == nil {
			return img
		}
	}
	if logger != nil {
		logger.Warn("avatar unavailable", "path", path, "err", err)
	}
	return nil
}
