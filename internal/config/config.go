// Package config loads wakacard's TOML configuration.
//
// Values are resolved in three layers: built-in defaults, then the config
// file, then WAKACARD_* environment variables. Unknown keys in the file are
// rejected so that typos do not silently fall back to defaults.
package config

import (
	"bytes"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/wakacard/pkg/avatar"
	"github.com/matzehuels/wakacard/pkg/cache"
	"github.com/matzehuels/wakacard/pkg/card"
	"github.com/matzehuels/wakacard/pkg/errors"
	"github.com/matzehuels/wakacard/pkg/fonts"
	"github.com/matzehuels/wakacard/pkg/pipeline"
)

// FileName is the config file looked up in the user config directory.
const FileName = "config.toml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WAKACARD_"

// Config is the complete configuration.
type Config struct {
	Card      CardConfig      `toml:"card"`
	Font      fonts.Config    `toml:"font"`
	Cache     CacheConfig     `toml:"cache"`
	Server    ServerConfig    `toml:"server"`
	Avatar    AvatarConfig    `toml:"avatar"`
	Watermark WatermarkConfig `toml:"watermark"`
}

// CardConfig selects the variant and overrides individual geometry fields.
// Zero values keep the variant's value.
type CardConfig struct {
	Variant        string   `toml:"variant"`
	Title          string   `toml:"title,omitempty"`
	Background     string   `toml:"background,omitempty"`
	PanelColor     string   `toml:"panel_color,omitempty"`
	HeaderColor    string   `toml:"header_color,omitempty"`
	TitleColor     string   `toml:"title_color,omitempty"`
	LabelColor     string   `toml:"label_color,omitempty"`
	TrackColor     string   `toml:"track_color,omitempty"`
	WatermarkColor string   `toml:"watermark_color,omitempty"`
	Palette        []string `toml:"palette,omitempty"`
	PanelRadius    float64  `toml:"panel_radius,omitempty"`
	BarHeight      float64  `toml:"bar_height,omitempty"`
	MaxBarWidth    float64  `toml:"max_bar_width,omitempty"`
	MinBarWidth    float64  `toml:"min_bar_width,omitempty"`
	RowPitch       float64  `toml:"row_pitch,omitempty"`
	AvatarSize     float64  `toml:"avatar_size,omitempty"`
	AvatarRadius   float64  `toml:"avatar_radius,omitempty"`
}

// CacheConfig configures the artifact cache.
type CacheConfig struct {
	Backend string   `toml:"backend"`
	Dir     string   `toml:"dir,omitempty"`
	TTL     Duration `toml:"ttl"`
	Size    int      `toml:"size,omitempty"`
	Prefix  string   `toml:"prefix,omitempty"`
	Redis   Redis    `toml:"redis"`
	Mongo   Mongo    `toml:"mongo"`
}

// Redis configures the redis backend.
type Redis struct {
	Addr     string `toml:"addr,omitempty"`
	Password string `toml:"password,omitempty"`
	DB       int    `toml:"db,omitempty"`
}

// Mongo configures the mongo backend.
type Mongo struct {
	URI        string `toml:"uri,omitempty"`
	Database   string `toml:"database,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// ServerConfig configures `wakacard serve`.
type ServerConfig struct {
	Addr         string   `toml:"addr"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
	MaxBodyBytes int64    `toml:"max_body_bytes"`
	// AvatarHosts lists the hosts a request's avatar_url may point at.
	// Empty rejects avatar_url.
	AvatarHosts []string `toml:"avatar_hosts,omitempty"`
}

// AvatarConfig configures avatar lookups.
type AvatarConfig struct {
	BaseURL     string   `toml:"base_url"`
	CheckExists bool     `toml:"check_exists"`
	Timeout     Duration `toml:"timeout"`
	Retries     int      `toml:"retries"`
	TTL         Duration `toml:"ttl"`
	// PublicOnly refuses avatar connections to loopback and private
	// addresses.
	PublicOnly bool `toml:"public_only"`
}

// WatermarkConfig controls the timestamp drawn on each card.
type WatermarkConfig struct {
	// Layout is a Go time layout.
	Layout string `toml:"layout"`
	// Zone is an IANA zone name; empty means the local zone.
	Zone string `toml:"zone,omitempty"`
}

// Duration is a time.Duration written as a string such as "24h".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Card: CardConfig{Variant: pipeline.VariantDefault},
		Font: fonts.Config{Name: fonts.DefaultName},
		Cache: CacheConfig{
			Backend: cache.BackendFile,
			TTL:     Duration{pipeline.DefaultCardTTL},
			Size:    cache.DefaultMemorySize,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  Duration{10 * time.Second},
			WriteTimeout: Duration{30 * time.Second},
			MaxBodyBytes: 1 << 20,
		},
		Avatar: AvatarConfig{
			BaseURL:    avatar.DefaultBaseURL,
			Timeout:    Duration{10 * time.Second},
			Retries:    2,
			TTL:        Duration{avatar.DefaultTTL},
			PublicOnly: true,
		},
		Watermark: WatermarkConfig{Layout: pipeline.DefaultTimestampLayout},
	}
}

// DefaultPath returns the config path: $WAKACARD_CONFIG, or config.toml in
// the user config directory.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "wakacard", FileName), nil
}

// Load reads the config at path. A missing file yields the defaults with
// environment overrides applied; an empty path skips the file.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := decode(data, cfg); err != nil {
				return nil, err
			}
		}
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML over the defaults without consulting the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := decode(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return errors.New(errors.ErrCodeInvalidConfig, "unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// env maps variable suffixes to setters.
var env = map[string]func(*Config, string) error{
	"VARIANT":          func(c *Config, v string) error { c.Card.Variant = v; return nil },
	"FONT_PATH":        func(c *Config, v string) error { c.Font.Path = v; return nil },
	"FONT_NAME":        func(c *Config, v string) error { c.Font.Name = v; return nil },
	"CACHE_BACKEND":    func(c *Config, v string) error { c.Cache.Backend = v; return nil },
	"CACHE_DIR":        func(c *Config, v string) error { c.Cache.Dir = v; return nil },
	"CACHE_TTL":        func(c *Config, v string) error { return c.Cache.TTL.UnmarshalText([]byte(v)) },
	"CACHE_PREFIX":     func(c *Config, v string) error { c.Cache.Prefix = v; return nil },
	"REDIS_ADDR":       func(c *Config, v string) error { c.Cache.Redis.Addr = v; return nil },
	"REDIS_PASSWORD":   func(c *Config, v string) error { c.Cache.Redis.Password = v; return nil },
	"REDIS_DB":         func(c *Config, v string) error { return setInt(&c.Cache.Redis.DB, v) },
	"MONGO_URI":        func(c *Config, v string) error { c.Cache.Mongo.URI = v; return nil },
	"SERVER_ADDR":      func(c *Config, v string) error { c.Server.Addr = v; return nil },
	"AVATAR_BASE_URL":  func(c *Config, v string) error { c.Avatar.BaseURL = v; return nil },
	"AVATAR_TIMEOUT":   func(c *Config, v string) error { return c.Avatar.Timeout.UnmarshalText([]byte(v)) },
	"WATERMARK_LAYOUT": func(c *Config, v string) error { c.Watermark.Layout = v; return nil },
	"WATERMARK_ZONE":   func(c *Config, v string) error { c.Watermark.Zone = v; return nil },
}

// EnvVars lists the supported environment overrides.
func EnvVars() []string {
	names := make([]string, 0, len(env))
	for k := range env {
		names = append(names, EnvPrefix+k)
	}
	sort.Strings(names)
	return names
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for suffix, set := range env {
		v, ok := lookup(EnvPrefix + suffix)
		if !ok || v == "" {
			continue
		}
		if err := set(cfg, v); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s%s", EnvPrefix, suffix)
		}
	}
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if err := pipeline.ValidateVariant(c.Card.Variant); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "card.variant")
	}
	if _, err := c.Geometry(c.Card.Variant); err != nil {
		return err
	}
	switch c.Cache.Backend {
	case "", cache.BackendNone, cache.BackendFile, cache.BackendMemory, cache.BackendRedis, cache.BackendMongo:
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "cache.backend: unknown backend %q", c.Cache.Backend)
	}
	if c.Cache.TTL.Duration < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "cache.ttl must not be negative")
	}
	if c.Avatar.BaseURL != "" {
		if err := errors.ValidateURL(c.Avatar.BaseURL); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "avatar.base_url")
		}
	}
	for i, h := range c.Server.AvatarHosts {
		if h == "" || strings.ContainsAny(h, "/:@ ") {
			return errors.New(errors.ErrCodeInvalidConfig, "server.avatar_hosts[%d]: %q is not a host name", i, h)
		}
	}
	if c.Watermark.Layout == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "watermark.layout is empty")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Geometry returns the variant's geometry with the [card] overrides applied.
func (c *Config) Geometry(variant string) (card.Geometry, error) {
	g, err := pipeline.Geometry(variant)
	if err != nil {
		return card.Geometry{}, err
	}
	o := c.Card

	if err := overrideColors(&g, o); err != nil {
		return card.Geometry{}, err
	}
	if len(o.Palette) > 0 {
		palette, err := parsePalette(o.Palette)
		if err != nil {
			return card.Geometry{}, err
		}
		g.Palette = palette
	}
	if o.Title != "" {
		g.Title = o.Title
	}
	setFloat(&g.PanelRadius, o.PanelRadius)
	setFloat(&g.BarHeight, o.BarHeight)
	setFloat(&g.MaxBarWidth, o.MaxBarWidth)
	setFloat(&g.MinBarWidth, o.MinBarWidth)
	setFloat(&g.RowPitch, o.RowPitch)
	setFloat(&g.AvatarSize, o.AvatarSize)
	setFloat(&g.AvatarRadius, o.AvatarRadius)

	if err := g.Validate(); err != nil {
		return card.Geometry{}, err
	}
	return g, nil
}

func overrideColors(g *card.Geometry, o CardConfig) error {
	for _, f := range []struct {
		key string
		hex string
		dst *color.NRGBA
	}{
		{"background", o.Background, &g.Background},
		{"panel_color", o.PanelColor, &g.PanelColor},
		{"header_color", o.HeaderColor, &g.HeaderColor},
		{"title_color", o.TitleColor, &g.TitleColor},
		{"label_color", o.LabelColor, &g.LabelColor},
		{"track_color", o.TrackColor, &g.TrackColor},
		{"watermark_color", o.WatermarkColor, &g.WatermarkColor},
	} {
		if f.hex == "" {
			continue
		}
		c, err := card.ParseHex(f.hex)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "card.%s", f.key)
		}
		*f.dst = c
	}
	return nil
}

func parsePalette(hexes []string) ([]color.NRGBA, error) {
	out := make([]color.NRGBA, len(hexes))
	for i, h := range hexes {
		c, err := card.ParseHex(h)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "card.palette[%d]", i)
		}
		out[i] = c
	}
	return out, nil
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

// Location resolves the watermark zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Watermark.Zone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Watermark.Zone)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "watermark.zone")
	}
	return loc, nil
}

// CacheOptions converts the [cache] section for cache.Open.
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		Backend: c.Cache.Backend,
		Dir:     c.Cache.Dir,
		Size:    c.Cache.Size,
		MaxTTL:  c.Cache.TTL.Duration,
		Redis: cache.RedisConfig{
			Addr:     c.Cache.Redis.Addr,
			Password: c.Cache.Redis.Password,
			DB:       c.Cache.Redis.DB,
			Match:    c.Cache.Prefix + "*",
		},
		Mongo: cache.MongoConfig{
			URI:        c.Cache.Mongo.URI,
			Database:   c.Cache.Mongo.Database,
			Collection: c.Cache.Mongo.Collection,
		},
	}
}

// Keyer returns the cache keyer, scoped when a prefix is configured.
func (c *Config) Keyer() cache.Keyer {
	if c.Cache.Prefix == "" {
		return cache.NewDefaultKeyer()
	}
	return cache.NewScopedKeyer(nil, c.Cache.Prefix)
}

// Encode writes c as TOML.
func (c *Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}
