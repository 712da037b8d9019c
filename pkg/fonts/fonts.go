// Package fonts resolves the typeface used to draw cards.
//
// A font is resolved once per process and shared by every render. Resolution
// tries, in order, an explicit file path, a system font located by file name,
// and finally the Go Regular face compiled into the binary. A miss at any step
// is never fatal: the returned [Set] records that a fallback was taken and why,
// so the caller can log it.
//
// Faces are not shared. Each render asks the set for a new [font.Face] at the
// sizes it needs, because faces carry glyph caches that are not safe for
// concurrent use.
package fonts

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/flopp/go-findfont"
	"github.com/golang/freetype/truetype"
	sfnt "github.com/tdewolff/font"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/matzehuels/wakacard/pkg/errors"
)

// DefaultName is the font file the card is designed around.
const DefaultName = "VarelaRound-Regular.ttf"

// BuiltinSource is reported as [Set.Source] when the embedded face is used.
const BuiltinSource = "builtin:goregular"

// Config selects the card font.
type Config struct {
	// Path is an explicit TTF, OTF, WOFF or WOFF2 file. Takes precedence over Name.
	Path string `toml:"path"`
	// Name is a font file name looked up in the system font directories.
	Name string `toml:"name"`
}

// Set is a parsed font ready for face creation.
type Set struct {
	Font     *truetype.Font
	Source   string // file path, or BuiltinSource
	Fallback bool   // true when the configured font could not be used
	Reason   error  // why the fallback was taken; nil when Fallback is false
}

// Face returns a new face at the given pixel size.
func (s *Set) Face(size float64) font.Face {
	return truetype.NewFace(s.Font, &truetype.Options{Size: size, DPI: 72})
}

// Load resolves cfg into a Set. It always returns a usable Set.
func Load(cfg Config) *Set {
	var reason error

	if cfg.Path != "" {
		f, err := parseFile(cfg.Path)
		if err == nil {
			return &Set{Font: f, Source: cfg.Path}
		}
		reason = err
	}

	if cfg.Name != "" {
		path, err := findfont.Find(cfg.Name)
		if err == nil {
			f, perr := parseFile(path)
			if perr == nil {
				return &Set{Font: f, Source: path, Fallback: reason != nil, Reason: reason}
			}
			err = perr
		}
		if reason == nil {
			reason = errors.Wrap(errors.ErrCodeFont, err, "font %q not found", cfg.Name)
		}
	}

	return &Set{Font: builtin(), Source: BuiltinSource, Fallback: reason != nil, Reason: reason}
}

var (
	defaultSet  *Set
	defaultOnce sync.Once
)

// Default returns the process-wide set for the designed font, resolved on first use.
func Default() *Set {
	defaultOnce.Do(func() {
		defaultSet = Load(Config{Name: DefaultName})
	})
	return defaultSet
}

var (
	goRegular     *truetype.Font
	goRegularOnce sync.Once
)

func builtin() *truetype.Font {
	goRegularOnce.Do(func() {
		f, err := truetype.Parse(goregular.TTF)
		if err != nil {
			panic(fmt.Sprintf("fonts: parse embedded goregular: %v", err))
		}
		goRegular = f
	})
	return goRegular
}

func parseFile(path string) (*truetype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFont, err, "read font %s", path)
	}
	return Parse(path, data)
}

// Parse parses font data. WOFF and WOFF2 data is converted to SFNT first.
func Parse(name string, data []byte) (*truetype.Font, error) {
	if isWOFF(name, data) {
		converted, err := sfnt.ToSFNT(data)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFont, err, "convert %s to sfnt", name)
		}
		data = converted
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFont, err, "parse font %s", name)
	}
	return f, nil
}

// isWOFF checks the extension and the "wOFF"/"wOF2" magic.
func isWOFF(name string, data []byte) bool {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".woff") || strings.HasSuffix(lower, ".woff2") {
		return true
	}
	return bytes.HasPrefix(data, []byte("wOFF")) || bytes.HasPrefix(data, []byte("wOF2"))
}
