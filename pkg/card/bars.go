package card

import (
	"image/color"
	"math"
	"strconv"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/matzehuels/wakacard/pkg/errors"
)

// Fraction is seconds as a share of total. A zero total yields 0.
func Fraction(seconds, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(seconds) / float64(total)
}

// BarWidth scales the share of total to g.MaxBarWidth, floored at g.MinBarWidth.
func BarWidth(seconds, total int64, g Geometry) float64 {
	return math.Max(Fraction(seconds, total)*g.MaxBarWidth, g.MinBarWidth)
}

// FormatHours formats seconds as hours with two decimals.
func FormatHours(seconds int64) string {
	return strconv.FormatFloat(float64(seconds)/3600, 'f', 2, 64)
}

var defaultPalette = mustPalette(DefaultPalette)

// PaletteColor returns the default palette colour for a row index.
func PaletteColor(index int) color.NRGBA {
	n := len(defaultPalette)
	return defaultPalette[((index%n)+n)%n]
}

// ParseHex parses "#rrggbb" into an opaque colour.
func ParseHex(s string) (color.NRGBA, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "invalid colour %q", s)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}, nil
}

// muted is c at half opacity, the left end of a bar gradient.
func muted(c color.NRGBA) color.NRGBA {
	c.A = 0x80
	return c
}
