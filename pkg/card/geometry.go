package card

import (
	"image/color"

	"github.com/matzehuels/wakacard/pkg/errors"
)

// Rect is an axis-aligned rectangle in canvas pixels.
type Rect struct {
	X, Y, W, H float64
}

// Geometry holds every constant of the card layout.
type Geometry struct {
	Width, Height int
	Background    color.NRGBA

	Panel       Rect
	PanelRadius float64
	PanelColor  color.NRGBA

	HeaderX      float64
	HeaderUserY  float64
	HeaderTotalY float64
	HeaderSize   float64
	HeaderColor  color.NRGBA

	Title      string
	TitleX     float64
	TitleY     float64
	TitleSize  float64
	TitleColor color.NRGBA

	BarX        float64
	BarStartY   float64
	BarHeight   float64
	MaxBarWidth float64
	MinBarWidth float64
	RowPitch    float64
	LabelOffset float64 // label top sits this far above the row
	LabelSize   float64
	LabelColor  color.NRGBA
	TrackColor  color.NRGBA
	Palette     []color.NRGBA

	AvatarX      float64
	AvatarY      float64
	AvatarSize   float64
	AvatarRadius float64

	WatermarkX      float64
	WatermarkMargin float64 // distance from the bottom edge to the text bottom
	WatermarkSize   float64
	WatermarkColor  color.NRGBA
}

// DefaultPalette is the row colour cycle, as hex.
var DefaultPalette = []string{"#ff4b5c", "#ffab00", "#4caf50", "#42a5f5", "#9c27b0"}

var (
	white = color.NRGBA{0xff, 0xff, 0xff, 0xff}
	black = color.NRGBA{0x00, 0x00, 0x00, 0xff}
)

// DefaultGeometry returns the standard 500×320 card.
func DefaultGeometry() Geometry {
	return Geometry{
		Width:      500,
		Height:     320,
		Background: mustHex("#696969"),

		Panel:       Rect{X: 30, Y: 85, W: 435, H: 210},
		PanelRadius: 20,
		PanelColor:  mustHex("#ffb6c1"),

		HeaderX:      50,
		HeaderUserY:  25,
		HeaderTotalY: 55,
		HeaderSize:   20,
		HeaderColor:  white,

		Title:      "Top 5 language time:",
		TitleX:     50,
		TitleY:     100,
		TitleSize:  18,
		TitleColor: black,

		BarX:        50,
		BarStartY:   140,
		BarHeight:   10,
		MaxBarWidth: 400,
		MinBarWidth: 5,
		RowPitch:    30,
		LabelOffset: 15,
		LabelSize:   14,
		LabelColor:  black,
		TrackColor:  mustHex("#d3d3d3"),
		Palette:     mustPalette(DefaultPalette),

		AvatarX:      370,
		AvatarY:      20,
		AvatarSize:   80,
		AvatarRadius: 10,

		WatermarkX:      10,
		WatermarkMargin: 5,
		WatermarkSize:   12,
		WatermarkColor:  color.NRGBA{0xff, 0xff, 0xff, 0xcc},
	}
}

// AltGeometry returns the variant with a larger avatar and looser rows.
func AltGeometry() Geometry {
	g := DefaultGeometry()
	g.AvatarSize = 90
	g.RowPitch = 35
	return g
}

// Color returns the palette colour for a row. An empty palette uses the default one.
func (g Geometry) Color(index int) color.NRGBA {
	n := len(g.Palette)
	if n == 0 {
		return PaletteColor(index)
	}
	return g.Palette[((index%n)+n)%n]
}

// Validate reports geometry that cannot be drawn.
func (g Geometry) Validate() error {
	switch {
	case g.Width <= 0 || g.Height <= 0:
		return errors.New(errors.ErrCodeInvalidConfig, "canvas must be positive, got %dx%d", g.Width, g.Height)
	case g.MaxBarWidth <= 0:
		return errors.New(errors.ErrCodeInvalidConfig, "max bar width must be positive, got %g", g.MaxBarWidth)
	case g.MinBarWidth < 0 || g.MinBarWidth > g.MaxBarWidth:
		return errors.New(errors.ErrCodeInvalidConfig, "min bar width must be within [0, %g], got %g", g.MaxBarWidth, g.MinBarWidth)
	case g.BarHeight < 0 || g.AvatarSize < 0:
		return errors.New(errors.ErrCodeInvalidConfig, "bar height and avatar size must not be negative")
	case g.RowPitch <= 0:
		return errors.New(errors.ErrCodeInvalidConfig, "row pitch must be positive, got %g", g.RowPitch)
	case g.HeaderSize <= 0 || g.TitleSize <= 0 || g.LabelSize <= 0 || g.WatermarkSize <= 0:
		return errors.New(errors.ErrCodeInvalidConfig, "font sizes must be positive")
	case len(g.Palette) == 0:
		return errors.New(errors.ErrCodeInvalidConfig, "palette is empty")
	}
	return nil
}

func mustPalette(hexes []string) []color.NRGBA {
	out := make([]color.NRGBA, len(hexes))
	for i, h := range hexes {
		out[i] = mustHex(h)
	}
	return out
}

func mustHex(s string) color.NRGBA {
	c, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}
