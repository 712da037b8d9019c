package card

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"math"

	"github.com/charmbracelet/log"
	"github.com/fogleman/gg"
	"golang.org/x/image/font"

	"github.com/matzehuels/wakacard/pkg/errors"
	"github.com/matzehuels/wakacard/pkg/fonts"
)

// Option configures a Renderer.
type Option func(*Renderer)

// WithGeometry replaces the default geometry.
func WithGeometry(g Geometry) Option { return func(r *Renderer) { r.geom = g } }

// WithFonts sets the font used for all text. Defaults to [fonts.Default].
func WithFonts(s *fonts.Set) Option { return func(r *Renderer) { r.fonts = s } }

// WithLogger sets the logger for non-fatal problems such as a failed avatar.
func WithLogger(l *log.Logger) Option { return func(r *Renderer) { r.logger = l } }

// Renderer draws cards. It is immutable once built.
type Renderer struct {
	geom   Geometry
	fonts  *fonts.Set
	logger *log.Logger
}

// NewRenderer builds a Renderer. It fails only on invalid geometry.
func NewRenderer(opts ...Option) (*Renderer, error) {
	r := &Renderer{geom: DefaultGeometry()}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.geom.Validate(); err != nil {
		return nil, err
	}
	if r.fonts == nil {
		r.fonts = fonts.Default()
	}
	if r.logger == nil {
		r.logger = log.New(io.Discard)
	}
	if r.fonts.Fallback {
		r.logger.Warn("card font unavailable, using fallback", "source", r.fonts.Source, "reason", r.fonts.Reason)
	}
	return r, nil
}

// Geometry returns the geometry the renderer draws with.
func (r *Renderer) Geometry() Geometry { return r.geom }

// Fonts returns the font set the renderer draws with.
func (r *Renderer) Fonts() *fonts.Set { return r.fonts }

// Render draws the card and encodes it as PNG. avatar may be nil.
func (r *Renderer) Render(s StatsSummary, avatar image.Image, timestamp string) ([]byte, error) {
	dc, err := r.draw(s, avatar, timestamp)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, errors.Wrap(errors.ErrCodeRender, err, "encode png")
	}
	return buf.Bytes(), nil
}

// Compose draws the card and returns the raster without encoding it.
func (r *Renderer) Compose(s StatsSummary, avatar image.Image, timestamp string) (image.Image, error) {
	dc, err := r.draw(s, avatar, timestamp)
	if err != nil {
		return nil, err
	}
	return dc.Image(), nil
}

func (r *Renderer) draw(s StatsSummary, avatar image.Image, timestamp string) (dc *gg.Context, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			dc, err = nil, errors.New(errors.ErrCodeRender, "draw card: %v", rec)
		}
	}()

	l := Plan(s, timestamp, r.geom)
	p := &painter{dc: gg.NewContext(l.Width, l.Height), fonts: r.fonts, faces: map[float64]font.Face{}}

	p.background(l)
	p.panel(l)
	p.text(l.User)
	p.text(l.Total)
	p.text(l.Title)
	for _, b := range l.Bars {
		p.bar(b, l.TrackColor)
	}
	r.drawAvatar(p.dc, avatar, l)
	p.text(l.Watermark)

	return p.dc, nil
}

// painter owns one canvas for the duration of a render.
type painter struct {
	dc    *gg.Context
	fonts *fonts.Set
	faces map[float64]font.Face
}

func (p *painter) background(l Layout) {
	p.dc.SetColor(l.Background)
	p.dc.Clear()
}

func (p *painter) panel(l Layout) {
	roundedRect(p.dc, l.Panel, l.PanelRadius)
	p.dc.SetColor(l.PanelColor)
	p.dc.Fill()
}

func (p *painter) face(size float64) font.Face {
	f, ok := p.faces[size]
	if !ok {
		f = p.fonts.Face(size)
		p.faces[size] = f
	}
	return f
}

func (p *painter) text(t Text) {
	if t.Value == "" {
		return
	}
	face := p.face(t.Size)
	m := face.Metrics()
	y := t.Y + float64(m.Ascent)/64
	if t.Anchor == AnchorBottom {
		y = t.Y - float64(m.Descent)/64
	}
	p.dc.SetFontFace(face)
	p.dc.SetColor(t.Color)
	p.dc.DrawString(t.Value, t.X, y)
}

// bar draws the label, then the track, then the gradient value bar over it.
func (p *painter) bar(b Bar, track color.NRGBA) {
	p.text(b.Label)

	roundedRect(p.dc, b.Track, b.Radius)
	p.dc.SetColor(track)
	p.dc.Fill()

	fill := b.Fill()
	if fill.W <= 0 {
		return
	}
	grad := gg.NewLinearGradient(fill.X, 0, fill.X+fill.W, 0)
	grad.AddColorStop(0, muted(b.Color))
	grad.AddColorStop(1, b.Color)
	p.dc.SetFillStyle(grad)
	roundedRect(p.dc, visible(fill, float64(p.dc.Width()), b.Radius), b.Radius)
	p.dc.Fill()
}

// visible trims r to end one corner radius past the canvas edge, so the
// rounded end stays off-canvas and the visible pixels are unchanged.
func visible(r Rect, canvasWidth, radius float64) Rect {
	if limit := canvasWidth - r.X + radius; r.W > limit {
		r.W = math.Max(limit, 0)
	}
	return r
}
