package card

import (
	"fmt"
	"image/color"
)

// Anchor says which edge of a text line its Y coordinate refers to.
type Anchor int

const (
	AnchorTop Anchor = iota
	AnchorBottom
)

// Text is a single line of text.
type Text struct {
	Value  string
	X, Y   float64
	Size   float64
	Color  color.NRGBA
	Anchor Anchor
}

// Bar is one row of the chart.
type Bar struct {
	Index    int
	Language LanguageStat
	Fraction float64
	Label    Text
	Track    Rect    // full-width background
	Width    float64 // value bar width, starting at Track.X
	Radius   float64
	Color    color.NRGBA
}

// Fill is the value bar rectangle.
func (b Bar) Fill() Rect {
	return Rect{X: b.Track.X, Y: b.Track.Y, W: b.Width, H: b.Track.H}
}

// Layout is a fully resolved card, ready to paint.
type Layout struct {
	Width, Height int
	Background    color.NRGBA

	Panel       Rect
	PanelRadius float64
	PanelColor  color.NRGBA

	User  Text
	Total Text
	Title Text
	Bars  []Bar

	TrackColor color.NRGBA

	Avatar       Rect
	AvatarRadius float64

	Watermark Text
}

// Plan resolves s into a Layout. It performs no drawing.
func Plan(s StatsSummary, timestamp string, g Geometry) Layout {
	l := Layout{
		Width:       g.Width,
		Height:      g.Height,
		Background:  g.Background,
		Panel:       g.Panel,
		PanelRadius: g.PanelRadius,
		PanelColor:  g.PanelColor,
		User: Text{
			Value: "User: " + s.Username,
			X:     g.HeaderX, Y: g.HeaderUserY,
			Size: g.HeaderSize, Color: g.HeaderColor,
		},
		Total: Text{
			Value: fmt.Sprintf("Total coding time: %s hrs", FormatHours(s.TotalCodingSeconds)),
			X:     g.HeaderX, Y: g.HeaderTotalY,
			Size: g.HeaderSize, Color: g.HeaderColor,
		},
		Title: Text{
			Value: g.Title,
			X:     g.TitleX, Y: g.TitleY,
			Size: g.TitleSize, Color: g.TitleColor,
		},
		TrackColor:   g.TrackColor,
		Avatar:       Rect{X: g.AvatarX, Y: g.AvatarY, W: g.AvatarSize, H: g.AvatarSize},
		AvatarRadius: g.AvatarRadius,
		Watermark: Text{
			Value:  timestamp,
			X:      g.WatermarkX,
			Y:      float64(g.Height) - g.WatermarkMargin,
			Size:   g.WatermarkSize,
			Color:  g.WatermarkColor,
			Anchor: AnchorBottom,
		},
	}

	for i, lang := range s.Top() {
		rowY := g.BarStartY + float64(i)*g.RowPitch
		l.Bars = append(l.Bars, Bar{
			Index:    i,
			Language: lang,
			Fraction: Fraction(lang.TotalSeconds, s.TotalCodingSeconds),
			Label: Text{
				Value: fmt.Sprintf("%s: %s hrs", lang.Name, FormatHours(lang.TotalSeconds)),
				X:     g.BarX, Y: rowY - g.LabelOffset,
				Size: g.LabelSize, Color: g.LabelColor,
			},
			Track:  Rect{X: g.BarX, Y: rowY, W: g.MaxBarWidth, H: g.BarHeight},
			Width:  BarWidth(lang.TotalSeconds, s.TotalCodingSeconds, g),
			Radius: g.BarHeight / 2,
			Color:  g.Color(i),
		})
	}
	return l
}
