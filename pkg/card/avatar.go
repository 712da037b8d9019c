package card

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

// drawAvatar composites img into the avatar slot through a rounded clip.
// Any failure is logged and leaves the canvas untouched.
func (r *Renderer) drawAvatar(dc *gg.Context, img image.Image, l Layout) {
	if img == nil {
		return
	}
	thumb, err := fitAvatar(img, l.Avatar)
	if err != nil {
		r.logger.Warn("skipping avatar", "err", err)
		return
	}
	if thumb == nil {
		return
	}

	dc.Push()
	defer dc.Pop()
	roundedRect(dc, l.Avatar, l.AvatarRadius)
	dc.Clip()
	dc.DrawImage(thumb, int(math.Round(l.Avatar.X)), int(math.Round(l.Avatar.Y)))
}

// fitAvatar centre-crops and resamples img to the slot size.
func fitAvatar(img image.Image, slot Rect) (thumb image.Image, err error) {
	w, h := int(math.Round(slot.W)), int(math.Round(slot.H))
	if w <= 0 || h <= 0 {
		return nil, nil
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("avatar has empty bounds %v", img.Bounds())
	}
	defer func() {
		if rec := recover(); rec != nil {
			thumb, err = nil, fmt.Errorf("resample avatar: %v", rec)
		}
	}()
	return imaging.Fill(img, w, h, imaging.Center, imaging.Lanczos), nil
}
