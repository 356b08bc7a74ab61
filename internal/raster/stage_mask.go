package raster

import (
	"image"

	"github.com/fogleman/gg"
	"github.com/paulmach/orb"

	"github.com/chartpyramid/chartpyramid/internal/catalog"
)

// stageMask implements spec §4.2 stage 3: if the dataset has a mask,
// recompute its bounding box in the buffer's current pixel coordinates,
// extract that window into a fresh RGBA buffer initialized fully
// transparent, and burn the polygon (with holes, even-odd fill) into the
// alpha band at value 255. cox,coy is the cumulative (wox+bbox.min,
// woy+bbox.min) offset spec §4.2 tracks across stages 2-3.
func stageMask(buf *rasterBuffer, d *catalog.Dataset, wox, woy int) (out *rasterBuffer, cox, coy int, err error) {
	if d.Mask == nil {
		return buf, wox, woy, nil
	}

	bb := d.Mask.BoundingBox()
	x0 := clampInt(int(bb.Min[0])-wox, 0, buf.w)
	y0 := clampInt(int(bb.Min[1])-woy, 0, buf.h)
	x1 := clampInt(int(bb.Max[0])-wox+1, 0, buf.w)
	y1 := clampInt(int(bb.Max[1])-woy+1, 0, buf.h)
	if x1 <= x0 || y1 <= y0 {
		return nil, 0, 0, &Error{Kind: "mask-invalid", Dataset: d.Name, Stage: "mask", Err: errBadWindow}
	}

	cropped := buf.cropPixels(x0, y0, x1, y1)
	// Transparent outside mask: zero the alpha band, keep RGB as read.
	for i := 3; i < len(cropped.pix); i += 4 {
		cropped.pix[i] = 0
	}

	dx := float64(wox + x0)
	dy := float64(woy + y0)
	alpha := rasterizeMaskAlpha(cropped.w, cropped.h, d.Mask.Outer, d.Mask.Holes, dx, dy)
	for i, a := range alpha {
		cropped.pix[i*4+3] = a
	}

	return cropped, wox + x0, woy + y0, nil
}

// rasterizeMaskAlpha burns the outer ring and holes (translated by -dx,-dy
// into the window's local pixel space) into a w×h alpha mask using
// even-odd fill, so holes correctly punch through the outer ring.
func rasterizeMaskAlpha(w, h int, outer orb.Ring, holes []orb.Ring, dx, dy float64) []byte {
	dc := gg.NewContext(w, h)
	dc.SetFillRuleEvenOdd()

	addRing := func(r orb.Ring) {
		if len(r) == 0 {
			return
		}
		dc.NewSubPath()
		for i, p := range r {
			x, y := p[0]-dx, p[1]-dy
			if i == 0 {
				dc.MoveTo(x, y)
			} else {
				dc.LineTo(x, y)
			}
		}
		dc.ClosePath()
	}

	addRing(outer)
	for _, hole := range holes {
		addRing(hole)
	}

	dc.SetRGBA(1, 1, 1, 1)
	dc.Fill()

	img, ok := dc.Image().(*image.RGBA)
	alpha := make([]byte, w*h)
	if !ok {
		return alpha
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			alpha[y*w+x] = img.RGBAAt(x, y).A
		}
	}
	return alpha
}
