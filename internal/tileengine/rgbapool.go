package tileengine

import (
	"image"
	"image/color"
	"sync"
)

// tileImagePool reuses 256×256 (and 512×512, for Phase 2 composites)
// *image.RGBA allocations across tile renders, since a full pyramid touches
// millions of tiles and each one would otherwise allocate and discard a
// fresh 256 KB buffer.
var tileImagePool sync.Map // map[int]*sync.Pool keyed by side length

func newTileImage(side int) *image.RGBA {
	if p, ok := tileImagePool.Load(side); ok {
		if v := p.(*sync.Pool).Get(); v != nil {
			img := v.(*image.RGBA)
			clear(img.Pix)
			return img
		}
	}
	return image.NewRGBA(image.Rect(0, 0, side, side))
}

func releaseTileImage(img *image.RGBA) {
	if img == nil {
		return
	}
	side := img.Rect.Dx()
	p, _ := tileImagePool.LoadOrStore(side, &sync.Pool{})
	p.(*sync.Pool).Put(img)
}

func rgba(r, g, b, a uint8) color.RGBA {
	return color.RGBA{R: r, G: g, B: b, A: a}
}
