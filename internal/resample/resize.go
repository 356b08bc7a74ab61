package resample

import (
	"image"
	"image/color"
	"math"
)

// Resize resamples src to a dstW×dstH RGBA image using kernel k. It is the
// resampler behind the tile engine's Phase 2 composite downsample (spec §4.4
// step 3). The raster pipeline does not call it: stage 5's warp samples
// through its own per-point path, and stage 7's overviews are built by
// cog.Write.
func Resize(src *image.RGBA, dstW, dstH int, k Kernel) *image.RGBA {
	srcW, srcH := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	if srcW == 0 || srcH == 0 || dstW == 0 || dstH == 0 {
		return dst
	}

	scaleX := float64(srcW) / float64(dstW)
	scaleY := float64(srcH) / float64(dstH)

	switch k {
	case Nearest:
		for dy := 0; dy < dstH; dy++ {
			sy := clampInt(int((float64(dy)+0.5)*scaleY), 0, srcH-1)
			for dx := 0; dx < dstW; dx++ {
				sx := clampInt(int((float64(dx)+0.5)*scaleX), 0, srcW-1)
				dst.SetRGBA(dx, dy, src.RGBAAt(sx, sy))
			}
		}
	case Average, Mode:
		for dy := 0; dy < dstH; dy++ {
			y0 := int(float64(dy) * scaleY)
			y1 := clampInt(int(float64(dy+1)*scaleY), y0+1, srcH)
			for dx := 0; dx < dstW; dx++ {
				x0 := int(float64(dx) * scaleX)
				x1 := clampInt(int(float64(dx+1)*scaleX), x0+1, srcW)
				if k == Mode {
					dst.SetRGBA(dx, dy, boxMode(src, x0, y0, x1, y1))
				} else {
					dst.SetRGBA(dx, dy, boxAverage(src, x0, y0, x1, y1))
				}
			}
		}
	default:
		separableConvolve(src, dst, k, scaleX, scaleY)
	}

	return dst
}

func boxAverage(src *image.RGBA, x0, y0, x1, y1 int) color.RGBA {
	var sr, sg, sb, sa, n, transparentN int
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			c := src.RGBAAt(x, y)
			if c.A == 0 {
				transparentN++
				continue
			}
			sr += int(c.R)
			sg += int(c.G)
			sb += int(c.B)
			sa += int(c.A)
			n++
		}
	}
	if n == 0 {
		return color.RGBA{}
	}
	return color.RGBA{
		R: uint8(sr / n), G: uint8(sg / n), B: uint8(sb / n),
		A: uint8(sa / (n + transparentN)),
	}
}

func boxMode(src *image.RGBA, x0, y0, x1, y1 int) color.RGBA {
	counts := make(map[int]int)
	colors := make(map[int]color.RGBA)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			c := src.RGBAAt(x, y)
			key := int(c.R)<<24 | int(c.G)<<16 | int(c.B)<<8 | int(c.A)
			counts[key]++
			colors[key] = c
		}
	}
	return colors[ModePick(counts)]
}

// separableConvolve performs a two-pass (horizontal then vertical) weighted
// convolution using k's support radius and weight function, scaling the
// radius up when minifying (scale > 1) so the kernel still covers enough
// source samples to anti-alias, matching standard raster-library practice.
func separableConvolve(src *image.RGBA, dst *image.RGBA, k Kernel, scaleX, scaleY float64) {
	srcW, srcH := src.Bounds().Dx(), src.Bounds().Dy()
	dstW, dstH := dst.Bounds().Dx(), dst.Bounds().Dy()

	radiusX := k.Radius() * math.Max(1, scaleX)
	radiusY := k.Radius() * math.Max(1, scaleY)

	// Horizontal pass into an intermediate float buffer sized dstW×srcH.
	type px struct{ r, g, b, a, wsum float64 }
	mid := make([]px, dstW*srcH)

	for sy := 0; sy < srcH; sy++ {
		for dx := 0; dx < dstW; dx++ {
			center := (float64(dx) + 0.5) * scaleX
			lo := int(math.Floor(center - radiusX))
			hi := int(math.Ceil(center + radiusX))
			var r, g, b, a, wsum float64
			for sx := lo; sx <= hi; sx++ {
				csx := clampInt(sx, 0, srcW-1)
				w := k.Weight((float64(sx) + 0.5 - center) / math.Max(1, scaleX))
				if w == 0 {
					continue
				}
				c := src.RGBAAt(csx, sy)
				r += w * float64(c.R)
				g += w * float64(c.G)
				b += w * float64(c.B)
				a += w * float64(c.A)
				wsum += w
			}
			if wsum == 0 {
				wsum = 1
			}
			mid[sy*dstW+dx] = px{r / wsum, g / wsum, b / wsum, a / wsum, wsum}
		}
	}

	// Vertical pass.
	for dx := 0; dx < dstW; dx++ {
		for dy := 0; dy < dstH; dy++ {
			center := (float64(dy) + 0.5) * scaleY
			lo := int(math.Floor(center - radiusY))
			hi := int(math.Ceil(center + radiusY))
			var r, g, b, a, wsum float64
			for sy := lo; sy <= hi; sy++ {
				csy := clampInt(sy, 0, srcH-1)
				w := k.Weight((float64(sy) + 0.5 - center) / math.Max(1, scaleY))
				if w == 0 {
					continue
				}
				m := mid[csy*dstW+dx]
				r += w * m.r
				g += w * m.g
				b += w * m.b
				a += w * m.a
				wsum += w
			}
			if wsum == 0 {
				wsum = 1
			}
			dst.SetRGBA(dx, dy, color.RGBA{
				R: clampByte(r / wsum), G: clampByte(g / wsum),
				B: clampByte(b / wsum), A: clampByte(a / wsum),
			})
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
