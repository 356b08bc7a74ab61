package cog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// WriteOptions configures Write's output GeoTIFF.
type WriteOptions struct {
	Width, Height int
	TileSize      int // square tile side, e.g. 256
	PixelSizeX    float64
	PixelSizeY    float64 // positive; stored as north-up internally
	OriginX       float64 // upper-left corner X in target CRS units
	OriginY       float64 // upper-left corner Y in target CRS units
	EPSG          int
	NoData        string
	// OverviewFactors lists decimation factors for embedded overviews,
	// smallest first (e.g. {2,4,8,16,32,64}). Factors producing a
	// zero-sized level are skipped.
	OverviewFactors []int
	BigTIFF         bool
}

// DefaultOverviewFactors is the decimation-factor ladder mandated by the
// processed-raster invariant: overviews at {2,4,8,16,32,64}, AVERAGE
// resampling.
var DefaultOverviewFactors = []int{2, 4, 8, 16, 32, 64}

// Write persists an RGBA raster (4 bytes/pixel, row-major, len(pix) ==
// width*height*4) as a tiled, LZW-compressed GeoTIFF with embedded
// overviews built by box-filter averaging, matching the processed-raster
// invariant: CRS = target EPSG, geotransform from Origin/PixelSize, RGBA
// band layout, overviews at the configured decimation factors.
func Write(path string, pix []byte, opts WriteOptions) error {
	if opts.TileSize == 0 {
		opts.TileSize = 256
	}
	if len(opts.OverviewFactors) == 0 {
		opts.OverviewFactors = DefaultOverviewFactors
	}
	if len(pix) != opts.Width*opts.Height*4 {
		return fmt.Errorf("cog: pixel buffer length %d does not match %dx%d RGBA", len(pix), opts.Width, opts.Height)
	}

	levels := []rgbaLevel{{w: opts.Width, h: opts.Height, pix: pix}}
	for _, f := range opts.OverviewFactors {
		w := opts.Width / f
		h := opts.Height / f
		if w < 1 || h < 1 {
			break
		}
		levels = append(levels, downsampleAverageRGBA(pix, opts.Width, opts.Height, w, h))
	}

	bo := binary.LittleEndian
	headerSize := int64(8)
	if opts.BigTIFF {
		headerSize = 16
	}

	// Compress every level's tiles up front so byte counts are known before
	// any IFD is serialized.
	for i := range levels {
		levels[i].tileData = compressLevelTiles(levels[i], opts.TileSize)
	}

	var dirs bytes.Buffer
	type builtLevel struct {
		ifdRelStart     int64 // dirs-relative offset of this IFD's entry-count field
		nextOffsetPos   int64 // dirs-relative offset of the "next IFD" pointer field
		tileOffsetsPos  int64 // dirs-relative offset of the TileOffsets external array (0 = none)
		tilesAcross     int
		tilesDown       int
	}
	built := make([]builtLevel, len(levels))

	for i, lvl := range levels {
		tilesAcross := (lvl.w + opts.TileSize - 1) / opts.TileSize
		tilesDown := (lvl.h + opts.TileSize - 1) / opts.TileSize
		nTiles := tilesAcross * tilesDown

		fields := buildLevelFields(lvl, i, opts, nTiles, bo)

		ifdRelStart := int64(dirs.Len())
		nextOffPos, tileOffPos := writeIFD(&dirs, bo, fields, opts.BigTIFF, headerSize)

		built[i] = builtLevel{
			ifdRelStart:    ifdRelStart,
			nextOffsetPos:  nextOffPos,
			tileOffsetsPos: tileOffPos,
			tilesAcross:    tilesAcross,
			tilesDown:      tilesDown,
		}
	}

	dirsBytes := dirs.Bytes()

	// Link next-IFD offsets: each IFD's "next" pointer gets the absolute
	// file offset of the following IFD; the last IFD's stays zero.
	for i := 0; i < len(built)-1; i++ {
		nextAbs := uint64(headerSize + built[i+1].ifdRelStart)
		putOffset(dirsBytes[built[i].nextOffsetPos:], nextAbs, opts.BigTIFF)
	}

	// Tile data begins immediately after the directories region; assign
	// absolute offsets to every tile in level order and patch each level's
	// TileOffsets external array in place.
	tileDataStart := headerSize + int64(len(dirsBytes))
	cursor := tileDataStart
	for i := range levels {
		n := len(levels[i].tileData)
		offsets := make([]uint64, n)
		for j, d := range levels[i].tileData {
			offsets[j] = uint64(cursor)
			cursor += int64(len(d))
		}
		pos := built[i].tileOffsetsPos
		for j, v := range offsets {
			putOffsetSize(dirsBytes[pos+int64(j*offsetEntrySize(opts.BigTIFF)):], v, opts.BigTIFF)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cog: creating %s: %w", path, err)
	}
	defer f.Close()

	if err := writeHeader(f, bo, opts.BigTIFF, uint64(headerSize)); err != nil {
		return err
	}
	if _, err := f.Write(dirsBytes); err != nil {
		return fmt.Errorf("cog: writing directories: %w", err)
	}
	for _, lvl := range levels {
		for _, d := range lvl.tileData {
			if _, err := f.Write(d); err != nil {
				return fmt.Errorf("cog: writing tile data: %w", err)
			}
		}
	}
	return nil
}

type rgbaLevel struct {
	w, h     int
	pix      []byte
	tileData [][]byte
}

func compressLevelTiles(lvl rgbaLevel, tileSize int) [][]byte {
	tilesAcross := (lvl.w + tileSize - 1) / tileSize
	tilesDown := (lvl.h + tileSize - 1) / tileSize
	out := make([][]byte, tilesAcross*tilesDown)
	for ty := 0; ty < tilesDown; ty++ {
		for tx := 0; tx < tilesAcross; tx++ {
			raw := extractTileRGBA(lvl, tx*tileSize, ty*tileSize, tileSize)
			applyHorizontalPredictorRGBA(raw, tileSize)
			out[ty*tilesAcross+tx] = compressTIFFLZW(raw)
		}
	}
	return out
}

// extractTileRGBA copies a tileSize x tileSize RGBA window starting at
// (ox,oy) from lvl, zero-filling past the raster edge.
func extractTileRGBA(lvl rgbaLevel, ox, oy, tileSize int) []byte {
	out := make([]byte, tileSize*tileSize*4)
	for y := 0; y < tileSize; y++ {
		sy := oy + y
		if sy >= lvl.h {
			continue
		}
		for x := 0; x < tileSize; x++ {
			sx := ox + x
			if sx >= lvl.w {
				continue
			}
			si := (sy*lvl.w + sx) * 4
			di := (y*tileSize + x) * 4
			copy(out[di:di+4], lvl.pix[si:si+4])
		}
	}
	return out
}

// applyHorizontalPredictorRGBA replaces each row's samples with the
// difference from the previous pixel's same-band sample (TIFF Predictor=2),
// matching internal/cog/reader.go's undoHorizontalDifferencing on read-back.
func applyHorizontalPredictorRGBA(data []byte, tileSize int) {
	const spp = 4
	rowBytes := tileSize * spp
	for row := 0; row < tileSize; row++ {
		base := row * rowBytes
		for x := tileSize - 1; x >= 1; x-- {
			for b := 0; b < spp; b++ {
				i := base + x*spp + b
				prev := base + (x-1)*spp + b
				data[i] = data[i] - data[prev]
			}
		}
	}
}

// downsampleAverageRGBA box-filters src (srcW x srcH RGBA) down to dstW x
// dstH using AVERAGE resampling, matching the overview-building invariant.
// Pixels with alpha==0 are excluded from the RGB average (nodata gaps do
// not bleed color into overviews), mirroring the teacher's downsample.go
// quadrant-averaging convention.
func downsampleAverageRGBA(src []byte, srcW, srcH, dstW, dstH int) rgbaLevel {
	out := make([]byte, dstW*dstH*4)
	for dy := 0; dy < dstH; dy++ {
		sy0 := dy * srcH / dstH
		sy1 := (dy + 1) * srcH / dstH
		if sy1 <= sy0 {
			sy1 = sy0 + 1
		}
		for dx := 0; dx < dstW; dx++ {
			sx0 := dx * srcW / dstW
			sx1 := (dx + 1) * srcW / dstW
			if sx1 <= sx0 {
				sx1 = sx0 + 1
			}

			var rs, gs, bs, as, opaqueN, n uint32
			for sy := sy0; sy < sy1 && sy < srcH; sy++ {
				for sx := sx0; sx < sx1 && sx < srcW; sx++ {
					i := (sy*srcW + sx) * 4
					a := uint32(src[i+3])
					as += a
					n++
					if a > 0 {
						rs += uint32(src[i])
						gs += uint32(src[i+1])
						bs += uint32(src[i+2])
						opaqueN++
					}
				}
			}

			di := (dy*dstW + dx) * 4
			if n > 0 {
				out[di+3] = uint8(as / n)
			}
			if opaqueN > 0 {
				out[di] = uint8(rs / opaqueN)
				out[di+1] = uint8(gs / opaqueN)
				out[di+2] = uint8(bs / opaqueN)
			}
		}
	}
	return rgbaLevel{w: dstW, h: dstH, pix: out}
}

func writeHeader(f *os.File, bo binary.ByteOrder, big bool, firstIFDOffset uint64) error {
	var buf bytes.Buffer
	buf.WriteString("II")
	if big {
		binary.Write(&buf, bo, uint16(43))
		binary.Write(&buf, bo, uint16(8))
		binary.Write(&buf, bo, uint16(0))
		binary.Write(&buf, bo, firstIFDOffset)
	} else {
		binary.Write(&buf, bo, uint16(42))
		binary.Write(&buf, bo, uint32(firstIFDOffset))
	}
	_, err := f.Write(buf.Bytes())
	return err
}

// ifdField is a to-be-serialized TIFF directory entry.
type ifdField struct {
	tag      uint16
	dtype    uint16
	count    uint64
	value    []byte
	isOffset bool // true for TileOffsets: writeIFD reports its external position so the caller can patch it
}

func buildLevelFields(lvl rgbaLevel, levelIndex int, opts WriteOptions, nTiles int, bo binary.ByteOrder) []ifdField {
	byteCounts := make([]byte, nTiles*4)
	for i, d := range lvl.tileData {
		bo.PutUint32(byteCounts[i*4:], uint32(len(d)))
	}

	fields := []ifdField{
		{tag: 254, dtype: dtLong, count: 1, value: u32le(bo, boolU32(levelIndex > 0))},
		{tag: tagImageWidth, dtype: dtLong, count: 1, value: u32le(bo, uint32(lvl.w))},
		{tag: tagImageLength, dtype: dtLong, count: 1, value: u32le(bo, uint32(lvl.h))},
		{tag: tagBitsPerSample, dtype: dtShort, count: 4, value: u16sle(bo, []uint16{8, 8, 8, 8})},
		{tag: tagCompression, dtype: dtShort, count: 1, value: u16le(bo, 5)},
		{tag: tagPhotometric, dtype: dtShort, count: 1, value: u16le(bo, 2)},
		{tag: tagSamplesPerPixel, dtype: dtShort, count: 1, value: u16le(bo, 4)},
		{tag: 338, dtype: dtShort, count: 1, value: u16le(bo, 2)},
		{tag: tagPlanarConfig, dtype: dtShort, count: 1, value: u16le(bo, 1)},
		{tag: tagPredictor, dtype: dtShort, count: 1, value: u16le(bo, 2)},
		{tag: tagTileWidth, dtype: dtShort, count: 1, value: u16le(bo, uint16(opts.TileSize))},
		{tag: tagTileLength, dtype: dtShort, count: 1, value: u16le(bo, uint16(opts.TileSize))},
		{tag: tagTileOffsets, dtype: dtLong, count: uint64(nTiles), value: make([]byte, nTiles*4), isOffset: true},
		{tag: tagTileByteCounts, dtype: dtLong, count: uint64(nTiles), value: byteCounts},
	}

	if opts.NoData != "" {
		fields = append(fields, ifdField{tag: tagGDAL_NODATA, dtype: dtASCII, count: uint64(len(opts.NoData) + 1), value: append([]byte(opts.NoData), 0)})
	}

	if levelIndex == 0 {
		fields = append(fields,
			ifdField{tag: tagModelPixelScaleTag, dtype: dtDouble, count: 3, value: f64sle(bo, []float64{opts.PixelSizeX, opts.PixelSizeY, 0})},
			ifdField{tag: tagModelTiepointTag, dtype: dtDouble, count: 6, value: f64sle(bo, []float64{0, 0, 0, opts.OriginX, opts.OriginY, 0})},
		)
		fields = append(fields, geoKeyField(opts.EPSG, bo))
	}

	return sortFields(fields)
}

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func u32le(bo binary.ByteOrder, v uint32) []byte {
	b := make([]byte, 4)
	bo.PutUint32(b, v)
	return b
}
func u16le(bo binary.ByteOrder, v uint16) []byte {
	b := make([]byte, 2)
	bo.PutUint16(b, v)
	return b
}
func u16sle(bo binary.ByteOrder, vs []uint16) []byte {
	b := make([]byte, len(vs)*2)
	for i, v := range vs {
		bo.PutUint16(b[i*2:], v)
	}
	return b
}
func f64sle(bo binary.ByteOrder, vs []float64) []byte {
	b := make([]byte, len(vs)*8)
	for i, v := range vs {
		bo.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return b
}

// geoKeyField builds a minimal GeoKeyDirectoryTag declaring the target EPSG
// as a projected (or geographic, for 4326) CRS — matching the layout
// internal/cog/geotags.go's parser reads back.
func geoKeyField(epsg int, bo binary.ByteOrder) ifdField {
	const (
		keyGTModelType        = 1024
		keyGTRasterType       = 1025
		keyProjectedCS        = 3072
		keyGeographicType     = 2048
		modelTypeGeographic   = 2
		modelTypeProjected    = 1
		rasterTypePixelIsArea = 1
	)

	modelType := uint16(modelTypeProjected)
	csKey := uint16(keyProjectedCS)
	if epsg == 4326 {
		modelType = modelTypeGeographic
		csKey = keyGeographicType
	}

	keys := []uint16{
		1, 1, 0, 3, // KeyDirectoryVersion, KeyRevision, MinorRevision, NumberOfKeys
		keyGTModelType, 0, 1, modelType,
		keyGTRasterType, 0, 1, rasterTypePixelIsArea,
		csKey, 0, 1, uint16(epsg),
	}
	return ifdField{tag: tagGeoKeyDirectoryTag, dtype: dtShort, count: uint64(len(keys)), value: u16sle(bo, keys)}
}

func sortFields(fields []ifdField) []ifdField {
	for i := 1; i < len(fields); i++ {
		for j := i; j > 0 && fields[j-1].tag > fields[j].tag; j-- {
			fields[j-1], fields[j] = fields[j], fields[j-1]
		}
	}
	return fields
}

func offsetEntrySize(big bool) int {
	if big {
		return 8
	}
	return 4
}

func putOffset(dst []byte, v uint64, big bool) {
	if big {
		binary.LittleEndian.PutUint64(dst, v)
	} else {
		binary.LittleEndian.PutUint32(dst, uint32(v))
	}
}

func putOffsetSize(dst []byte, v uint64, big bool) { putOffset(dst, v, big) }

// writeIFD serializes one classic/BigTIFF IFD plus its external value data
// into buf (dirs-relative coordinates). Returns the dirs-relative position
// of the "next IFD" pointer field and, if present, of the TileOffsets
// field's external array — both to be patched once the full layout
// (subsequent IFD placement, tile data placement) is known.
func writeIFD(buf *bytes.Buffer, bo binary.ByteOrder, fields []ifdField, big bool, headerSize int64) (nextOffsetPos, tileOffsetsPos int64) {
	entrySize := 12
	offSize := 4
	if big {
		entrySize = 20
		offSize = 8
	}

	ifdRelStart := int64(buf.Len())

	if big {
		binary.Write(buf, bo, uint64(len(fields)))
	} else {
		binary.Write(buf, bo, uint16(len(fields)))
	}

	countFieldSize := int64(2)
	if big {
		countFieldSize = 8
	}
	dirFixedSize := int64(len(fields))*int64(entrySize) + int64(offSize)
	externalStartRel := ifdRelStart + countFieldSize + dirFixedSize

	var external bytes.Buffer
	entryBuf := make([]byte, entrySize)

	for _, f := range fields {
		bo.PutUint16(entryBuf[0:2], f.tag)
		bo.PutUint16(entryBuf[2:4], f.dtype)
		if big {
			bo.PutUint64(entryBuf[4:12], f.count)
		} else {
			bo.PutUint32(entryBuf[4:8], uint32(f.count))
		}

		valOff := entrySize - offSize
		if len(f.value) <= offSize {
			copy(entryBuf[valOff:], f.value)
			for i := len(f.value); i < offSize; i++ {
				entryBuf[valOff+i] = 0
			}
		} else {
			relPos := externalStartRel + int64(external.Len())
			if f.isOffset {
				tileOffsetsPos = relPos
			}
			absPos := uint64(headerSize + relPos)
			if big {
				bo.PutUint64(entryBuf[valOff:], absPos)
			} else {
				bo.PutUint32(entryBuf[valOff:], uint32(absPos))
			}
			external.Write(f.value)
			if external.Len()%2 == 1 {
				external.WriteByte(0)
			}
		}
		buf.Write(entryBuf)
	}

	nextOffsetPos = int64(buf.Len())
	if big {
		binary.Write(buf, bo, uint64(0))
	} else {
		binary.Write(buf, bo, uint32(0))
	}

	buf.Write(external.Bytes())
	return nextOffsetPos, tileOffsetsPos
}
