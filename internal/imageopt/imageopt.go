// Package imageopt downsamples oversized images before they are published.
package imageopt

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // registers the webp decoder
)

// maxPixels refuses images whose declared size would exhaust memory on decode.
const maxPixels = 100_000_000

// ErrTooManyPixels is returned for images larger than maxPixels.
var ErrTooManyPixels = errors.New("image exceeds pixel limit")

// Optimizer scales images down so neither edge exceeds MaxDimension.
type Optimizer struct {
	MaxDimension int
	Quality      int
}

// New returns an Optimizer. Non-positive values fall back to 2048 and 85.
func New(maxDimension, quality int) *Optimizer {
	if maxDimension <= 0 {
		maxDimension = 2048
	}
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Optimizer{MaxDimension: maxDimension, Quality: quality}
}

// Result is an optimized image.
type Result struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// Optimize returns the downsampled image and true when data exceeded the
// limit. The result is kept even when it encodes larger than the input.
// Images within the limit and animated GIFs are returned as (zero, false, nil).
func (o *Optimizer) Optimize(data []byte) (Result, bool, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Result{}, false, fmt.Errorf("decode image config: %w", err)
	}
	if cfg.Width <= o.MaxDimension && cfg.Height <= o.MaxDimension {
		return Result{}, false, nil
	}
	if cfg.Width*cfg.Height > maxPixels {
		return Result{}, false, ErrTooManyPixels
	}
	if format == "gif" {
		if g, err := gif.DecodeAll(bytes.NewReader(data)); err == nil && len(g.Image) > 1 {
			return Result{}, false, nil
		}
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, false, fmt.Errorf("decode image: %w", err)
	}
	w, h := fit(cfg.Width, cfg.Height, o.MaxDimension)
	dst := scale(src, w, h)

	var buf bytes.Buffer
	contentType := ""
	switch {
	case format == "jpeg" || (format == "webp" && opaque(dst)):
		contentType = "image/jpeg"
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: o.Quality})
	default:
		contentType = "image/png"
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, dst)
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("encode %s: %w", contentType, err)
	}
	return Result{Data: buf.Bytes(), ContentType: contentType, Width: w, Height: h}, true, nil
}

// fit scales the longer edge to limit and keeps the aspect ratio.
func fit(width, height, limit int) (int, int) {
	if width >= height {
		h := int(float64(limit) / float64(width) * float64(height))
		return limit, max(h, 1)
	}
	w := int(float64(limit) / float64(height) * float64(width))
	return max(w, 1), limit
}

// scale keeps paletted images paletted so flat-colour art stays compact.
func scale(src image.Image, w, h int) image.Image {
	rect := image.Rect(0, 0, w, h)
	if p, ok := src.(*image.Paletted); ok {
		dst := image.NewPaletted(rect, p.Palette)
		draw.NearestNeighbor.Scale(dst, rect, src, src.Bounds(), draw.Src, nil)
		return dst
	}
	dst := image.NewRGBA(rect)
	draw.CatmullRom.Scale(dst, rect, src, src.Bounds(), draw.Src, nil)
	return dst
}

func opaque(m image.Image) bool {
	img, ok := m.(*image.RGBA)
	if !ok {
		return false
	}
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0xff {
			return false
		}
	}
	return true
}
