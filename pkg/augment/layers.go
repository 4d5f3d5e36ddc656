package augment

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

// Layer is one random image transformation
type Layer interface {
	Name() string
	Apply(img image.Image, rng Rand) image.Image
}

// Flip modes
const (
	FlipHorizontal            = "horizontal"
	FlipVertical              = "vertical"
	FlipHorizontalAndVertical = "horizontal_and_vertical"
)

// RandomFlip mirrors the image with probability 0.5 along each enabled axis
type RandomFlip struct {
	Mode string
}

func newRandomFlip(p LayerParams) (Layer, error) {
	if err := p.checkKeys("random_flip", "mode"); err != nil {
		return nil, err
	}
	mode, err := p.str("mode", FlipHorizontalAndVertical)
	if err != nil {
		return nil, fmt.Errorf("random_flip: %w", err)
	}
	switch mode {
	case FlipHorizontal, FlipVertical, FlipHorizontalAndVertical:
	default:
		return nil, fmt.Errorf("random_flip: unsupported mode %q", mode)
	}
	return &RandomFlip{Mode: mode}, nil
}

func (l *RandomFlip) Name() string { return "random_flip" }

func (l *RandomFlip) Apply(img image.Image, rng Rand) image.Image {
	if l.Mode != FlipVertical && rng.Float64() < 0.5 {
		img = imaging.FlipH(img)
	}
	if l.Mode != FlipHorizontal && rng.Float64() < 0.5 {
		img = imaging.FlipV(img)
	}
	return img
}

// Fill modes for the area a rotation or zoom uncovers
const (
	FillConstant = "constant"
	FillReflect  = "reflect"
)

func fillMode(layer string, p LayerParams) (string, error) {
	mode, err := p.str("fill_mode", FillReflect)
	if err != nil {
		return "", fmt.Errorf("%s: %w", layer, err)
	}
	switch mode {
	case FillConstant, FillReflect:
		return mode, nil
	}
	return "", fmt.Errorf("%s: unsupported fill_mode %q", layer, mode)
}

// mirror returns img surrounded on every side by its own reflection, three
// times its size along each axis
func mirror(img image.Image) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	fh := imaging.FlipH(img)
	fv := imaging.FlipV(img)
	fhv := imaging.FlipV(fh)

	tiles := [3][3]image.Image{
		{fhv, fv, fhv},
		{fh, img, fh},
		{fhv, fv, fhv},
	}
	dst := imaging.New(3*w, 3*h, color.Black)
	for row, line := range tiles {
		for col, tile := range line {
			dst = imaging.Paste(dst, tile, image.Pt(col*w, row*h))
		}
	}
	return dst
}

// reflectPad mirrors img until it is at least width x height
func reflectPad(img image.Image, width, height int) image.Image {
	for img.Bounds().Dx() < width || img.Bounds().Dy() < height {
		img = mirror(img)
	}
	return img
}

// RandomRotation rotates by an angle drawn from Factor, expressed as a
// fraction of a full turn. The output keeps the input size. The uncovered
// corners are filled black with FillConstant, or with the mirrored image
// with FillReflect. The zero Fill is FillConstant.
type RandomRotation struct {
	Factor Range
	Fill   string
}

func newRandomRotation(p LayerParams) (Layer, error) {
	if err := p.checkKeys("random_rotation", "factor", "fill_mode"); err != nil {
		return nil, err
	}
	factor, err := p.symmetricRange("factor")
	if err != nil {
		return nil, fmt.Errorf("random_rotation: %w", err)
	}
	fill, err := fillMode("random_rotation", p)
	if err != nil {
		return nil, err
	}
	return &RandomRotation{Factor: factor, Fill: fill}, nil
}

func (l *RandomRotation) Name() string { return "random_rotation" }

func (l *RandomRotation) Apply(img image.Image, rng Rand) image.Image {
	degrees := l.Factor.sample(rng) * 360
	if degrees == 0 {
		return img
	}
	b := img.Bounds()
	if l.Fill == FillReflect {
		// the padding must cover the circle the input corners sweep
		diag := int(math.Ceil(math.Hypot(float64(b.Dx()), float64(b.Dy()))))
		padded := reflectPad(img, diag, diag)
		return imaging.CropCenter(imaging.Rotate(padded, degrees, color.Black), b.Dx(), b.Dy())
	}
	rotated := imaging.Rotate(img, degrees, color.Black)
	return imaging.PasteCenter(imaging.New(b.Dx(), b.Dy(), color.Black), rotated)
}

// RandomZoom scales the image by factors drawn per axis. Negative values zoom
// in, positive values zoom out. Without a width factor the height zoom is
// applied to both axes so the aspect ratio is kept. Fill works as for
// RandomRotation.
type RandomZoom struct {
	HeightFactor Range
	WidthFactor  *Range
	Fill         string
}

func newRandomZoom(p LayerParams) (Layer, error) {
	if err := p.checkKeys("random_zoom", "height_factor", "width_factor", "fill_mode"); err != nil {
		return nil, err
	}
	height, err := p.symmetricRange("height_factor")
	if err != nil {
		return nil, fmt.Errorf("random_zoom: %w", err)
	}
	if height.Lower <= -1 {
		return nil, fmt.Errorf("random_zoom: height_factor must be greater than -1")
	}
	fill, err := fillMode("random_zoom", p)
	if err != nil {
		return nil, err
	}
	layer := &RandomZoom{HeightFactor: height, Fill: fill}
	if p.has("width_factor") {
		width, err := p.symmetricRange("width_factor")
		if err != nil {
			return nil, fmt.Errorf("random_zoom: %w", err)
		}
		if width.Lower <= -1 {
			return nil, fmt.Errorf("random_zoom: width_factor must be greater than -1")
		}
		layer.WidthFactor = &width
	}
	return layer, nil
}

func (l *RandomZoom) Name() string { return "random_zoom" }

func (l *RandomZoom) Apply(img image.Image, rng Rand) image.Image {
	zy := l.HeightFactor.sample(rng)
	zx := zy
	if l.WidthFactor != nil {
		zx = l.WidthFactor.sample(rng)
	}
	if zx == 0 && zy == 0 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	// the visible window is (1+z) times the input along each axis
	vw := int(math.Round(float64(w) * (1 + zx)))
	vh := int(math.Round(float64(h) * (1 + zy)))
	if vw < 1 {
		vw = 1
	}
	if vh < 1 {
		vh = 1
	}

	var canvas image.Image
	if l.Fill == FillReflect {
		canvas = imaging.CropCenter(reflectPad(img, vw, vh), vw, vh)
	} else {
		canvas = imaging.PasteCenter(imaging.New(vw, vh, color.Black), img)
	}
	return resize.Resize(uint(w), uint(h), canvas, resize.Bilinear)
}

// RandomContrast scales contrast around mid grey. A factor of f multiplies
// contrast by a value drawn from [1-f, 1+f], a pair [lower, upper] by one
// drawn from [1-lower, 1+upper].
type RandomContrast struct {
	Factor Range
}

func newRandomContrast(p LayerParams) (Layer, error) {
	if err := p.checkKeys("random_contrast", "factor"); err != nil {
		return nil, err
	}
	factor, err := p.contrastRange("factor")
	if err != nil {
		return nil, fmt.Errorf("random_contrast: %w", err)
	}
	return &RandomContrast{Factor: factor}, nil
}

func (l *RandomContrast) Name() string { return "random_contrast" }

func (l *RandomContrast) Apply(img image.Image, rng Rand) image.Image {
	// AdjustContrast takes a percentage where 0 keeps the image unchanged
	pct := l.Factor.sample(rng) * 100
	if pct == 0 {
		return img
	}
	return imaging.AdjustContrast(img, pct)
}
