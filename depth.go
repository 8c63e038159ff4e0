package depthmap

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// DepthOptions controls depth map rendering.
type DepthOptions struct {
	// Bits per gray sample, 1 for 8-bit or 2 for 16-bit output.
	// Hue and RGB encodings always produce 8-bit color.
	Bits     int
	Encoding Encoding
	// SavePFM additionally stores the raw depth as float32 PFM next to the PNG.
	SavePFM bool
	// FixedMin and FixedMax override the data range when finite.
	FixedMin float64
	FixedMax float64
}

// DefaultDepthOptions returns 8-bit linear encoding with bounds taken from the data.
func DefaultDepthOptions() DepthOptions {
	return DepthOptions{
		Bits:     1,
		Encoding: EncodingLinear,
		FixedMin: math.Inf(1),
		FixedMax: math.Inf(1),
	}
}

// WithFixedBounds sets FixedMin and FixedMax from b.
func WithFixedBounds(b Bounds) func(o *DepthOptions) {
	return func(o *DepthOptions) {
		o.FixedMin = b.Min
		o.FixedMax = b.Max
	}
}

// WriteDepth renders depth and writes it losslessly to path + ".png".
// With SavePFM the float data is written to path + ".pfm" first.
// It returns the normalization bounds that were applied.
func WriteDepth(path string, depth *Tensor, opts ...func(o *DepthOptions)) (Bounds, error) {
	opt := DefaultDepthOptions()
	for _, applyOpt := range opts {
		applyOpt(&opt)
	}

	if err := opt.validate(); err != nil {
		return Unbounded, err
	}
	if opt.SavePFM {
		h, w, err := depth.plane()
		if err != nil {
			return Unbounded, err
		}
		raw, err := depth.AsFloat32()
		if err != nil {
			return Unbounded, err
		}
		if err := WritePFM(path+".pfm", NewTensor(raw, h, w), 1); err != nil {
			return Unbounded, fmt.Errorf("write pfm: %w", err)
		}
	}

	img, b, err := EncodeDepthWith(depth, opt)
	if err != nil {
		return b, err
	}
	if err := SavePNG(path+".png", img); err != nil {
		return b, fmt.Errorf("write png: %w", err)
	}
	return b, nil
}

// EncodeDepth renders depth into a raster without touching the filesystem.
func EncodeDepth(depth *Tensor, opts ...func(o *DepthOptions)) (image.Image, Bounds, error) {
	opt := DefaultDepthOptions()
	for _, applyOpt := range opts {
		applyOpt(&opt)
	}
	return EncodeDepthWith(depth, opt)
}

// EncodeDepthWith is EncodeDepth with explicit options.
func EncodeDepthWith(depth *Tensor, opt DepthOptions) (image.Image, Bounds, error) {
	if err := opt.validate(); err != nil {
		return nil, Unbounded, err
	}
	h, w, err := depth.plane()
	if err != nil {
		return nil, Unbounded, err
	}
	vals, err := depth.AsFloat64()
	if err != nil {
		return nil, Unbounded, err
	}
	maxVal := float64(maxVal8)
	if opt.Bits == 2 {
		maxVal = maxVal16
	}
	rect := image.Rect(0, 0, w, h)

	if opt.Encoding == EncodingAbsolute {
		return grayRaster(rect, opt.Bits, vals, func(v float64) float64 { return v }, maxVal), Unbounded, nil
	}

	b := Bounds{Min: opt.FixedMin, Max: opt.FixedMax}
	if !isFinite(b.Min) || !isFinite(b.Max) {
		lo, hi := minMax(vals)
		if !isFinite(b.Min) {
			b.Min = lo
		}
		if !isFinite(b.Max) {
			b.Max = hi
		}
	}

	span := b.Max - b.Min
	// Also false for NaN bounds.
	if !(span > epsilon) {
		return zeroRaster(rect, opt.Bits), b, nil
	}

	normalize := func(v float64) float64 {
		n := (v - b.Min) / span
		switch {
		case math.IsNaN(n):
			return 0
		case n < 0:
			return 0
		case n > 1:
			return 1
		}
		return n
	}

	switch opt.Encoding {
	case EncodingHue:
		return hueRaster(rect, vals, normalize), b, nil
	case EncodingRGB:
		return packedRGBRaster(rect, vals, normalize), b, nil
	default:
		return grayRaster(rect, opt.Bits, vals, func(v float64) float64 { return maxVal * normalize(v) }, maxVal), b, nil
	}
}

func (o DepthOptions) validate() error {
	if o.Bits != 1 && o.Bits != 2 {
		return fmt.Errorf("unsupported bits per sample %d, want 1 or 2", o.Bits)
	}
	return nil
}

// epsilon is the float64 machine epsilon.
const epsilon = 2.220446049250313e-16

func minMax(vals []float64) (float64, float64) {
	if len(vals) == 0 {
		return math.NaN(), math.NaN()
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		if math.IsNaN(v) {
			return math.NaN(), math.NaN()
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// castSample truncates toward zero and saturates to [0, maxVal].
func castSample(v, maxVal float64) float64 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= maxVal:
		return maxVal
	}
	return math.Trunc(v)
}

func grayRaster(rect image.Rectangle, bits int, vals []float64, f func(float64) float64, maxVal float64) image.Image {
	w := rect.Dx()
	if bits == 2 {
		img := image.NewGray16(rect)
		for i, v := range vals {
			s := uint16(castSample(f(v), maxVal))
			off := (i/w)*img.Stride + (i%w)*2
			img.Pix[off] = uint8(s >> 8)
			img.Pix[off+1] = uint8(s)
		}
		return img
	}
	img := image.NewGray(rect)
	for i, v := range vals {
		img.Pix[(i/w)*img.Stride+i%w] = uint8(castSample(f(v), maxVal))
	}
	return img
}

func zeroRaster(rect image.Rectangle, bits int) image.Image {
	if bits == 2 {
		return image.NewGray16(rect)
	}
	return image.NewGray(rect)
}

// hueRaster maps far to red and near to the end of the 8-bit OpenCV hue range.
func hueRaster(rect image.Rectangle, vals []float64, normalize func(float64) float64) image.Image {
	var lut [opencvHueMax + 1]color.NRGBA
	for h := range lut {
		// OpenCV hue is in half degrees; 180 wraps to 0.
		c := colorful.Hsv(math.Mod(float64(h)*2, 360), 1, 1)
		r, g, b := c.RGB255()
		lut[h] = color.NRGBA{R: r, G: g, B: b, A: 0xff}
	}

	img := image.NewNRGBA(rect)
	w := rect.Dx()
	for i, v := range vals {
		h := int((1.0 - normalize(v)) * opencvHueMax)
		img.SetNRGBA(i%w, i/w, lut[h])
	}
	return img
}

// packedRGBRaster stores round(65535*n) as R = 0, G = high byte, B = low byte.
func packedRGBRaster(rect image.Rectangle, vals []float64, normalize func(float64) float64) image.Image {
	img := image.NewNRGBA(rect)
	w := rect.Dx()
	for i, v := range vals {
		p := uint16(math.RoundToEven(maxVal16 * normalize(v)))
		img.SetNRGBA(i%w, i/w, color.NRGBA{R: 0, G: uint8(p >> 8), B: uint8(p), A: 0xff})
	}
	return img
}

// DecodeRGBDepth extracts the 16-bit values packed by EncodingRGB as (G << 8) | B.
func DecodeRGBDepth(img image.Image) *Tensor {
	b := img.Bounds()
	return &Tensor{Shape: []int{b.Dy(), b.Dx()}, Data: decodeRGBPacked(img)}
}

func decodeRGBPacked(img image.Image) []uint16 {
	b := img.Bounds()
	out := make([]uint16, b.Dx()*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			_, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			out[y*b.Dx()+x] = uint16(g>>8)<<8 | uint16(bl>>8)
		}
	}
	return out
}

// RestoreDepth approximately inverts a linear or RGB encoded raster using the bounds
// returned when it was written.
func RestoreDepth(img image.Image, bnd Bounds, enc Encoding) (*Tensor, error) {
	if !bnd.IsFinite() {
		return nil, errors.New("restore depth: bounds must be finite")
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float32, w*h)
	span := bnd.Max - bnd.Min

	switch enc {
	case EncodingRGB:
		for i, p := range decodeRGBPacked(img) {
			out[i] = float32(bnd.Min + span*float64(p)/maxVal16)
		}
	case EncodingLinear:
		maxVal := float64(maxVal8)
		if _, ok := img.(*image.Gray16); ok {
			maxVal = maxVal16
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := float64(color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16).Y)
				if maxVal == maxVal8 {
					v /= 257
				}
				out[y*w+x] = float32(bnd.Min + span*v/maxVal)
			}
		}
	default:
		return nil, fmt.Errorf("restore depth: %s encoding is not invertible", enc)
	}
	return NewTensor(out, h, w), nil
}

// SavePNG stores img as an uncompressed PNG.
func SavePNG(path string, img image.Image) error {
	return imaging.Save(img, path, imaging.PNGCompressionLevel(png.NoCompression))
}
