package depthmap

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// ADE20KPalette colors the 150 ADE20K classes; index 0 is unlabeled.
var ADE20KPalette = newPalette(ade20kColors[:])

var ade20kColors = [...][3]uint8{
	{0, 0, 0}, {120, 120, 120}, {180, 120, 120}, {6, 230, 230},
	{80, 50, 50}, {4, 200, 3}, {120, 120, 80}, {140, 140, 140},
	{204, 5, 255}, {230, 230, 230}, {4, 250, 7}, {224, 5, 255},
	{235, 255, 7}, {150, 5, 61}, {120, 120, 70}, {8, 255, 51},
	{255, 6, 82}, {143, 255, 140}, {204, 255, 4}, {255, 51, 7},
	{204, 70, 3}, {0, 102, 200}, {61, 230, 250}, {255, 6, 51},
	{11, 102, 255}, {255, 7, 71}, {255, 9, 224}, {9, 7, 230},
	{220, 220, 220}, {255, 9, 92}, {112, 9, 255}, {8, 255, 214},
	{7, 255, 224}, {255, 184, 6}, {10, 255, 71}, {255, 41, 10},
	{7, 255, 255}, {224, 255, 8}, {102, 8, 255}, {255, 61, 6},
	{255, 194, 7}, {255, 122, 8}, {0, 255, 20}, {255, 8, 41},
	{255, 5, 153}, {6, 51, 255}, {235, 12, 255}, {160, 150, 20},
	{0, 163, 255}, {140, 140, 140}, {250, 10, 15}, {20, 255, 0},
	{31, 255, 0}, {255, 31, 0}, {255, 224, 0}, {153, 255, 0},
	{0, 0, 255}, {255, 71, 0}, {0, 235, 255}, {0, 173, 255},
	{31, 0, 255}, {11, 200, 200}, {255, 82, 0}, {0, 255, 245},
	{0, 61, 255}, {0, 255, 112}, {0, 255, 133}, {255, 0, 0},
	{255, 163, 0}, {255, 102, 0}, {194, 255, 0}, {0, 143, 255},
	{51, 255, 0}, {0, 82, 255}, {0, 255, 41}, {0, 255, 173},
	{10, 0, 255}, {173, 255, 0}, {0, 255, 153}, {255, 92, 0},
	{255, 0, 255}, {255, 0, 245}, {255, 0, 102}, {255, 173, 0},
	{255, 0, 20}, {255, 184, 184}, {0, 31, 255}, {0, 255, 61},
	{0, 71, 255}, {255, 0, 204}, {0, 255, 194}, {0, 255, 82},
	{0, 10, 255}, {0, 112, 255}, {51, 0, 255}, {0, 194, 255},
	{0, 122, 255}, {0, 255, 163}, {255, 153, 0}, {0, 255, 10},
	{255, 112, 0}, {143, 255, 0}, {82, 0, 255}, {163, 255, 0},
	{255, 235, 0}, {8, 184, 170}, {133, 0, 255}, {0, 255, 92},
	{184, 0, 255}, {255, 0, 31}, {0, 184, 255}, {0, 214, 255},
	{255, 0, 112}, {92, 255, 0}, {0, 224, 255}, {112, 224, 255},
	{70, 184, 160}, {163, 0, 255}, {153, 0, 255}, {71, 255, 0},
	{255, 0, 163}, {255, 204, 0}, {255, 0, 143}, {0, 255, 235},
	{133, 255, 0}, {255, 0, 235}, {245, 0, 255}, {255, 0, 122},
	{255, 245, 0}, {10, 190, 212}, {214, 255, 0}, {0, 204, 255},
	{20, 0, 255}, {255, 255, 0}, {0, 153, 255}, {0, 41, 255},
	{0, 255, 204}, {41, 0, 255}, {41, 255, 0}, {173, 0, 255},
	{0, 245, 255}, {71, 0, 255}, {122, 0, 255}, {0, 255, 184},
	{0, 92, 255}, {184, 255, 0}, {0, 133, 255}, {255, 214, 0},
	{25, 194, 194}, {102, 255, 0}, {92, 0, 255},
}

func newPalette(colors [][3]uint8) color.Palette {
	p := make(color.Palette, len(colors))
	for i, c := range colors {
		p[i] = color.NRGBA{R: c[0], G: c[1], B: c[2], A: 0xff}
	}
	return p
}

// ReadLabels loads a per-pixel class map from a grayscale PFM, an 8/16-bit gray PNG
// or a paletted image (palette indices are the labels).
func ReadLabels(path string) (*Tensor, error) {
	if strings.EqualFold(filepath.Ext(path), ".pfm") {
		t, _, err := ReadPFM(path)
		if err != nil {
			return nil, err
		}
		h, w, err := t.plane()
		if err != nil {
			return nil, err
		}
		vals, _ := t.Float32()
		out := make([]int32, len(vals))
		for i, v := range vals {
			out[i] = int32(math.Round(float64(v)))
		}
		return &Tensor{Shape: []int{h, w}, Data: out}, nil
	}

	img, err := imaging.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	return LabelsFromImage(img), nil
}

// LabelsFromImage interprets img as a class map.
func LabelsFromImage(img image.Image) *Tensor {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]int32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var v int32
			switch src := img.(type) {
			case *image.Paletted:
				v = int32(src.ColorIndexAt(b.Min.X+x, b.Min.Y+y))
			case *image.Gray16:
				v = int32(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			default:
				v = int32(color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y)
			}
			out[y*w+x] = v
		}
	}
	return &Tensor{Shape: []int{h, w}, Data: out}
}

// ResizeLabels rescales a class map with nearest-neighbor sampling.
func ResizeLabels(labels *Tensor, width, height int) (*Tensor, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("invalid target dimensions")
	}
	vals, h, w, err := labelPlane(labels)
	if err != nil {
		return nil, err
	}
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: empty label map", ErrShape)
	}
	out := make([]int32, width*height)
	for y := 0; y < height; y++ {
		sy := y * h / height
		for x := 0; x < width; x++ {
			out[y*width+x] = vals[sy*w+x*w/width]
		}
	}
	return &Tensor{Shape: []int{height, width}, Data: out}, nil
}

func labelPlane(labels *Tensor) ([]int32, int, int, error) {
	h, w, err := labels.plane()
	if err != nil {
		return nil, 0, 0, err
	}
	if v, ok := labels.Data.([]int32); ok {
		return v, h, w, nil
	}
	f, err := labels.AsFloat64()
	if err != nil {
		return nil, 0, 0, err
	}
	out := make([]int32, len(f))
	for i, v := range f {
		out[i] = int32(math.Round(v))
	}
	return out, h, w, nil
}

// labelsFor returns labels matching the size of b, resampling when needed.
func labelsFor(b image.Rectangle, labels *Tensor) ([]int32, error) {
	vals, h, w, err := labelPlane(labels)
	if err != nil {
		return nil, err
	}
	if w == b.Dx() && h == b.Dy() {
		return vals, nil
	}
	resized, err := ResizeLabels(labels, b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	return resized.Data.([]int32), nil
}

// ColorizeLabels renders a class map with the ADE20K palette.
// Labels outside the palette are black.
func ColorizeLabels(labels *Tensor) (*image.NRGBA, error) {
	vals, h, w, err := labelPlane(labels)
	if err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, v := range vals {
		c := ADE20KPalette[0]
		if v >= 0 && int(v) < len(ADE20KPalette) {
			c = ADE20KPalette[v]
		}
		img.Set(i%w, i/w, c)
	}
	return img, nil
}

// BlendSegmentation overlays the colorized labels on img:
// out = img*(1-alpha) + labels*alpha.
func BlendSegmentation(img image.Image, labels *Tensor, alpha float64) (*image.NRGBA, error) {
	b := img.Bounds()
	vals, err := labelsFor(b, labels)
	if err != nil {
		return nil, err
	}
	seg, err := ColorizeLabels(&Tensor{Shape: []int{b.Dy(), b.Dx()}, Data: vals})
	if err != nil {
		return nil, err
	}
	return imaging.Overlay(imaging.Clone(img), seg, image.Pt(0, 0), alpha), nil
}

// WriteSegmentation writes the blended segmentation overlay to path + ".png".
func WriteSegmentation(path string, img image.Image, labels *Tensor, alpha float64) error {
	out, err := BlendSegmentation(img, labels, alpha)
	if err != nil {
		return err
	}
	return SavePNG(path+".png", out)
}

// MaskOptions controls ApplyMask.
type MaskOptions struct {
	// Class is the label to keep.
	Class int
	// Background fills pixels outside the mask.
	Background color.NRGBA
	// Blur grows the mask with a Blur×Blur box filter when positive.
	Blur int
	// Threshold renders a black and white mask instead of masked colors.
	Threshold bool
}

// ApplyMask keeps the pixels of img labeled opt.Class and replaces the rest with
// opt.Background.
func ApplyMask(img image.Image, labels *Tensor, opt MaskOptions) (image.Image, error) {
	b := img.Bounds()
	vals, err := labelsFor(b, labels)
	if err != nil {
		return nil, err
	}
	w, h := b.Dx(), b.Dy()

	mask := make([]uint8, w*h)
	for i, v := range vals {
		if int(v) == opt.Class {
			mask[i] = 0xff
		}
	}
	if opt.Blur > 0 {
		mask = boxBlur(mask, w, h, opt.Blur)
		for i, v := range mask {
			if v > 1 {
				mask[i] = 0xff
			} else {
				mask[i] = 0
			}
		}
	}

	src := imaging.Clone(img)
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := opt.Background
			if mask[y*w+x] != 0 {
				c = src.NRGBAAt(x, y)
				c.A = 0xff
			}
			out.SetNRGBA(x, y, c)
		}
	}
	if !opt.Threshold {
		return out, nil
	}

	bw := image.NewGray(out.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if color.GrayModel.Convert(out.NRGBAAt(x, y)).(color.Gray).Y > 0 {
				bw.SetGray(x, y, color.Gray{Y: 0xff})
			}
		}
	}
	return bw, nil
}

// boxBlur is a normalized k×k mean filter anchored at k/2 with reflect-101 borders.
func boxBlur(src []uint8, w, h, k int) []uint8 {
	lo := -(k / 2)
	hi := lo + k

	rows := make([]int, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := 0
			for d := lo; d < hi; d++ {
				s += int(src[y*w+reflect101(x+d, w)])
			}
			rows[y*w+x] = s
		}
	}

	out := make([]uint8, w*h)
	area := float64(k * k)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := 0
			for d := lo; d < hi; d++ {
				s += rows[reflect101(y+d, h)*w+x]
			}
			out[y*w+x] = uint8(math.RoundToEven(float64(s) / area))
		}
	}
	return out
}

// reflect101 maps i into [0, n) mirroring around the edge samples: gfedcb|abcdefgh|gfedcba.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}
