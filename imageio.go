package depthmap

import (
	"errors"
	"image"
	_ "image/gif"  // Register GIF decoder.
	_ "image/jpeg" // Register JPEG decoder.
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/maruel/natural"
	"github.com/nfnt/resize"
	"github.com/samber/lo"
	_ "golang.org/x/image/bmp"  // Register BMP decoder.
	_ "golang.org/x/image/tiff" // Register TIFF decoder.
	_ "golang.org/x/image/webp" // Register WebP decoder.
)

// ImageExtensions lists the file extensions picked up by ImagesInPath.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tiff"}

// ImagesInPath lists image files directly inside dir in natural order.
func ImagesInPath(dir string) ([]string, error) {
	return FilesInPath(dir, ImageExtensions...)
}

// FilesInPath lists regular files in dir whose extension matches one of exts,
// case-insensitively, sorted naturally so that frame_2 precedes frame_10.
// With no extensions every file matches.
func FilesInPath(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	wanted := lo.Map(exts, func(e string, _ int) string { return strings.ToLower(e) })

	files := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		if !e.Type().IsRegular() {
			return "", false
		}
		if len(wanted) > 0 && !lo.Contains(wanted, strings.ToLower(filepath.Ext(e.Name()))) {
			return "", false
		}
		return filepath.Join(dir, e.Name()), true
	})
	sort.Slice(files, func(i, j int) bool { return natural.Less(files[i], files[j]) })
	return files, nil
}

// ReplaceExt swaps the extension of path.
func ReplaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// ReadImage decodes an image file, applying EXIF orientation when present.
func ReadImage(path string) (image.Image, error) {
	return imaging.Open(filepath.Clean(path), imaging.AutoOrientation(true))
}

// ImageTensor converts img into a H×W×3 float32 RGB tensor scaled to [0, 1].
func ImageTensor(img image.Image) *Tensor {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := make([]float32, w*h*3)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			o := (y*w + x) * 3
			out[o] = float32(row[x*4]) / 255
			out[o+1] = float32(row[x*4+1]) / 255
			out[o+2] = float32(row[x*4+2]) / 255
		}
	}
	return NewTensor(out, h, w, 3)
}

// NetworkOptions controls NetworkInput.
type NetworkOptions struct {
	// Size is the target length of the longer side before rounding.
	Size int
	// Multiple is the granularity both sides are rounded up to.
	Multiple int
	Filter   resize.InterpolationFunction
	// Mean and Std normalize each channel as (v - mean) / std when Std is non-zero.
	Mean [3]float32
	Std  [3]float32
}

// NetworkSize returns the input size for a w×h image: the longer side is scaled to size
// and both sides are rounded up to a multiple of multiple.
func NetworkSize(w, h, size, multiple int) (int, int) {
	scale := float64(h) / float64(size)
	if w > h {
		scale = float64(w) / float64(size)
	}
	nw := int(math.Ceil(float64(w)/scale/float64(multiple))) * multiple
	nh := int(math.Ceil(float64(h)/scale/float64(multiple))) * multiple
	return nw, nh
}

// NetworkInput resizes img for a dense prediction network and returns a 1×3×H×W
// float32 tensor in CHW layout.
func NetworkInput(img image.Image, opts ...func(o *NetworkOptions)) (*Tensor, error) {
	opt := NetworkOptions{
		Size:     defaultNetworkSize,
		Multiple: defaultNetworkMultiple,
		Filter:   resize.Bilinear,
	}
	for _, applyOpt := range opts {
		applyOpt(&opt)
	}
	if opt.Size <= 0 || opt.Multiple <= 0 {
		return nil, errors.New("network size and multiple must be positive")
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, errors.New("empty image")
	}

	nw, nh := NetworkSize(b.Dx(), b.Dy(), opt.Size, opt.Multiple)
	resized := imaging.Clone(resize.Resize(uint(nw), uint(nh), img, opt.Filter))

	plane := nw * nh
	out := make([]float32, 3*plane)
	for y := 0; y < nh; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < nw; x++ {
			for c := 0; c < 3; c++ {
				v := float32(row[x*4+c]) / 255
				if opt.Std[c] != 0 {
					v = (v - opt.Mean[c]) / opt.Std[c]
				}
				out[c*plane+y*nw+x] = v
			}
		}
	}
	return NewTensor(out, 1, 3, nh, nw), nil
}
