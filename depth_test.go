package depthmap

import (
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func rampTensor(n int, step float32) *Tensor {
	pix := make([]float32, n)
	for i := range pix {
		pix[i] = float32(i) * step
	}
	return NewTensor(pix, 1, n)
}

func TestEncodeDepthConstant(t *testing.T) {
	depth := NewTensor([]float32{7, 7, 7, 7, 7, 7}, 2, 3)
	for _, bits := range []int{1, 2} {
		img, b, err := EncodeDepth(depth, func(o *DepthOptions) { o.Bits = bits })
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if b.Min != 7 || b.Max != 7 {
			t.Fatalf("bounds: got %+v want 7..7", b)
		}
		if img.Bounds().Dx() != 3 || img.Bounds().Dy() != 2 {
			t.Fatalf("unexpected size %v", img.Bounds())
		}
		for y := 0; y < 2; y++ {
			for x := 0; x < 3; x++ {
				if v := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y; v != 0 {
					t.Fatalf("bits=%d: pixel %d,%d is %d, want 0", bits, x, y, v)
				}
			}
		}
	}
}

func TestEncodeDepthLinear8(t *testing.T) {
	depth := rampTensor(11, 1)
	img, b, err := EncodeDepth(depth)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if b.Min != 0 || b.Max != 10 {
		t.Fatalf("bounds: got %+v want 0..10", b)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		t.Fatalf("expected *image.Gray, got %T", img)
	}
	for i := 0; i <= 10; i++ {
		want := uint8(math.Trunc(255 * (float64(i) / 10)))
		if got := gray.GrayAt(i, 0).Y; got != want {
			t.Fatalf("pixel %d: got %d want %d", i, got, want)
		}
	}
}

func TestEncodeDepthLinear16(t *testing.T) {
	depth := rampTensor(5, 0.5)
	img, _, err := EncodeDepth(depth, func(o *DepthOptions) { o.Bits = 2 })
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	gray, ok := img.(*image.Gray16)
	if !ok {
		t.Fatalf("expected *image.Gray16, got %T", img)
	}
	want := []uint16{0, 16383, 32767, 49151, 65535}
	for i, w := range want {
		if got := gray.Gray16At(i, 0).Y; got != w {
			t.Fatalf("pixel %d: got %d want %d", i, got, w)
		}
	}
}

func TestEncodeDepthFixedBounds(t *testing.T) {
	depth := NewTensor([]float32{-5, 0, 5, 15}, 1, 4)
	img, b, err := EncodeDepth(depth, WithFixedBounds(Bounds{Min: 0, Max: 10}))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if b != (Bounds{Min: 0, Max: 10}) {
		t.Fatalf("bounds: got %+v", b)
	}
	gray := img.(*image.Gray)
	if diff := cmp.Diff([]uint8{0, 0, 127, 255}, gray.Pix); diff != "" {
		t.Fatalf("pixels mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeDepthPartialFixedBounds(t *testing.T) {
	depth := NewTensor([]float32{2, 4, 6}, 1, 3)
	_, b, err := EncodeDepth(depth, func(o *DepthOptions) { o.FixedMin = 0 })
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if b != (Bounds{Min: 0, Max: 6}) {
		t.Fatalf("bounds: got %+v want 0..6", b)
	}
}

func TestEncodeDepthNaN(t *testing.T) {
	depth := NewTensor([]float32{float32(math.NaN()), 10}, 1, 2)
	img, _, err := EncodeDepth(depth, WithFixedBounds(Bounds{Min: 0, Max: 10}))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if diff := cmp.Diff([]uint8{0, 255}, img.(*image.Gray).Pix); diff != "" {
		t.Fatalf("pixels mismatch (-want +got):\n%s", diff)
	}

	img, b, err := EncodeDepth(depth)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !math.IsNaN(b.Min) {
		t.Fatalf("expected NaN bounds, got %+v", b)
	}
	if diff := cmp.Diff([]uint8{0, 0}, img.(*image.Gray).Pix); diff != "" {
		t.Fatalf("pixels mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeDepthRGB(t *testing.T) {
	depth := NewTensor([]float32{0, 1, 2.5, 3, 7}, 1, 5)
	img, b, err := EncodeDepth(depth, func(o *DepthOptions) { o.Encoding = EncodingRGB })
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, ok := img.(*image.NRGBA); !ok {
		t.Fatalf("expected *image.NRGBA, got %T", img)
	}

	packed := DecodeRGBDepth(img).Data.([]uint16)
	vals, _ := depth.AsFloat64()
	for i, v := range vals {
		want := uint16(math.RoundToEven(65535 * ((v - b.Min) / (b.Max - b.Min))))
		if packed[i] != want {
			t.Fatalf("pixel %d: got %d want %d", i, packed[i], want)
		}
		if r := img.(*image.NRGBA).NRGBAAt(i, 0).R; r != 0 {
			t.Fatalf("pixel %d: red channel must be zero, got %d", i, r)
		}
	}

	restored, err := RestoreDepth(img, b, EncodingRGB)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	got := restored.Data.([]float32)
	tol := (b.Max - b.Min) / 65535
	for i, v := range vals {
		if math.Abs(float64(got[i])-v) > tol {
			t.Fatalf("restored %d: got %v want %v", i, got[i], v)
		}
	}
}

func TestEncodeDepthHue(t *testing.T) {
	depth := NewTensor([]float32{10, 5, 2.5, 0}, 1, 4)
	img, _, err := EncodeDepth(depth, func(o *DepthOptions) { o.Encoding = EncodingHue })
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	rgba := img.(*image.NRGBA)
	want := []color.NRGBA{
		{R: 255, G: 0, B: 0, A: 255},
		{R: 0, G: 255, B: 255, A: 255},
		{R: 128, G: 0, B: 255, A: 255},
		{R: 255, G: 0, B: 0, A: 255},
	}
	for i, w := range want {
		if got := rgba.NRGBAAt(i, 0); got != w {
			t.Fatalf("pixel %d: got %v want %v", i, got, w)
		}
	}
}

func TestEncodeDepthAbsolute(t *testing.T) {
	depth := NewTensor([]float32{-1, 0.7, 3.9, 300}, 1, 4)
	img, b, err := EncodeDepth(depth, func(o *DepthOptions) { o.Encoding = EncodingAbsolute })
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !math.IsInf(b.Min, 1) || !math.IsInf(b.Max, 1) {
		t.Fatalf("expected unbounded result, got %+v", b)
	}
	if diff := cmp.Diff([]uint8{0, 0, 3, 255}, img.(*image.Gray).Pix); diff != "" {
		t.Fatalf("pixels mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeDepthRejects(t *testing.T) {
	if _, _, err := EncodeDepth(rampTensor(3, 1), func(o *DepthOptions) { o.Bits = 3 }); err == nil {
		t.Fatal("expected error for 3 bytes per sample")
	}
	if _, _, err := EncodeDepth(NewTensor(make([]float32, 8), 2, 2, 2)); err == nil {
		t.Fatal("expected error for a multi-channel map")
	}
	if _, _, err := EncodeDepth(NewTensor(make([]float32, 4), 1, 1, 2, 2)); err != nil {
		t.Fatalf("batched single map: %v", err)
	}
}

func TestEncodingFromFlags(t *testing.T) {
	for _, tc := range []struct {
		absolute, hue, rgb bool
		want               Encoding
	}{
		{false, false, false, EncodingLinear},
		{false, false, true, EncodingRGB},
		{false, true, true, EncodingHue},
		{true, true, true, EncodingAbsolute},
		{true, false, false, EncodingAbsolute},
	} {
		if got := EncodingFromFlags(tc.absolute, tc.hue, tc.rgb); got != tc.want {
			t.Fatalf("%v/%v/%v: got %s want %s", tc.absolute, tc.hue, tc.rgb, got, tc.want)
		}
	}
}

func TestWriteDepth(t *testing.T) {
	base := filepath.Join(t.TempDir(), "frame")
	depth := rampTensor(4, 2)

	b, err := WriteDepth(base, depth, func(o *DepthOptions) {
		o.Bits = 2
		o.SavePFM = true
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	img, err := ReadImage(base + ".png")
	if err != nil {
		t.Fatalf("read png: %v", err)
	}
	if _, ok := img.(*image.Gray16); !ok {
		t.Fatalf("expected 16-bit gray png, got %T", img)
	}

	restored, err := RestoreDepth(img, b, EncodingLinear)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	want := depth.Data.([]float32)
	got := restored.Data.([]float32)
	tol := float64(b.Max-b.Min) / 65535
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > tol {
			t.Fatalf("restored %d: got %v want %v", i, got[i], want[i])
		}
	}

	raw, _, err := ReadPFM(base + ".pfm")
	if err != nil {
		t.Fatalf("read pfm: %v", err)
	}
	if diff := cmp.Diff(want, raw.Data); diff != "" {
		t.Fatalf("pfm mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteDepthRejectsBitsBeforeWriting(t *testing.T) {
	base := filepath.Join(t.TempDir(), "frame")
	_, err := WriteDepth(base, rampTensor(3, 1), func(o *DepthOptions) {
		o.Bits = 3
		o.SavePFM = true
	})
	if err == nil {
		t.Fatal("expected error for 3 bytes per sample")
	}
	for _, ext := range []string{".pfm", ".png"} {
		if _, statErr := os.Stat(base + ext); !os.IsNotExist(statErr) {
			t.Fatalf("%s must not be written, stat: %v", ext, statErr)
		}
	}
}

func TestRestoreDepthUnbounded(t *testing.T) {
	if _, err := RestoreDepth(image.NewGray(image.Rect(0, 0, 1, 1)), Unbounded, EncodingLinear); err == nil {
		t.Fatal("expected error for unbounded range")
	}
	if _, err := RestoreDepth(image.NewGray(image.Rect(0, 0, 1, 1)), Bounds{Max: 1}, EncodingHue); err == nil {
		t.Fatal("expected error for hue encoding")
	}
}
