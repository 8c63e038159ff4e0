package depthmap

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResizeDepthIdentity(t *testing.T) {
	pix := make([]float32, 6*4)
	for i := range pix {
		pix[i] = float32(i*i) * 0.25
	}
	for _, interp := range []Interpolation{InterpolationNearest, InterpolationBilinear, InterpolationBicubic} {
		out, err := ResizeDepth(NewTensor(pix, 4, 6), 6, 4, func(o *ResizeOptions) { o.Interpolation = interp })
		if err != nil {
			t.Fatalf("resize %d: %v", interp, err)
		}
		if diff := cmp.Diff(pix, out.Data); diff != "" {
			t.Fatalf("interp %d changed data (-want +got):\n%s", interp, diff)
		}
	}
}

func TestResizeDepthConstant(t *testing.T) {
	pix := make([]float32, 7*5)
	for i := range pix {
		pix[i] = 3.5
	}
	for _, interp := range []Interpolation{
		InterpolationBilinear, InterpolationBicubic, InterpolationCatmullRom,
		InterpolationMitchellNetravali, InterpolationLanczos3,
	} {
		for _, antialias := range []bool{false, true} {
			out, err := ResizeDepthWith(NewTensor(pix, 5, 7), 3, 11, ResizeOptions{Interpolation: interp, Antialias: antialias})
			if err != nil {
				t.Fatalf("resize: %v", err)
			}
			if diff := cmp.Diff([]int{11, 3}, out.Shape); diff != "" {
				t.Fatalf("shape mismatch (-want +got):\n%s", diff)
			}
			for i, v := range out.Data.([]float32) {
				if math.Abs(float64(v)-3.5) > 1e-4 {
					t.Fatalf("interp %d antialias %v: sample %d is %v", interp, antialias, i, v)
				}
			}
		}
	}
}

func TestResizeDepthBicubicOvershoot(t *testing.T) {
	// A step edge upsampled with a = -0.75 rings past the input range.
	pix := []float32{0, 0, 1, 1}
	out, err := ResizeDepth(NewTensor(pix, 1, 4), 8, 1)
	if err != nil {
		t.Fatalf("resize: %v", err)
	}
	var lo, hi float32
	for _, v := range out.Data.([]float32) {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if lo >= 0 || hi <= 1 {
		t.Fatalf("expected overshoot, got range %v..%v", lo, hi)
	}
}

func TestResizeDepthBatchInput(t *testing.T) {
	first := []float32{1, 2, 3, 4}
	second := []float32{9, 9, 9, 9}
	depth := NewTensor(append(append([]float32(nil), first...), second...), 2, 1, 2, 2)

	out, err := ResizeDepth(depth, 2, 2)
	if err != nil {
		t.Fatalf("resize: %v", err)
	}
	if diff := cmp.Diff(first, out.Data); diff != "" {
		t.Fatalf("expected first batch element (-want +got):\n%s", diff)
	}

	out, err = ResizeDepth(NewTensor(first, 1, 2, 2), 4, 4)
	if err != nil {
		t.Fatalf("resize 3-D: %v", err)
	}
	if diff := cmp.Diff([]int{4, 4}, out.Shape); diff != "" {
		t.Fatalf("shape mismatch (-want +got):\n%s", diff)
	}
}

func TestResizeDepthDTypes(t *testing.T) {
	depth := &Tensor{Shape: []int{2, 2}, Data: []float64{1, 2, 3, 4}}
	out, err := ResizeDepth(depth, 2, 2)
	if err != nil {
		t.Fatalf("resize: %v", err)
	}
	if diff := cmp.Diff([]float32{1, 2, 3, 4}, out.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestResizeDepthInvalid(t *testing.T) {
	depth := NewTensor([]float32{1, 2, 3, 4}, 2, 2)
	if _, err := ResizeDepth(depth, 0, 2); err == nil {
		t.Fatal("expected error for zero width")
	}
	if _, err := ResizeDepth(depth, 2, -1); err == nil {
		t.Fatal("expected error for negative height")
	}
	if _, err := ResizeDepth(NewTensor(make([]float32, 12), 1, 3, 2, 2), 2, 2); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape for multi-channel input, got %v", err)
	}
	if _, err := ResizeDepth(NewTensor([]float32{1, 2, 3}, 2, 2), 2, 2); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape for short data, got %v", err)
	}
}

func TestParseInterpolation(t *testing.T) {
	for in, want := range map[string]Interpolation{
		"":         InterpolationBicubic,
		"nearest":  InterpolationNearest,
		"Bilinear": InterpolationBilinear,
		"lanczos3": InterpolationLanczos3,
	} {
		got, err := ParseInterpolation(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if got != want {
			t.Fatalf("%q: got %d want %d", in, got, want)
		}
	}
	if _, err := ParseInterpolation("area"); err == nil {
		t.Fatal("expected error for unknown name")
	}
}
