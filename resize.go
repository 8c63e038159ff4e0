package depthmap

import (
	"errors"
	"fmt"
	"strings"
)

// Interpolation selects the built-in interpolation mode.
type Interpolation int

const (
	// InterpolationNearest is nearest-neighbor sampling.
	InterpolationNearest Interpolation = iota
	// InterpolationBilinear is linear sampling.
	InterpolationBilinear
	// InterpolationBicubic is cubic sampling with a = -0.75, as OpenCV INTER_CUBIC.
	InterpolationBicubic
	// InterpolationCatmullRom is cubic sampling with a = -0.5.
	InterpolationCatmullRom
	// InterpolationMitchellNetravali is Mitchell-Netravali sampling.
	InterpolationMitchellNetravali
	// InterpolationLanczos2 is Lanczos sampling with a=2.
	InterpolationLanczos2
	// InterpolationLanczos3 is Lanczos sampling with a=3.
	InterpolationLanczos3
)

// ParseInterpolation parses an interpolation name.
func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(s) {
	case "nearest":
		return InterpolationNearest, nil
	case "bilinear", "linear":
		return InterpolationBilinear, nil
	case "", "bicubic", "cubic":
		return InterpolationBicubic, nil
	case "catmullrom", "catmull-rom":
		return InterpolationCatmullRom, nil
	case "mitchell":
		return InterpolationMitchellNetravali, nil
	case "lanczos2":
		return InterpolationLanczos2, nil
	case "lanczos3":
		return InterpolationLanczos3, nil
	default:
		return InterpolationBicubic, fmt.Errorf("unknown interpolation %q", s)
	}
}

// ResizeOptions controls depth resampling.
type ResizeOptions struct {
	Interpolation Interpolation
	// Antialias widens the kernel when downscaling.
	// It is off by default to reproduce cv::resize output.
	Antialias bool
}

// ResizeDepth resizes a predicted depth map to width×height with bicubic interpolation.
//
// The input is a network output such as 1×1×H×W, 1×H×W or H×W: the first element of the
// leading batch dimension is taken and unit dimensions are squeezed. The result is a
// H×W float32 tensor.
func ResizeDepth(depth *Tensor, width, height int, opts ...func(o *ResizeOptions)) (*Tensor, error) {
	opt := ResizeOptions{Interpolation: InterpolationBicubic}
	for _, applyOpt := range opts {
		applyOpt(&opt)
	}
	return ResizeDepthWith(depth, width, height, opt)
}

// ResizeDepthWith is ResizeDepth with explicit options.
func ResizeDepthWith(depth *Tensor, width, height int, opt ResizeOptions) (*Tensor, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("invalid target dimensions")
	}
	src, srcH, srcW, err := firstPlane(depth)
	if err != nil {
		return nil, err
	}
	if srcW == 0 || srcH == 0 {
		return nil, fmt.Errorf("%w: empty depth map %v", ErrShape, depth.Shape)
	}

	var out []float32
	if opt.Interpolation == InterpolationNearest {
		out = nearestPlaneF32(src, srcW, srcH, width, height)
	} else {
		out = resamplePlaneF32(src, srcW, srcH, width, height, kernelForInterpolation(opt.Interpolation), opt.Antialias)
	}
	return NewTensor(out, height, width), nil
}

// firstPlane selects batch element 0 of tensors with three or more dimensions
// and squeezes the rest into a 2-D float32 plane.
func firstPlane(t *Tensor) ([]float32, int, int, error) {
	if err := t.Validate(); err != nil {
		return nil, 0, 0, err
	}
	data, err := t.AsFloat32()
	if err != nil {
		return nil, 0, 0, err
	}
	shape := t.Shape
	if len(shape) >= 3 && shape[0] > 0 {
		per := len(data) / shape[0]
		data = data[:per]
		shape = shape[1:]
	}
	sq := (&Tensor{Shape: shape, Data: data}).Squeeze().Shape
	switch len(sq) {
	case 2:
		return data, sq[0], sq[1], nil
	case 1:
		if shape[len(shape)-1] == 1 {
			return data, sq[0], 1, nil
		}
		return data, 1, sq[0], nil
	case 0:
		if len(data) == 1 {
			return data, 1, 1, nil
		}
	}
	return nil, 0, 0, fmt.Errorf("%w: cannot squeeze %v into a 2-D depth map", ErrShape, t.Shape)
}
