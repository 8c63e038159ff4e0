package depthmap

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrFormat is returned for malformed PFM headers or bodies.
	ErrFormat = errors.New("malformed PFM")
	// ErrType is returned when a tensor has an unsupported element type.
	ErrType = errors.New("unsupported tensor dtype")
	// ErrShape is returned when a tensor has an unsupported shape.
	ErrShape = errors.New("unsupported tensor shape")
)

// DType identifies the element type of a Tensor.
type DType int

const (
	// DTypeInvalid marks unsupported Data.
	DTypeInvalid DType = iota
	// DTypeFloat32 is []float32 data.
	DTypeFloat32
	// DTypeFloat64 is []float64 data.
	DTypeFloat64
	// DTypeInt32 is []int32 data.
	DTypeInt32
	// DTypeInt64 is []int64 data.
	DTypeInt64
	// DTypeUint8 is []uint8 data.
	DTypeUint8
	// DTypeUint16 is []uint16 data.
	DTypeUint16
)

func (d DType) String() string {
	switch d {
	case DTypeFloat32:
		return "float32"
	case DTypeFloat64:
		return "float64"
	case DTypeInt32:
		return "int32"
	case DTypeInt64:
		return "int64"
	case DTypeUint8:
		return "uint8"
	case DTypeUint16:
		return "uint16"
	default:
		return "invalid"
	}
}

// Tensor is a dense row-major N-d array.
// Data must be one of []float32, []float64, []int32, []int64, []uint8 or []uint16
// and hold exactly the product of Shape elements.
type Tensor struct {
	Shape []int
	Data  any
}

// NewTensor wraps float32 data with the given shape.
func NewTensor(data []float32, shape ...int) *Tensor {
	return &Tensor{Shape: append([]int(nil), shape...), Data: data}
}

// DType returns the element type of t.
func (t *Tensor) DType() DType {
	switch t.Data.(type) {
	case []float32:
		return DTypeFloat32
	case []float64:
		return DTypeFloat64
	case []int32:
		return DTypeInt32
	case []int64:
		return DTypeInt64
	case []uint8:
		return DTypeUint8
	case []uint16:
		return DTypeUint16
	default:
		return DTypeInvalid
	}
}

// Size returns the number of elements declared by Shape.
func (t *Tensor) Size() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

func (t *Tensor) dataLen() int {
	switch d := t.Data.(type) {
	case []float32:
		return len(d)
	case []float64:
		return len(d)
	case []int32:
		return len(d)
	case []int64:
		return len(d)
	case []uint8:
		return len(d)
	case []uint16:
		return len(d)
	default:
		return -1
	}
}

// Validate checks that Data has a supported type and matches Shape.
func (t *Tensor) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil tensor", ErrShape)
	}
	if t.DType() == DTypeInvalid {
		return fmt.Errorf("%w: %T", ErrType, t.Data)
	}
	for _, d := range t.Shape {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension in %v", ErrShape, t.Shape)
		}
	}
	if n := t.dataLen(); n != t.Size() {
		return fmt.Errorf("%w: %d elements for shape %v", ErrShape, n, t.Shape)
	}
	return nil
}

// Float32 returns the underlying data when it is float32.
func (t *Tensor) Float32() ([]float32, error) {
	d, ok := t.Data.([]float32)
	if !ok {
		return nil, fmt.Errorf("%w: %s, want float32", ErrType, t.DType())
	}
	return d, nil
}

// AsFloat64 converts the data of any supported dtype into a new float64 slice.
func (t *Tensor) AsFloat64() ([]float64, error) {
	switch d := t.Data.(type) {
	case []float32:
		return convertSlice[float32, float64](d), nil
	case []float64:
		return append([]float64(nil), d...), nil
	case []int32:
		return convertSlice[int32, float64](d), nil
	case []int64:
		return convertSlice[int64, float64](d), nil
	case []uint8:
		return convertSlice[uint8, float64](d), nil
	case []uint16:
		return convertSlice[uint16, float64](d), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrType, t.Data)
	}
}

// AsFloat32 converts the data of any supported dtype into a new float32 slice.
func (t *Tensor) AsFloat32() ([]float32, error) {
	switch d := t.Data.(type) {
	case []float32:
		return append([]float32(nil), d...), nil
	case []float64:
		return convertSlice[float64, float32](d), nil
	case []int32:
		return convertSlice[int32, float32](d), nil
	case []int64:
		return convertSlice[int64, float32](d), nil
	case []uint8:
		return convertSlice[uint8, float32](d), nil
	case []uint16:
		return convertSlice[uint16, float32](d), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrType, t.Data)
	}
}

// Squeeze returns a view of t with all unit dimensions removed.
// Data is shared with t.
func (t *Tensor) Squeeze() *Tensor {
	shape := make([]int, 0, len(t.Shape))
	for _, d := range t.Shape {
		if d != 1 {
			shape = append(shape, d)
		}
	}
	return &Tensor{Shape: shape, Data: t.Data}
}

// plane returns height and width of a tensor that is 2-D once leading batch and
// trailing channel dimensions of size one are dropped.
func (t *Tensor) plane() (h, w int, err error) {
	if err := t.Validate(); err != nil {
		return 0, 0, err
	}
	shape := t.Shape
	for len(shape) > 2 && shape[0] == 1 {
		shape = shape[1:]
	}
	for len(shape) > 2 && shape[len(shape)-1] == 1 {
		shape = shape[:len(shape)-1]
	}
	if len(shape) != 2 {
		return 0, 0, fmt.Errorf("%w: %v is not a 2-D map", ErrShape, t.Shape)
	}
	return shape[0], shape[1], nil
}

type number interface {
	~float32 | ~float64 | ~int32 | ~int64 | ~uint8 | ~uint16
}

func convertSlice[S, D number](src []S) []D {
	out := make([]D, len(src))
	for i, v := range src {
		out[i] = D(v)
	}
	return out
}

// Bounds is the normalization range used by the depth encoder.
// Infinite values mean that no range was computed.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Unbounded is returned for encodings that do not normalize.
var Unbounded = Bounds{Min: math.Inf(1), Max: math.Inf(1)}

// IsFinite reports whether both ends are finite numbers.
func (b Bounds) IsFinite() bool {
	return isFinite(b.Min) && isFinite(b.Max)
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Encoding selects how a depth map is rendered into a raster.
type Encoding int

const (
	// EncodingLinear maps the normalized depth linearly onto 8 or 16 bit gray.
	EncodingLinear Encoding = iota
	// EncodingHue maps the inverted normalized depth onto the hue circle.
	EncodingHue
	// EncodingRGB packs a 16-bit normalized depth into the green and blue channels.
	EncodingRGB
	// EncodingAbsolute casts raw depth values without normalization.
	EncodingAbsolute
)

// EncodingFromFlags resolves legacy boolean switches, absolute wins over hue, hue over rgb.
func EncodingFromFlags(absolute, hue, rgb bool) Encoding {
	switch {
	case absolute:
		return EncodingAbsolute
	case hue:
		return EncodingHue
	case rgb:
		return EncodingRGB
	default:
		return EncodingLinear
	}
}

// ParseEncoding parses an encoding name as used on the command line.
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "", "linear", "gray":
		return EncodingLinear, nil
	case "hue":
		return EncodingHue, nil
	case "rgb":
		return EncodingRGB, nil
	case "absolute":
		return EncodingAbsolute, nil
	default:
		return EncodingLinear, fmt.Errorf("unknown depth encoding %q", s)
	}
}

func (e Encoding) String() string {
	switch e {
	case EncodingHue:
		return "hue"
	case EncodingRGB:
		return "rgb"
	case EncodingAbsolute:
		return "absolute"
	default:
		return "linear"
	}
}
