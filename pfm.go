package depthmap

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

// Python's `$` also matches before a final newline, hence the optional \n.
var pfmDimRe = regexp.MustCompile(`^(\d+)\s(\d+)\s\n?$`)

var hostLittleEndian = binary.NativeEndian.Uint16([]byte{1, 0}) == 1

// ReadPFM reads a PFM file and returns its samples with rows ordered top to bottom,
// along with the positive scale factor from the header.
func ReadPFM(path string) (*Tensor, float64, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	t, scale, err := DecodePFM(f)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", path, err)
	}
	return t, scale, nil
}

// DecodePFM decodes a PFM stream.
// Grayscale files yield a H×W tensor, color files a H×W×3 tensor of float32.
func DecodePFM(r io.Reader) (*Tensor, float64, error) {
	br := bufio.NewReader(r)

	magic, err := readHeaderLine(br)
	if err != nil {
		return nil, 0, err
	}
	var channels int
	switch strings.TrimRight(magic, " \t\r\n\v\f") {
	case pfmMagicColor:
		channels = 3
	case pfmMagicGray:
		channels = 1
	default:
		return nil, 0, fmt.Errorf("%w: not a PFM file", ErrFormat)
	}

	dims, err := readHeaderLine(br)
	if err != nil {
		return nil, 0, err
	}
	m := pfmDimRe.FindStringSubmatch(dims)
	if m == nil {
		return nil, 0, fmt.Errorf("%w: malformed PFM header %q", ErrFormat, dims)
	}
	width, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: width: %v", ErrFormat, err)
	}
	height, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: height: %v", ErrFormat, err)
	}

	scaleLine, err := readHeaderLine(br)
	if err != nil {
		return nil, 0, err
	}
	scale, err := strconv.ParseFloat(strings.TrimSpace(scaleLine), 64)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: scale: %v", ErrFormat, err)
	}
	var order binary.ByteOrder = binary.BigEndian
	// Signbit also catches -0 written for tiny scales on little-endian hosts.
	if math.Signbit(scale) {
		order = binary.LittleEndian
	}
	scale = math.Abs(scale)

	if height > 0 && width > math.MaxInt32/height {
		return nil, 0, fmt.Errorf("%w: dimensions %dx%d too large", ErrFormat, width, height)
	}

	body, err := io.ReadAll(br)
	if err != nil {
		return nil, 0, err
	}
	n := width * height * channels
	if len(body) != n*4 {
		return nil, 0, fmt.Errorf("%w: body has %d bytes, want %d for %dx%dx%d",
			ErrFormat, len(body), n*4, width, height, channels)
	}

	pix := make([]float32, n)
	rowLen := width * channels
	for y := 0; y < height; y++ {
		// File rows run bottom to top.
		src := body[(height-1-y)*rowLen*4:]
		dst := pix[y*rowLen : (y+1)*rowLen]
		for i := range dst {
			dst[i] = math.Float32frombits(order.Uint32(src[i*4:]))
		}
	}

	shape := []int{height, width}
	if channels == 3 {
		shape = append(shape, 3)
	}
	return &Tensor{Shape: shape, Data: pix}, scale, nil
}

func readHeaderLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return line, nil
		}
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%w: truncated header", ErrFormat)
		}
		return "", err
	}
	return line, nil
}

// pfmLayout validates a tensor for writing and reports its geometry.
func pfmLayout(img *Tensor) (pix []float32, height, width, channels int, err error) {
	if img == nil {
		return nil, 0, 0, 0, fmt.Errorf("%w: nil image", ErrShape)
	}
	pix, err = img.Float32()
	if err != nil {
		return nil, 0, 0, 0, fmt.Errorf("image dtype must be float32: %w", err)
	}
	switch {
	case len(img.Shape) == 3 && img.Shape[2] == 3:
		channels = 3
	case len(img.Shape) == 2, len(img.Shape) == 3 && img.Shape[2] == 1:
		channels = 1
	default:
		return nil, 0, 0, 0, fmt.Errorf("%w: image must have H x W x 3, H x W x 1 or H x W dimensions, got %v",
			ErrShape, img.Shape)
	}
	if err := img.Validate(); err != nil {
		return nil, 0, 0, 0, err
	}
	return pix, img.Shape[0], img.Shape[1], channels, nil
}

// WritePFM writes img to path in PFM format using the host byte order.
// The tensor is validated before the file is created.
func WritePFM(path string, img *Tensor, scale float64) (err error) {
	if _, _, _, _, err := pfmLayout(img); err != nil {
		return err
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	return EncodePFM(f, img, scale)
}

// EncodePFM writes img as PFM to w.
// The sign of the written scale encodes the host byte order, negative for little-endian,
// so only the magnitude of scale is kept.
func EncodePFM(w io.Writer, img *Tensor, scale float64) error {
	pix, height, width, channels, err := pfmLayout(img)
	if err != nil {
		return err
	}

	var hdr bytes.Buffer
	if channels == 3 {
		hdr.WriteString(pfmMagicColor + "\n")
	} else {
		hdr.WriteString(pfmMagicGray + "\n")
	}
	fmt.Fprintf(&hdr, "%d %d\n", width, height)
	scale = math.Abs(scale)
	if hostLittleEndian {
		scale = -scale
	}
	hdr.WriteString(strconv.FormatFloat(scale, 'g', -1, 64) + "\n")

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(hdr.Bytes()); err != nil {
		return err
	}

	rowLen := width * channels
	row := make([]byte, rowLen*4)
	for y := height - 1; y >= 0; y-- {
		src := pix[y*rowLen : (y+1)*rowLen]
		for i, v := range src {
			binary.NativeEndian.PutUint32(row[i*4:], math.Float32bits(v))
		}
		if _, err := bw.Write(row); err != nil {
			return err
		}
	}
	return bw.Flush()
}
