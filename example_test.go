package depthmap_test

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vearutop/depthmap"
)

func ExampleWriteDepth() {
	dir, err := os.MkdirTemp("", "depth")
	if err != nil {
		return
	}
	defer os.RemoveAll(dir)

	depth := depthmap.NewTensor([]float32{0, 2.5, 5, 10}, 2, 2)
	b, err := depthmap.WriteDepth(filepath.Join(dir, "frame"), depth, func(o *depthmap.DepthOptions) {
		o.Bits = 2
	})
	if err != nil {
		return
	}
	fmt.Println(b.Min, b.Max)

	// Output:
	// 0 10
}

func ExampleResizeDepth() {
	// Network output with batch and channel dimensions.
	pred := depthmap.NewTensor([]float32{1, 2, 3, 4}, 1, 1, 2, 2)

	depth, err := depthmap.ResizeDepth(pred, 4, 3)
	if err != nil {
		return
	}
	fmt.Println(depth.Shape)

	// Output:
	// [3 4]
}

func ExampleReadPFM() {
	dir, err := os.MkdirTemp("", "pfm")
	if err != nil {
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "depth.pfm")
	if err := depthmap.WritePFM(path, depthmap.NewTensor([]float32{1, 2, 3}, 1, 3), 1); err != nil {
		return
	}
	img, scale, err := depthmap.ReadPFM(path)
	if err != nil {
		return
	}
	fmt.Println(img.Shape, scale, img.Data)

	// Output:
	// [1 3] 1 [1 2 3]
}

func ExampleEncodingFromFlags() {
	fmt.Println(depthmap.EncodingFromFlags(false, true, true))

	// Output:
	// hue
}
