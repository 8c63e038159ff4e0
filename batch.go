package depthmap

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DepthJob is a single PFM depth frame to render.
type DepthJob struct {
	// Input is a grayscale PFM file.
	Input string
	// Output is the destination path without extension.
	Output string
}

// DepthResult reports the bounds used for a rendered frame.
type DepthResult struct {
	DepthJob
	Bounds Bounds `json:"bounds"`
}

// BatchOptions controls EncodeBatch.
type BatchOptions struct {
	Depth DepthOptions
	// Workers limits concurrent frames, GOMAXPROCS when <= 0.
	Workers int
	// Fixed normalizes every frame with the global range of all inputs
	// so that depth values stay comparable across a video.
	Fixed  bool
	// OnDone is called from worker goroutines after each frame.
	OnDone func(res DepthResult)
}

// ScanBounds returns the minimum and maximum sample over all PFM files.
func ScanBounds(ctx context.Context, paths []string, workers int) (Bounds, error) {
	if len(paths) == 0 {
		return Unbounded, errors.New("no depth frames")
	}
	per := make([]Bounds, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(workers))
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, _, err := ReadPFM(p)
			if err != nil {
				return err
			}
			vals, err := t.AsFloat64()
			if err != nil {
				return err
			}
			lo, hi := minMax(vals)
			per[i] = Bounds{Min: lo, Max: hi}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Unbounded, err
	}

	total := Bounds{Min: math.Inf(1), Max: math.Inf(-1)}
	for i, b := range per {
		if math.IsNaN(b.Min) || math.IsNaN(b.Max) {
			return Unbounded, fmt.Errorf("%s: depth contains NaN", paths[i])
		}
		total.Min = math.Min(total.Min, b.Min)
		total.Max = math.Max(total.Max, b.Max)
	}
	return total, nil
}

// EncodeBatch renders every job concurrently. Outputs must be distinct paths.
// Results are returned in job order.
func EncodeBatch(ctx context.Context, jobs []DepthJob, opts ...func(o *BatchOptions)) ([]DepthResult, error) {
	opt := BatchOptions{Depth: DefaultDepthOptions()}
	for _, applyOpt := range opts {
		applyOpt(&opt)
	}

	seen := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		if _, ok := seen[j.Output]; ok {
			return nil, fmt.Errorf("duplicate output %s", j.Output)
		}
		seen[j.Output] = struct{}{}
	}

	if opt.Fixed {
		inputs := make([]string, len(jobs))
		for i, j := range jobs {
			inputs[i] = j.Input
		}
		b, err := ScanBounds(ctx, inputs, opt.Workers)
		if err != nil {
			return nil, fmt.Errorf("scan bounds: %w", err)
		}
		opt.Depth.FixedMin = b.Min
		opt.Depth.FixedMax = b.Max
	}

	results := make([]DepthResult, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(opt.Workers))
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, _, err := ReadPFM(j.Input)
			if err != nil {
				return err
			}
			depthOpt := opt.Depth
			b, err := WriteDepth(j.Output, t, func(o *DepthOptions) { *o = depthOpt })
			if err != nil {
				return fmt.Errorf("%s: %w", j.Input, err)
			}
			results[i] = DepthResult{DepthJob: j, Bounds: b}
			if opt.OnDone != nil {
				opt.OnDone(results[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func workerCount(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}
