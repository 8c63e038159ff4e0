// Package main is the depthtool command: PFM inspection, depth rendering and
// segmentation output for monocular depth pipelines.
package main

import (
	"encoding/json"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vearutop/depthmap"
	"github.com/vearutop/depthmap/internal/config"
)

const (
	flagConfig = "config"
	flagDebug  = "debug"
	flagIn     = "in"
	flagOut    = "out"
	flagBits   = "bits"
	flagMode   = "mode"
	flagMin    = "min"
	flagMax    = "max"
	flagPFM    = "pfm"
	flagFixed  = "fixed"
	flagPar    = "parallel"
	flagBounds = "bounds-out"
	flagWidth  = "width"
	flagHeight = "height"
	flagInterp = "interp"

	flagInput     = "input"
	flagLabels    = "labels"
	flagMask      = "mask"
	flagMaskBg    = "mask-background"
	flagThreshold = "threshold"
	flagBlur      = "blur"
	flagAlpha     = "alpha"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type tool struct {
	logger *zap.SugaredLogger
	cfg    *config.Config
}

func newApp() *cli.App {
	t := &tool{logger: zap.NewNop().Sugar(), cfg: config.Default()}

	return &cli.App{
		Name:  "depthtool",
		Usage: "read, write and render depth maps",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load defaults from JSON `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: t.before,
		After: func(*cli.Context) error {
			// Sync fails on plain terminals, nothing to report.
			_ = t.logger.Sync()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "encode",
				Usage: "render a PFM depth map to PNG",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: flagIn, Required: true, Usage: "input PFM depth map"},
					&cli.StringFlag{Name: flagOut, Required: true, Usage: "output path without extension"},
				}, depthFlags()...),
				Action: t.runEncode,
			},
			{
				Name:  "batch",
				Usage: "render every PFM in a directory",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: flagIn, Required: true, Usage: "directory with PFM frames"},
					&cli.StringFlag{Name: flagOut, Required: true, Usage: "output directory"},
					&cli.BoolFlag{Name: flagFixed, Usage: "normalize all frames with the global depth range"},
					&cli.IntFlag{Name: flagPar, Usage: "concurrent frames, 0 for all CPUs"},
					&cli.StringFlag{Name: flagBounds, Usage: "write per-frame bounds as JSON"},
				}, depthFlags()...),
				Action: t.runBatch,
			},
			{
				Name:  "inspect",
				Usage: "print PFM header and value range",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagIn, Required: true, Usage: "input PFM"},
				},
				Action: t.runInspect,
			},
			{
				Name:  "resize",
				Usage: "resample a PFM depth map",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagIn, Required: true, Usage: "input PFM"},
					&cli.StringFlag{Name: flagOut, Required: true, Usage: "output PFM"},
					&cli.IntFlag{Name: flagWidth, Required: true, Usage: "target width"},
					&cli.IntFlag{Name: flagHeight, Required: true, Usage: "target height"},
					&cli.StringFlag{Name: flagInterp, Value: "bicubic", Usage: "nearest, bilinear, bicubic, catmullrom, mitchell, lanczos2, lanczos3"},
				},
				Action: t.runResize,
			},
			{
				Name:  "segment",
				Usage: "blend or mask images with externally computed label maps",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagInput, Value: "input", Usage: "folder with input images"},
					&cli.StringFlag{Name: flagLabels, Required: true, Usage: "folder with label maps named after the images (.png or .pfm)"},
					&cli.StringFlag{Name: flagOut, Value: "output_semseg", Usage: "folder for output images"},
					&cli.IntFlag{Name: flagMask, Value: -1, Usage: "keep only this ADE20K class"},
					&cli.StringFlag{Name: flagMaskBg, Usage: "background color of the mask as r,g,b"},
					&cli.BoolFlag{Name: flagThreshold, Usage: "render a black and white mask"},
					&cli.IntFlag{Name: flagBlur, Usage: "mask blur size to grow the masked area"},
					&cli.Float64Flag{Name: flagAlpha, Usage: "overlay opacity"},
				},
				Action: t.runSegment,
			},
		},
	}
}

func depthFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: flagBits, Usage: "bytes per gray sample, 1 or 2"},
		&cli.StringFlag{Name: flagMode, Usage: "linear, hue, rgb or absolute"},
		&cli.Float64Flag{Name: flagMin, Usage: "fixed depth minimum"},
		&cli.Float64Flag{Name: flagMax, Usage: "fixed depth maximum"},
		&cli.BoolFlag{Name: flagPFM, Usage: "also write the raw depth as PFM"},
	}
}

func (t *tool) before(c *cli.Context) error {
	logger, err := newLogger(c.Bool(flagDebug))
	if err != nil {
		return err
	}
	t.logger = logger

	if path := c.String(flagConfig); path != "" {
		cfg, err := config.LoadFromFile(path)
		if err != nil {
			return err
		}
		t.cfg = cfg
		t.logger.Debugw("loaded config", "path", path)
	}
	return nil
}

func newLogger(debug bool) (*zap.SugaredLogger, error) {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}
	logger, err := zap.Config{
		Level:    zap.NewAtomicLevelAt(level),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar().Named("depthtool"), nil
}

// depthOptions merges command flags over the configuration.
func (t *tool) depthOptions(c *cli.Context) (depthmap.DepthOptions, error) {
	opt, err := t.cfg.DepthOptions()
	if err != nil {
		return opt, err
	}
	if c.IsSet(flagBits) {
		opt.Bits = c.Int(flagBits)
	}
	if c.IsSet(flagMode) {
		if opt.Encoding, err = depthmap.ParseEncoding(c.String(flagMode)); err != nil {
			return opt, err
		}
	}
	if c.IsSet(flagMin) {
		opt.FixedMin = c.Float64(flagMin)
	}
	if c.IsSet(flagMax) {
		opt.FixedMax = c.Float64(flagMax)
	}
	if c.IsSet(flagPFM) {
		opt.SavePFM = c.Bool(flagPFM)
	}
	return opt, nil
}

func (t *tool) runEncode(c *cli.Context) error {
	opt, err := t.depthOptions(c)
	if err != nil {
		return err
	}
	depth, _, err := depthmap.ReadPFM(c.String(flagIn))
	if err != nil {
		return err
	}
	b, err := depthmap.WriteDepth(c.String(flagOut), depth, func(o *depthmap.DepthOptions) { *o = opt })
	if err != nil {
		return errors.Wrap(err, "encode")
	}
	t.logger.Infow("depth written", "out", c.String(flagOut)+".png", "encoding", opt.Encoding, "min", b.Min, "max", b.Max)
	return nil
}

func (t *tool) runBatch(c *cli.Context) error {
	opt, err := t.depthOptions(c)
	if err != nil {
		return err
	}
	inputs, err := depthmap.FilesInPath(c.String(flagIn), ".pfm")
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return errors.Errorf("no PFM files in %s", c.String(flagIn))
	}
	outDir := c.String(flagOut)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	jobs := make([]depthmap.DepthJob, len(inputs))
	for i, in := range inputs {
		jobs[i] = depthmap.DepthJob{
			Input:  in,
			Output: filepath.Join(outDir, strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))),
		}
	}

	workers := t.cfg.Workers
	if c.IsSet(flagPar) {
		workers = c.Int(flagPar)
	}
	fixed := t.cfg.Depth.Fixed || c.Bool(flagFixed)

	bar, err := pterm.DefaultProgressbar.WithTotal(len(jobs)).WithTitle("encoding").WithWriter(os.Stderr).Start()
	if err != nil {
		return err
	}
	var mu sync.Mutex
	results, err := depthmap.EncodeBatch(c.Context, jobs, func(o *depthmap.BatchOptions) {
		o.Depth = opt
		o.Workers = workers
		o.Fixed = fixed
		o.OnDone = func(res depthmap.DepthResult) {
			mu.Lock()
			defer mu.Unlock()
			bar.Increment()
			t.logger.Debugw("frame done", "in", res.Input, "min", res.Bounds.Min, "max", res.Bounds.Max)
		}
	})
	if _, stopErr := bar.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	if err != nil {
		return errors.Wrap(err, "batch")
	}

	if path := c.String(flagBounds); path != "" {
		if err := writeBounds(path, results); err != nil {
			return err
		}
	}
	t.logger.Infow("batch finished", "frames", len(results), "fixed", fixed)
	return nil
}

type boundsRecord struct {
	Input  string   `json:"input"`
	Output string   `json:"output"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
}

// writeBounds stores per-frame bounds; infinite or NaN bounds become null.
func writeBounds(path string, results []depthmap.DepthResult) error {
	records := make([]boundsRecord, len(results))
	for i, r := range results {
		records[i] = boundsRecord{Input: r.Input, Output: r.Output, Min: finiteOrNil(r.Bounds.Min), Max: finiteOrNil(r.Bounds.Max)}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(filepath.Clean(path), data, 0o644), "write bounds")
}

func finiteOrNil(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func (t *tool) runInspect(c *cli.Context) error {
	img, scale, err := depthmap.ReadPFM(c.String(flagIn))
	if err != nil {
		return err
	}
	vals, err := img.AsFloat64()
	if err != nil {
		return err
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	channels := 1
	if len(img.Shape) == 3 {
		channels = img.Shape[2]
	}
	w := c.App.Writer
	fmt.Fprintf(w, "size:     %dx%d\n", img.Shape[1], img.Shape[0])
	fmt.Fprintf(w, "channels: %d\n", channels)
	fmt.Fprintf(w, "scale:    %g\n", scale)
	fmt.Fprintf(w, "min:      %g\n", lo)
	fmt.Fprintf(w, "max:      %g\n", hi)
	return nil
}

func (t *tool) runResize(c *cli.Context) error {
	interp, err := depthmap.ParseInterpolation(c.String(flagInterp))
	if err != nil {
		return err
	}
	depth, scale, err := depthmap.ReadPFM(c.String(flagIn))
	if err != nil {
		return err
	}
	resized, err := depthmap.ResizeDepth(depth, c.Int(flagWidth), c.Int(flagHeight), func(o *depthmap.ResizeOptions) {
		o.Interpolation = interp
	})
	if err != nil {
		return errors.Wrap(err, "resize")
	}
	return depthmap.WritePFM(c.String(flagOut), resized, scale)
}

func (t *tool) runSegment(c *cli.Context) error {
	seg := t.cfg.Segmentation
	if c.IsSet(flagAlpha) {
		seg.Alpha = c.Float64(flagAlpha)
	}
	if c.IsSet(flagMask) {
		m := c.Int(flagMask)
		seg.Mask = &m
	}
	if c.IsSet(flagMaskBg) {
		bg, err := parseRGB(c.String(flagMaskBg))
		if err != nil {
			return err
		}
		seg.MaskBackground = bg
	}
	if c.IsSet(flagThreshold) {
		seg.Threshold = c.Bool(flagThreshold)
	}
	if c.IsSet(flagBlur) {
		seg.Blur = c.Int(flagBlur)
	}
	if seg.Mask != nil && *seg.Mask < 0 {
		seg.Mask = nil
	}

	images, err := depthmap.ImagesInPath(c.String(flagInput))
	if err != nil {
		return err
	}
	outDir := c.String(flagOut)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	t.logger.Infow("start processing", "images", len(images))
	bar, err := pterm.DefaultProgressbar.WithTotal(len(images)).WithTitle("segment").WithWriter(os.Stderr).Start()
	if err != nil {
		return err
	}
	defer func() {
		_, _ = bar.Stop()
	}()

	for _, name := range images {
		base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
		labelsPath, err := findLabels(c.String(flagLabels), base)
		if err != nil {
			return err
		}
		img, err := depthmap.ReadImage(name)
		if err != nil {
			return errors.Wrapf(err, "read %s", name)
		}
		labels, err := depthmap.ReadLabels(labelsPath)
		if err != nil {
			return errors.Wrapf(err, "read %s", labelsPath)
		}

		out := filepath.Join(outDir, base)
		if seg.Mask != nil {
			masked, err := depthmap.ApplyMask(img, labels, depthmap.MaskOptions{
				Class:      *seg.Mask,
				Background: color.NRGBA{R: seg.MaskBackground[0], G: seg.MaskBackground[1], B: seg.MaskBackground[2], A: 0xff},
				Blur:       seg.Blur,
				Threshold:  seg.Threshold,
			})
			if err != nil {
				return errors.Wrapf(err, "mask %s", name)
			}
			if err := depthmap.SavePNG(out+".png", masked); err != nil {
				return err
			}
		} else if err := depthmap.WriteSegmentation(out, img, labels, seg.Alpha); err != nil {
			return errors.Wrapf(err, "segment %s", name)
		}
		bar.Increment()
	}
	t.logger.Info("finished")
	return nil
}

func findLabels(dir, base string) (string, error) {
	for _, ext := range []string{".png", ".pfm"} {
		p := filepath.Join(dir, base+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.Errorf("no label map for %s in %s", base, dir)
}

func parseRGB(s string) ([3]uint8, error) {
	var rgb [3]uint8
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return rgb, errors.Errorf("color %q must be r,g,b", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return rgb, errors.Wrapf(err, "color %q", s)
		}
		rgb[i] = uint8(v)
	}
	return rgb, nil
}
