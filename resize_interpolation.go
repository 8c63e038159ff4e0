package depthmap

import (
	"math"
	"runtime"
	"sync"
)

type resampleWeights struct {
	coeffs       []float32
	start        []int
	filterLength int
}

type kernelDef struct {
	interp Interpolation
	taps   int
	kernel func(float64) float64
}

type weightsKey struct {
	src       int
	dst       int
	interp    Interpolation
	antialias bool
}

var weightsCache sync.Map

var float32Pool = sync.Pool{
	New: func() any {
		buf := make([]float32, 0)
		return &buf
	},
}

var (
	maxParallelWorkers = 0
	workerSemOnce      sync.Once
	workerSem          chan struct{}
)

func kernelForInterpolation(interp Interpolation) kernelDef {
	switch interp {
	case InterpolationBilinear:
		return kernelDef{interp: InterpolationBilinear, taps: 2, kernel: linearKernel}
	case InterpolationBicubic:
		return kernelDef{interp: InterpolationBicubic, taps: 4, kernel: opencvCubicKernel}
	case InterpolationCatmullRom:
		return kernelDef{interp: InterpolationCatmullRom, taps: 4, kernel: catmullRomKernel}
	case InterpolationMitchellNetravali:
		return kernelDef{interp: InterpolationMitchellNetravali, taps: 4, kernel: mitchellNetravaliKernel}
	case InterpolationLanczos2:
		return kernelDef{interp: InterpolationLanczos2, taps: 4, kernel: lanczos2Kernel}
	case InterpolationLanczos3:
		return kernelDef{interp: InterpolationLanczos3, taps: 6, kernel: lanczos3Kernel}
	default:
		return kernelDef{interp: InterpolationNearest, taps: 2, kernel: nearestKernel}
	}
}

// resamplePlaneF32 resizes a single float plane with a separable kernel,
// horizontal pass first. Border samples are replicated and results are not clamped.
func resamplePlaneF32(src []float32, srcW, srcH, dstW, dstH int, def kernelDef, antialias bool) []float32 {
	scaleX := float64(srcW) / float64(dstW)
	scaleY := float64(srcH) / float64(dstH)
	wx := getWeights(srcW, dstW, def, scaleX, antialias)
	wy := getWeights(srcH, dstH, def, scaleY, antialias)

	temp := getFloat32(dstW * srcH)
	parallelFor(srcH, func(start, end int) {
		for y := start; y < end; y++ {
			row := src[y*srcW : (y+1)*srcW]
			outRow := temp[y*dstW:]
			for x := 0; x < dstW; x++ {
				s := wx.start[x]
				base := x * wx.filterLength
				var sum float32
				for i := 0; i < wx.filterLength; i++ {
					w := wx.coeffs[base+i]
					if w == 0 {
						continue
					}
					xi := s + i
					if xi < 0 {
						xi = 0
					} else if xi >= srcW {
						xi = srcW - 1
					}
					sum += row[xi] * w
				}
				outRow[x] = sum
			}
		}
	})

	out := make([]float32, dstW*dstH)
	parallelFor(dstH, func(start, end int) {
		for y := start; y < end; y++ {
			s := wy.start[y]
			base := y * wy.filterLength
			row := out[y*dstW:]
			for x := 0; x < dstW; x++ {
				var sum float32
				for i := 0; i < wy.filterLength; i++ {
					w := wy.coeffs[base+i]
					if w == 0 {
						continue
					}
					yi := s + i
					if yi < 0 {
						yi = 0
					} else if yi >= srcH {
						yi = srcH - 1
					}
					sum += temp[yi*dstW+x] * w
				}
				row[x] = sum
			}
		}
	})

	putFloat32(temp)
	return out
}

// nearestPlaneF32 picks floor(x*scale) like OpenCV INTER_NEAREST.
func nearestPlaneF32(src []float32, srcW, srcH, dstW, dstH int) []float32 {
	out := make([]float32, dstW*dstH)
	parallelFor(dstH, func(start, end int) {
		for y := start; y < end; y++ {
			sy := y * srcH / dstH
			srow := src[sy*srcW:]
			row := out[y*dstW:]
			for x := 0; x < dstW; x++ {
				row[x] = srow[x*srcW/dstW]
			}
		}
	})
	return out
}

// getWeights computes per-output filter taps. With antialias the kernel is widened by
// the downscale factor, without it the taps match a fixed-support interpolator.
func getWeights(src, dst int, def kernelDef, scale float64, antialias bool) resampleWeights {
	if src <= 0 || dst <= 0 {
		return resampleWeights{}
	}
	key := weightsKey{src: src, dst: dst, interp: def.interp, antialias: antialias}
	if cached, ok := weightsCache.Load(key); ok {
		return cached.(resampleWeights)
	}
	filterLength := def.taps
	filterFactor := 1.0
	if antialias {
		filterLength = def.taps * int(math.Max(math.Ceil(scale), 1))
		filterFactor = math.Min(1.0/scale, 1.0)
	}
	coeffs := make([]float32, dst*filterLength)
	start := make([]int, dst)
	for y := 0; y < dst; y++ {
		interpX := scale*(float64(y)+0.5) - 0.5
		start[y] = int(math.Floor(interpX)) - filterLength/2 + 1
		interpX -= float64(start[y])
		base := y * filterLength
		var sum float64
		for i := 0; i < filterLength; i++ {
			in := (interpX - float64(i)) * filterFactor
			w := def.kernel(in)
			coeffs[base+i] = float32(w)
			sum += w
		}
		if sum != 0 {
			inv := float32(1.0 / sum)
			for i := 0; i < filterLength; i++ {
				coeffs[base+i] *= inv
			}
		}
	}
	weights := resampleWeights{coeffs: coeffs, start: start, filterLength: filterLength}
	weightsCache.Store(key, weights)
	return weights
}

func parallelFor(total int, fn func(start, end int)) {
	if total <= 0 {
		return
	}
	capacity := runtime.GOMAXPROCS(0)
	if maxParallelWorkers > 0 && capacity > maxParallelWorkers {
		capacity = maxParallelWorkers
	}
	if capacity < 1 {
		capacity = 1
	}
	workerSemOnce.Do(func() {
		workerSem = make(chan struct{}, capacity)
	})
	if cap(workerSem) < capacity {
		capacity = cap(workerSem)
	}
	workers := capacity
	if workers > total {
		workers = total
	}
	if workers <= 1 {
		fn(0, total)
		return
	}
	step := (total + workers - 1) / workers
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * step
		end := start + step
		if end > total {
			end = total
		}
		if start >= end {
			break
		}
		workerSem <- struct{}{}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			defer func() { <-workerSem }()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

func getFloat32(n int) []float32 {
	bufPtr := float32Pool.Get().(*[]float32)
	buf := *bufPtr
	if cap(buf) < n {
		return make([]float32, n)
	}
	return buf[:n]
}

func putFloat32(buf []float32) {
	if buf == nil {
		return
	}
	for i := range buf {
		buf[i] = 0
	}
	buf = buf[:0]
	float32Pool.Put(&buf)
}

func nearestKernel(in float64) float64 {
	if in >= -0.5 && in < 0.5 {
		return 1
	}
	return 0
}

func linearKernel(in float64) float64 {
	in = math.Abs(in)
	if in <= 1 {
		return 1 - in
	}
	return 0
}

// cubicConvolution is Keys' cubic with free parameter a.
func cubicConvolution(in, a float64) float64 {
	in = math.Abs(in)
	if in <= 1 {
		return ((a+2)*in-(a+3))*in*in + 1
	}
	if in < 2 {
		return ((a*in-5*a)*in+8*a)*in - 4*a
	}
	return 0
}

// opencvCubicKernel uses a = -0.75 as cv::resize with INTER_CUBIC.
func opencvCubicKernel(in float64) float64 { return cubicConvolution(in, -0.75) }

func catmullRomKernel(in float64) float64 { return cubicConvolution(in, -0.5) }

func mitchellNetravaliKernel(in float64) float64 {
	in = math.Abs(in)
	if in <= 1 {
		return (7.0*in*in*in - 12.0*in*in + 5.33333333333) * 0.16666666666
	}
	if in <= 2 {
		return (-2.33333333333*in*in*in + 12.0*in*in - 20.0*in + 10.6666666667) * 0.16666666666
	}
	return 0
}

func sinc(x float64) float64 {
	x = math.Abs(x) * math.Pi
	if x >= 1.220703e-4 {
		return math.Sin(x) / x
	}
	return 1
}

func lanczos2Kernel(in float64) float64 {
	if in > -2 && in < 2 {
		return sinc(in) * sinc(in*0.5)
	}
	return 0
}

func lanczos3Kernel(in float64) float64 {
	if in > -3 && in < 3 {
		return sinc(in) * sinc(in*0.3333333333333333)
	}
	return 0
}
