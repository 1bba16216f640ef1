package tcd

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// AnalyzeBlockSize inspects a tile-component's spatial samples and picks
// a code-block size from {16, 32, 64} based on edge density: a Sobel
// gradient-magnitude pass estimates how much high-frequency detail the
// tile carries, and a high-pass energy ratio (variance of the gradient
// relative to the variance of the samples themselves) refines that
// estimate. Busier tiles get smaller code-blocks (finer rate-distortion
// granularity near edges); flatter tiles get larger ones (less header
// overhead). aggressiveness in [0,1] shifts the decision thresholds
// toward smaller blocks as it increases; at 0 the edge score is used
// unscaled, so a busy tile can still get smaller blocks.
//
// The Sobel pass is row-chunked across an errgroup.Group, the same
// fan-out-fan-in shape partitionAndEncode uses for code-blocks: each
// worker accumulates its own partial sums into a pre-sized slot indexed
// by worker number, and the combination step below sums those slots
// sequentially, so the result is independent of completion order.
//
// spec.md §4.I mentions this analyzer only in passing ("An analyzer
// inspects tile samples..."); this is a concrete, in-scope realization
// of that text, not present in the teacher (which uses a fixed
// configured code-block size).
func AnalyzeBlockSize(samples []int32, width, height int, aggressiveness float64) (blockW, blockH int) {
	if width < 3 || height < 3 || len(samples) != width*height {
		return 64, 64
	}
	if aggressiveness < 0 {
		aggressiveness = 0
	}
	if aggressiveness > 1 {
		aggressiveness = 1
	}

	gradSum, gradSumSq, sampleSum, sampleSumSq, n := sobelScan(samples, width, height)
	if n == 0 {
		return 64, 64
	}

	gradMean := gradSum / float64(n)
	gradVar := gradSumSq/float64(n) - gradMean*gradMean
	sampleMean := sampleSum / float64(n)
	sampleVar := sampleSumSq/float64(n) - sampleMean*sampleMean

	edgeDensity := gradMean
	highPassRatio := 0.0
	if sampleVar > 1e-9 {
		highPassRatio = gradVar / sampleVar
	}

	score := edgeDensity/64.0 + highPassRatio
	score *= 1 + aggressiveness

	switch {
	case score > 1.2:
		return 16, 16
	case score > 0.5:
		return 32, 32
	default:
		return 64, 64
	}
}

// sobelPartial holds one worker's running sums over its row range.
type sobelPartial struct {
	gradSum, gradSumSq     float64
	sampleSum, sampleSumSq float64
	n                      int
}

// sobelScan runs the interior-pixel Sobel pass in parallel over row
// chunks and returns the combined sums.
func sobelScan(samples []int32, width, height int) (gradSum, gradSumSq, sampleSum, sampleSumSq float64, n int) {
	interiorRows := height - 2
	workers := runtime.GOMAXPROCS(0)
	if workers > interiorRows {
		workers = interiorRows
	}
	if workers < 1 {
		workers = 1
	}

	partials := make([]sobelPartial, workers)
	chunk := (interiorRows + workers - 1) / workers

	g := new(errgroup.Group)
	for w := 0; w < workers; w++ {
		w := w
		y0 := 1 + w*chunk
		y1 := y0 + chunk
		if y1 > height-1 {
			y1 = height - 1
		}
		if y0 >= y1 {
			continue
		}
		g.Go(func() error {
			partials[w] = sobelRows(samples, width, y0, y1)
			return nil
		})
	}
	g.Wait()

	for _, p := range partials {
		gradSum += p.gradSum
		gradSumSq += p.gradSumSq
		sampleSum += p.sampleSum
		sampleSumSq += p.sampleSumSq
		n += p.n
	}
	return gradSum, gradSumSq, sampleSum, sampleSumSq, n
}

// sobelRows accumulates gradient/sample statistics over interior
// columns of rows [y0, y1).
func sobelRows(samples []int32, width, y0, y1 int) sobelPartial {
	var p sobelPartial
	for y := y0; y < y1; y++ {
		for x := 1; x < width-1; x++ {
			gx, gy := sobelAt(samples, width, x, y)
			mag := sobelMagnitude(gx, gy)
			p.gradSum += mag
			p.gradSumSq += mag * mag

			v := float64(samples[y*width+x])
			p.sampleSum += v
			p.sampleSumSq += v * v
			p.n++
		}
	}
	return p
}

// sobelAt computes the horizontal and vertical Sobel gradient at an
// interior pixel (x, y).
func sobelAt(samples []int32, width, x, y int) (gx, gy float64) {
	p := func(dx, dy int) float64 { return float64(samples[(y+dy)*width+(x+dx)]) }

	gx = (p(1, -1) + 2*p(1, 0) + p(1, 1)) - (p(-1, -1) + 2*p(-1, 0) + p(-1, 1))
	gy = (p(-1, 1) + 2*p(0, 1) + p(1, 1)) - (p(-1, -1) + 2*p(0, -1) + p(1, -1))
	return gx, gy
}

func sobelMagnitude(gx, gy float64) float64 {
	return absF(gx) + absF(gy)
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
