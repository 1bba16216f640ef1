package quant

import "math"

// TrellisConfig configures trellis-coded quantization (TCQ): a small
// state machine whose states partition the quantization codebook into
// cosets, searched with the Viterbi algorithm for the path that
// minimizes accumulated distortion plus a rate penalty.
type TrellisConfig struct {
	// NumStates is the number of trellis states; must be one of
	// {2, 4, 6, 8}.
	NumStates int
	// Lambda is the Lagrangian rate-distortion multiplier (D + lambda*R).
	Lambda float64
	// MaxPrune bounds the number of surviving paths retained per step;
	// 0 disables pruning (keep all NumStates paths).
	MaxPrune int
}

func (c TrellisConfig) Validate() error {
	switch c.NumStates {
	case 2, 4, 6, 8:
	default:
		return &InvalidParameter{Context: "Trellis NumStates must be one of {2,4,6,8}"}
	}
	if c.Lambda < 0 {
		return &InvalidParameter{Context: "Trellis Lambda must be >= 0"}
	}
	return nil
}

// cosetOffset returns the coset offset (in quantization-index units) for
// state s, used to stagger each state's reconstruction levels relative
// to the plain uniform quantizer so that adjacent states cover
// interleaved codebooks, the classic TCQ construction.
func cosetOffset(state, numStates int) float64 {
	return float64(state) / float64(numStates)
}

// nextState is the trellis' state-transition function: a simple
// rate-1/2-style shift that alternates between the even and odd coset
// halves, matching the "2-4-6-8 state TCQ" constructions described in
// the quantization literature this package's step-size model is drawn
// from.
func nextState(state, bit, numStates int) int {
	return (2*state + bit) % numStates
}

// trellisPath tracks one surviving Viterbi path: its current state, the
// accumulated cost, and the quantized symbols chosen so far.
type trellisPath struct {
	state  int
	cost   float64
	coeffs []int32
}

// QuantizeTrellis applies TCQ to one subband's coefficients, choosing
// per-coefficient coset assignments via the Viterbi algorithm over
// cfg.NumStates states. It returns only the quantized integers; the
// coset path is not returned, and Dequantize reconstructs the integers
// without applying any coset offset.
func QuantizeTrellis(coeffs []float64, step float64, cfg TrellisConfig) ([]int32, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if step <= 0 {
		return nil, &InvalidParameter{Context: "Trellis requires a positive step size"}
	}
	if len(coeffs) == 0 {
		return nil, nil
	}

	paths := make([]trellisPath, cfg.NumStates)
	for s := range paths {
		paths[s] = trellisPath{state: s, coeffs: make([]int32, 0, len(coeffs))}
	}

	for _, c := range coeffs {
		next := make([]trellisPath, cfg.NumStates)
		for s := range next {
			next[s].cost = math.Inf(1)
		}
		for _, p := range paths {
			for bit := 0; bit < 2; bit++ {
				ns := nextState(p.state, bit, cfg.NumStates)
				q := quantizeWithOffset(c, step, cosetOffset(p.state, cfg.NumStates))
				rate := math.Log2(math.Abs(float64(q))+1) + 1
				dist := reconstructionError(c, q, step, cosetOffset(p.state, cfg.NumStates))
				cost := p.cost + dist + cfg.Lambda*rate
				if cost < next[ns].cost {
					coeffsCopy := make([]int32, len(p.coeffs), len(coeffs))
					copy(coeffsCopy, p.coeffs)
					next[ns] = trellisPath{state: ns, cost: cost, coeffs: append(coeffsCopy, q)}
				}
			}
		}
		paths = prunePaths(next, cfg.MaxPrune)
	}

	best := paths[0]
	for _, p := range paths[1:] {
		if p.cost < best.cost {
			best = p
		}
	}
	return best.coeffs, nil
}

// quantizeWithOffset rounds c/step to the nearest integer plus a
// fractional coset offset, matching the reconstruction grid
// reconstructionError uses.
func quantizeWithOffset(c, step, offset float64) int32 {
	return int32(math.Round(c/step - offset))
}

func reconstructionError(c float64, q int32, step, offset float64) float64 {
	r := (float64(q) + offset) * step
	d := c - r
	return d * d
}

// prunePaths optionally discards the highest-cost surviving paths,
// keeping at most maxPrune; maxPrune <= 0 means no pruning.
func prunePaths(paths []trellisPath, maxPrune int) []trellisPath {
	if maxPrune <= 0 || maxPrune >= len(paths) {
		return paths
	}
	sorted := make([]trellisPath, len(paths))
	copy(sorted, paths)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].cost < sorted[j-1].cost; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted[:maxPrune]
}
