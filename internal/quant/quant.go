// Package quant implements JPEG 2000 scalar, deadzone, and trellis-coded
// quantization of wavelet coefficients.
//
// Quantization sits between the 2-D DWT (internal/dwt) and ROI scaling
// (internal/roi) in the tile-component pipeline: forward-transformed
// float64 (9/7) or already-integer (5/3) coefficients are mapped to the
// signed-magnitude integers the EBCOT/FBCOT block coders operate on.
package quant

import (
	"math"
	"math/bits"
)

// Style selects the quantization mode applied to a subband.
type Style int

const (
	// NoQuantization passes 5/3 reversible coefficients through
	// unchanged (step size 1); required for the lossless path.
	NoQuantization Style = iota
	// ScalarDerived derives every subband's step size from a single
	// base step size and the subband's wavelet gain (SQcd style 1,
	// "scalar derived" in ITU-T T.800 Table A.28).
	ScalarDerived
	// ScalarExpounded carries an explicit, independently chosen step
	// size per subband (SQcd style 2, "scalar expounded").
	ScalarExpounded
	// Deadzone widens the zero bin beyond the plain uniform scalar
	// quantizer's step size, trading low-amplitude detail for rate.
	Deadzone
	// Trellis applies trellis-coded quantization (TCQ): a Viterbi
	// search over a small state machine picks, per coefficient, the
	// coset (and so the reconstruction level) that minimizes
	// distortion plus a rate penalty.
	Trellis
)

// dwtNorms97 holds the OpenJPEG-derived L2 norms of the 9/7 synthesis
// filters, indexed by [decomposition level][orientation], used to convert
// a single base step size into per-subband step sizes. Orientation index:
// 0=LL (only valid at the last level), 1=HL, 2=LH, 3=HH.
var dwtNorms97 = [4][10]float64{
	{1.000, 1.965, 2.022, 2.022, 2.080, 2.089, 2.095, 2.098, 2.099, 2.100},
	{1.430, 1.973, 2.000, 2.000, 2.003, 2.004, 2.004, 2.005, 2.005, 2.005},
	{1.430, 1.973, 2.000, 2.000, 2.003, 2.004, 2.004, 2.005, 2.005, 2.005},
	{1.000, 2.742, 3.960, 3.960, 4.166, 4.209, 4.218, 4.221, 4.222, 4.222},
}

// dwtNorm97 returns the L2 norm for a subband at the given decomposition
// level (1 = finest detail band, increasing toward the LL) and
// orientation, clamped to the table's range.
func dwtNorm97(level, orient int) float64 {
	if level < 0 {
		level = 0
	}
	if level > 9 {
		level = 9
	}
	if orient < 0 || orient > 3 {
		orient = 1
	}
	return dwtNorms97[orient][level]
}

// Gain53 returns the reversible 5/3 subband gain used when deriving a
// subband's effective dynamic range for bit-depth/guard-bit accounting.
// LL=1, HL/LH=sqrt(2), HH=2, per ITU-T T.800 Annex E.1.
func Gain53(orient int) float64 {
	switch orient {
	case 0:
		return 1.0
	case 1, 2:
		return math.Sqrt2
	default:
		return 2.0
	}
}

// Params describes the quantization applied to one tile-component's
// subbands.
type Params struct {
	Style Style
	// BaseStep is the style-1 (ScalarDerived) base step size, ignored
	// for other styles.
	BaseStep float64
	// GuardBits is the number of extra MSB bit-planes reserved to
	// absorb inter-stage bit growth (ITU-T T.800 Annex E.1), typically
	// 1-4.
	GuardBits int
	// DeadzoneWidth scales the width of the zero bin relative to the
	// step size: coefficients with |c| < DeadzoneWidth*step/2 quantize to
	// 0 and the rest as the plain scalar quantizer. Widths up to 2.0 give
	// the plain quantizer's zero bin (-step, step); larger widths widen
	// it (Style must be Deadzone).
	DeadzoneWidth float64
	// Trellis holds the TCQ configuration; only read when Style is
	// Trellis.
	Trellis TrellisConfig
}

// InvalidParameter reports a Params value that cannot be realized (e.g. a
// non-positive step size, or a DeadzoneWidth outside (0, 4]).
type InvalidParameter struct{ Context string }

func (e *InvalidParameter) Error() string { return "quant: invalid parameter: " + e.Context }

// InvalidStepSize reports a step size that under/overflows the packed
// exponent/mantissa representation, or an attempt to decode a malformed
// encoded step.
type InvalidStepSize struct{ Context string }

func (e *InvalidStepSize) Error() string { return "quant: invalid step size: " + e.Context }

// Validate checks the Params for internal consistency.
func (p Params) Validate() error {
	switch p.Style {
	case NoQuantization:
		return nil
	case ScalarDerived:
		if p.BaseStep <= 0 {
			return &InvalidParameter{Context: "ScalarDerived requires BaseStep > 0"}
		}
	case ScalarExpounded:
		// Per-subband steps are supplied directly to Quantize/Dequantize;
		// nothing to validate at the Params level.
	case Deadzone:
		if p.BaseStep <= 0 {
			return &InvalidParameter{Context: "Deadzone requires BaseStep > 0"}
		}
		if p.DeadzoneWidth <= 0 || p.DeadzoneWidth > 4 {
			return &InvalidParameter{Context: "DeadzoneWidth must be in (0, 4]"}
		}
	case Trellis:
		if p.BaseStep <= 0 {
			return &InvalidParameter{Context: "Trellis requires BaseStep > 0"}
		}
		if err := p.Trellis.Validate(); err != nil {
			return err
		}
	default:
		return &InvalidParameter{Context: "unknown quantization style"}
	}
	if p.GuardBits < 0 {
		return &InvalidParameter{Context: "GuardBits must be >= 0"}
	}
	return nil
}

// SubbandStep derives the effective step size for a subband at the given
// decomposition level/orientation, for the ScalarDerived style. Callers
// using ScalarExpounded supply their own per-subband step and should not
// call this.
func SubbandStep(base float64, level, orient int, reversible bool) float64 {
	if reversible {
		return base * Gain53(orient)
	}
	return base / dwtNorm97(level, orient)
}

// EncodeStepSize packs a floating-point step size into the 16-bit
// SPqcd/SPqcc representation: a 5-bit exponent and an 11-bit mantissa,
// Δ = 2^(numbps-exponent) * (1 + mantissa/2048). A step size of exactly 0 encodes
// to (0, 0) (used for NoQuantization / reversible subbands).
func EncodeStepSize(step float64, numbps int) (uint16, error) {
	if step == 0 {
		return 0, nil
	}
	if step < 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return 0, &InvalidStepSize{Context: "step size must be finite and non-negative"}
	}
	// Find exponent e such that step is of the form 2^-e * (1 + m/2048).
	// numbps (the subband's nominal bit depth) anchors the exponent the
	// way T.800 Annex E.1 does: exponent counted down from numbps.
	mant, exp := math.Frexp(step)
	// mant in [0.5, 1), step = mant * 2^exp.
	// Want step = (1+f)*2^(exp-1) with f in [0,1) -> f = 2*mant - 1.
	e := numbps - exp + 1
	if e < 0 {
		e = 0
	}
	if e > 31 {
		e = 31
	}
	f := 2*mant - 1
	if f < 0 {
		f = 0
	}
	m := int(math.Round(f * 2048))
	if m > 2047 {
		m = 2047
		if e > 0 {
			e--
		}
	}
	return uint16(e)<<11 | uint16(m), nil
}

// DecodeStepSize unpacks an encoded step size, given the subband's
// nominal bit depth (numbps) used when it was encoded.
func DecodeStepSize(encoded uint16, numbps int) float64 {
	exp := int(encoded >> 11)
	mant := int(encoded & 0x7FF)
	if exp == 0 && mant == 0 {
		return 0
	}
	return math.Ldexp(1+float64(mant)/2048, numbps-exp+1-1)
}

// log2Ceil returns ceil(log2(n)) for n >= 1, using bits.Len to avoid a
// float round-trip.
func log2Ceil(n uint32) int {
	if n <= 1 {
		return 0
	}
	return bits.Len32(n - 1)
}

// Quantize maps one subband's coefficients to signed-magnitude integers
// using the uniform scalar (or deadzone) quantizer: q = sign(c) *
// floor(|c| / step), with the Deadzone style additionally scaling the
// width of the zero bin.
func Quantize(coeffs []float64, step float64, p Params) ([]int32, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := make([]int32, len(coeffs))
	if p.Style == NoQuantization || step == 0 {
		for i, c := range coeffs {
			out[i] = int32(math.Round(c))
		}
		return out, nil
	}
	dz := 1.0
	if p.Style == Deadzone {
		dz = p.DeadzoneWidth
	}
	threshold := step * dz / 2
	for i, c := range coeffs {
		mag := math.Abs(c)
		if mag < threshold {
			out[i] = 0
			continue
		}
		q := math.Floor(mag / step)
		if c < 0 {
			q = -q
		}
		out[i] = int32(q)
	}
	return out, nil
}

// Dequantize reconstructs float64 samples from quantized integers using
// the midpoint reconstruction rule r = sign(q) * (|q| + 0.5) * step
// (ITU-T T.800 Annex E.1 reconstruction formula).
func Dequantize(q []int32, step float64, p Params) []float64 {
	out := make([]float64, len(q))
	if p.Style == NoQuantization || step == 0 {
		for i, v := range q {
			out[i] = float64(v)
		}
		return out
	}
	for i, v := range q {
		if v == 0 {
			out[i] = 0
			continue
		}
		mag := float64(abs32(v))
		r := (mag + 0.5) * step
		if v < 0 {
			r = -r
		}
		out[i] = r
	}
	return out
}

// QuantizeReversible quantizes integer 5/3 coefficients: identity for
// NoQuantization (the lossless path), otherwise an integer-preserving
// scalar quantizer matching Quantize's rounding rule on pre-converted
// float64 input. Integer subbands bypass quantization entirely when
// p.Style is NoQuantization, preserving exactness end to end.
func QuantizeReversible(coeffs []int32, step float64, p Params) ([]int32, error) {
	if p.Style == NoQuantization || step == 0 {
		out := make([]int32, len(coeffs))
		copy(out, coeffs)
		return out, nil
	}
	f := make([]float64, len(coeffs))
	for i, c := range coeffs {
		f[i] = float64(c)
	}
	return Quantize(f, step, p)
}

// DequantizeReversible is QuantizeReversible's inverse for the integer
// 5/3 path, rounding the float64 reconstruction back to int32.
func DequantizeReversible(q []int32, step float64, p Params) []int32 {
	if p.Style == NoQuantization || step == 0 {
		out := make([]int32, len(q))
		copy(out, q)
		return out
	}
	f := Dequantize(q, step, p)
	out := make([]int32, len(f))
	for i, v := range f {
		out[i] = int32(math.Round(v))
	}
	return out
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
