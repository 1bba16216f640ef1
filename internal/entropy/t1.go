// Package entropy - t1.go implements Tier-1 (EBCOT) bit-plane coding.
//
// EBCOT (Embedded Block Coding with Optimized Truncation) drives the MQ
// coder and the context modeler across three passes per bit-plane:
// significance propagation, magnitude refinement, and cleanup. Cleanup
// additionally runs a run-length shortcut for empty 4-sample stripes.
package entropy

import (
	"math"
	"sync"
)

// T1Flags is a per-coefficient bitset tracking significance and
// refinement state. Kept as a bitset (not individual booleans) so
// neighborhood queries are a handful of bitwise operations.
type T1Flags uint8

const (
	// T1Sig marks a coefficient as significant (a 1 bit has been coded).
	T1Sig T1Flags = 1 << iota
	// T1Visit marks a coefficient as coded in the current bit-plane pass.
	T1Visit
	// T1Refine marks a coefficient as having undergone its first refinement.
	T1Refine
	// T1SignNeg marks a coefficient's decoded/encoded sign as negative.
	T1SignNeg
)

// TerminationMode selects how the MQ segment(s) for a code-block are
// flushed.
type TerminationMode int

const (
	// TermDefault flushes once at the end of the code-block.
	TermDefault TerminationMode = iota
	// TermErrorResilient flushes after every coding pass.
	TermErrorResilient
	// TermBypass runs passes 1 and 2 in raw (bypass) mode starting at
	// BypassStartPlane, keeping pass 3 adaptive; each mode switch is
	// byte-aligned.
	TermBypass
)

// CodingOptions is a small record of flags governing T1 encode/decode,
// rather than a string-keyed options map.
type CodingOptions struct {
	Termination      TerminationMode
	BypassStartPlane int // bit-plane (from MSB, 0-based from the top) at which bypass mode begins
}

// ErrTruncatedPayload is returned (not panicked) when the MQ bitstream
// ends before all expected coding passes have been consumed. The
// coefficients already decoded remain valid; this is a graceful
// quality-truncation signal, not a hard failure.
type ErrTruncatedPayload struct{ Context string }

func (e *ErrTruncatedPayload) Error() string {
	return "entropy: truncated payload decoding " + e.Context
}

// ErrInvalidData is returned when an encode request's coefficient slice
// does not match the declared code-block dimensions.
type ErrInvalidData struct{ Context string }

func (e *ErrInvalidData) Error() string { return "entropy: invalid data: " + e.Context }

// T1 implements Tier-1 EBCOT coding for a single code-block.
type T1 struct {
	width, height int

	// data holds absolute coefficient magnitudes; signs live in flags.
	data  []int32
	flags []T1Flags // (width+2)*(height+2), one-coefficient border

	bandType int
	numBPS   int

	mqEnc *MQEncoder
	mqDec *MQDecoder

	rawEnc *RawEncoder
	rawDec *RawDecoder

	curBypass  bool
	decPayload []byte
	decCursor  int

	opts CodingOptions

	// passOffsets records, when opts.Termination is TermErrorResilient,
	// the cumulative byte offset into payload at the end of each coding
	// pass (quality-layer truncation metadata; see PassOffsets).
	passOffsets []int
}

// PassOffsets returns the cumulative byte offset, within the payload
// most recently produced by Encode, at the end of each coding pass. It
// is only populated when Encode was called with
// CodingOptions{Termination: TermErrorResilient}, since only that mode
// byte-aligns every pass; other termination modes return nil.
func (t *T1) PassOffsets() []int { return t.passOffsets }

// NewT1 creates a new T1 encoder/decoder for a code-block of the given
// dimensions (each must be > 0, product <= 4096 per the code-block data
// model).
func NewT1(width, height int) *T1 {
	t := &T1{}
	t.resize(width, height)
	return t
}

func (t *T1) resize(width, height int) {
	t.width = width
	t.height = height
	size := width * height
	if cap(t.data) < size {
		t.data = make([]int32, size)
	} else {
		t.data = t.data[:size]
	}
	fsize := (width + 2) * (height + 2)
	if cap(t.flags) < fsize {
		t.flags = make([]T1Flags, fsize)
	} else {
		t.flags = t.flags[:fsize]
		for i := range t.flags {
			t.flags[i] = 0
		}
	}
}

// t1Pool provides pooled T1 coders to reduce allocations across the
// code-block pipeline's worker pool.
var t1Pool = sync.Pool{
	New: func() interface{} {
		return NewT1(64, 64)
	},
}

// GetT1 returns a pooled T1 coder sized to width x height.
func GetT1(width, height int) *T1 {
	t := t1Pool.Get().(*T1)
	t.resize(width, height)
	return t
}

// PutT1 returns a T1 coder to the pool.
func PutT1(t *T1) { t1Pool.Put(t) }

func (t *T1) flagIndex(x, y int) int { return (y+1)*(t.width+2) + x + 1 }

func (t *T1) hasFlag(x, y int, f T1Flags) bool { return t.flags[t.flagIndex(x, y)]&f != 0 }
func (t *T1) setFlag(x, y int, f T1Flags)      { t.flags[t.flagIndex(x, y)] |= f }
func (t *T1) clearFlag(x, y int, f T1Flags)    { t.flags[t.flagIndex(x, y)] &^= f }

// neighborSig reports which of the 8 neighbors of (x,y) are significant.
func (t *T1) neighborSig(x, y int) (w, e, n, s, nw, ne, sw, se bool) {
	idx := t.flagIndex(x, y)
	stride := t.width + 2
	sig := func(i int) bool { return t.flags[i]&T1Sig != 0 }
	return sig(idx - 1), sig(idx + 1), sig(idx - stride), sig(idx + stride),
		sig(idx - stride - 1), sig(idx - stride + 1), sig(idx + stride - 1), sig(idx + stride + 1)
}

func (t *T1) hasSignificantNeighbor(x, y int) bool {
	w, e, n, s, nw, ne, sw, se := t.neighborSig(x, y)
	return w || e || n || s || nw || ne || sw || se
}

// signSums returns the signed horizontal and vertical neighbor sign
// contributions used by the sign-coding context (each in [-2,2], from two
// neighbors per axis; signContextIndex clamps them to [-1,1]).
func (t *T1) signSums(x, y int) (h, v int) {
	idx := t.flagIndex(x, y)
	stride := t.width + 2
	contrib := func(i int) int {
		f := t.flags[i]
		if f&T1Sig == 0 {
			return 0
		}
		if f&T1SignNeg != 0 {
			return -1
		}
		return 1
	}
	h = contrib(idx-1) + contrib(idx+1)
	v = contrib(idx-stride) + contrib(idx+stride)
	return h, v
}

func (t *T1) zcContext(x, y int) int {
	w, e, n, s, nw, ne, sw, se := t.neighborSig(x, y)
	return zcContextIndex(t.bandType, w, e, n, s, nw, ne, sw, se)
}

func (t *T1) scContext(x, y int) (ctx, pred int) {
	h, v := t.signSums(x, y)
	return signContextIndex(h, v)
}

func (t *T1) mrContext(x, y int) int {
	first := !t.hasFlag(x, y, T1Refine)
	return magnitudeRefinementContext(first, t.hasSignificantNeighbor(x, y))
}

// computeBitDepth returns the number of magnitude bit-planes M and the
// count of leading all-zero bit-planes for the given bit depth:
// M = ceil(log2(max_abs+1)), zero_bit_planes = bit_depth-M.
func computeBitDepth(maxAbs int32, bitDepth int) (m, zeroBitPlanes int) {
	if maxAbs == 0 {
		return 0, bitDepth
	}
	m = int(math.Ceil(math.Log2(float64(maxAbs) + 1)))
	zeroBitPlanes = bitDepth - m
	if zeroBitPlanes < 0 {
		zeroBitPlanes = 0
	}
	return m, zeroBitPlanes
}

// Encode runs the full EBCOT Tier-1 pipeline over signed coefficients
// laid out row-major (len(coeffs) == width*height) and returns the
// payload, the number of coding passes emitted, and the zero-bit-plane
// count.
func (t *T1) Encode(coeffs []int32, width, height, bandType, bitDepth int, opts CodingOptions) (payload []byte, passCount, zeroBitPlanes int, err error) {
	if len(coeffs) != width*height {
		return nil, 0, 0, &ErrInvalidData{Context: "coefficient slice does not match width*height"}
	}
	t.resize(width, height)
	t.bandType = bandType
	t.opts = opts

	maxAbs := int32(0)
	for i, c := range coeffs {
		if c < 0 {
			t.setFlag(i%width, i/width, T1SignNeg)
			if -c > maxAbs {
				maxAbs = -c
			}
		} else if c > maxAbs {
			maxAbs = c
		}
		t.data[i] = abs32(c)
	}

	m, zeroBitPlanes := computeBitDepth(maxAbs, bitDepth)
	t.numBPS = m
	if m == 0 {
		return nil, 0, zeroBitPlanes, nil
	}

	t.mqEnc = NewMQEncoder()
	t.rawEnc = nil
	t.curBypass = false
	var segments [][]byte
	t.passOffsets = nil
	passCount = 0
	cumulative := 0

	bypassActive := func(bp int) bool {
		return opts.Termination == TermBypass && (m-1-bp) >= opts.BypassStartPlane
	}

	flushPass := func() {
		if opts.Termination == TermErrorResilient {
			seg := t.mqEnc.TerminatePass()
			segments = append(segments, seg)
			cumulative += len(seg)
			t.passOffsets = append(t.passOffsets, cumulative)
		}
	}

	for bp := m - 1; bp >= 0; bp-- {
		isFirst := bp == m-1
		if !isFirst {
			t.switchEncMode(bypassActive(bp), &segments)
			t.encodeSignificancePass(bp, bypassActive(bp))
			passCount++
			flushPass()
			t.switchEncMode(bypassActive(bp), &segments)
			t.encodeMagnitudeRefinementPass(bp, bypassActive(bp))
			passCount++
			flushPass()
		}
		t.switchEncMode(false, &segments)
		t.encodeCleanupPass(bp)
		passCount++
		flushPass()
		t.clearVisited()
	}

	switch opts.Termination {
	case TermErrorResilient:
		payload = joinSegments(segments)
	case TermBypass:
		t.switchEncMode(false, &segments)
		segments = append(segments, t.mqEnc.Flush())
		payload = joinSegments(segments)
	default:
		payload = t.mqEnc.Flush()
	}
	return payload, passCount, zeroBitPlanes, nil
}

// switchEncMode flushes and retires the currently active coder when the
// requested mode differs from it, appending the flushed bytes to
// segments (byte-aligned), then starts a fresh coder for the new mode.
func (t *T1) switchEncMode(bypass bool, segments *[][]byte) {
	if bypass == t.curBypass {
		return
	}
	if t.curBypass {
		*segments = append(*segments, t.rawEnc.Flush())
		t.rawEnc = nil
	} else {
		*segments = append(*segments, t.mqEnc.Flush())
		t.mqEnc = NewMQEncoder()
	}
	t.curBypass = bypass
	if bypass {
		t.rawEnc = NewRawEncoder()
	}
}

// switchDecMode mirrors switchEncMode on the decode side: when the
// requested mode differs from the active one, it advances decCursor
// past the bytes the outgoing coder consumed and starts a fresh coder
// over the remaining payload for the new mode.
func (t *T1) switchDecMode(bypass bool) {
	if bypass == t.curBypass {
		return
	}
	if t.curBypass {
		t.decCursor += t.rawDec.BytePos()
		t.rawDec = nil
	} else {
		t.decCursor += t.mqDec.BytePos()
		t.mqDec = nil
	}
	t.curBypass = bypass
	if t.decCursor > len(t.decPayload) {
		t.decCursor = len(t.decPayload)
	}
	rest := t.decPayload[t.decCursor:]
	if bypass {
		t.rawDec = NewRawDecoder(rest)
	} else {
		t.mqDec = NewMQDecoder(rest)
	}
}

// advanceDecSegment restarts the MQ decoder at the next byte-aligned
// segment boundary, mirroring the encoder's per-pass TerminatePass
// flush under error-resilient termination.
func (t *T1) advanceDecSegment() {
	t.decCursor += t.mqDec.BytePos()
	if t.decCursor > len(t.decPayload) {
		t.decCursor = len(t.decPayload)
	}
	t.mqDec = NewMQDecoder(t.decPayload[t.decCursor:])
}

func joinSegments(segs [][]byte) []byte {
	total := 0
	for _, s := range segs {
		total += len(s)
	}
	out := make([]byte, 0, total)
	for _, s := range segs {
		out = append(out, s...)
	}
	return out
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// clearVisited clears the per-pass Visit marker ahead of the next
// bit-plane; significance and refinement state persist across planes.
func (t *T1) clearVisited() {
	for i := range t.flags {
		t.flags[i] &^= T1Visit
	}
}

// Decode reconstructs a code-block's coefficients from an MQ/bypass
// payload. It never panics on malformed input: if the stream runs out
// before passCount passes have been consumed, it returns the
// already-decoded magnitudes together with ErrTruncatedPayload.
func (t *T1) Decode(payload []byte, width, height, bandType, bitDepth, passCount, zeroBitPlanes int, opts CodingOptions) ([]int32, error) {
	t.resize(width, height)
	t.bandType = bandType
	t.opts = opts
	// A pooled coder still holds the previous block's magnitudes, and
	// coefficients that never become significant are not written below.
	for i := range t.data {
		t.data[i] = 0
	}

	m := bitDepth - zeroBitPlanes
	if m <= 0 {
		return make([]int32, width*height), nil
	}
	t.numBPS = m
	t.decPayload = payload
	t.decCursor = 0
	t.curBypass = false
	t.mqDec = NewMQDecoder(t.decPayload)
	t.rawDec = nil

	bypassActive := func(bp int) bool {
		return opts.Termination == TermBypass && (m-1-bp) >= opts.BypassStartPlane
	}

	passesLeft := passCount
	truncated := false

	consumePass := func(bypass bool, f func()) {
		if passesLeft <= 0 {
			truncated = true
			return
		}
		if opts.Termination == TermBypass {
			t.switchDecMode(bypass)
		}
		f()
		passesLeft--
		if !t.curBypass && t.mqDec.Exhausted() {
			truncated = true
		}
		if opts.Termination == TermErrorResilient && !truncated {
			t.advanceDecSegment()
		}
	}

	for bp := m - 1; bp >= 0 && !truncated; bp-- {
		isFirst := bp == m-1
		if !isFirst {
			consumePass(bypassActive(bp), func() { t.decodeSignificancePass(bp, bypassActive(bp)) })
			if truncated {
				break
			}
			consumePass(bypassActive(bp), func() { t.decodeMagnitudeRefinementPass(bp, bypassActive(bp)) })
			if truncated {
				break
			}
		}
		consumePass(false, func() { t.decodeCleanupPass(bp) })
		t.clearVisited()
	}

	result := make([]int32, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := t.data[y*width+x]
			if t.hasFlag(x, y, T1SignNeg) {
				v = -v
			}
			result[y*width+x] = v
		}
	}

	if truncated {
		return result, &ErrTruncatedPayload{Context: "code-block MQ stream"}
	}
	return result, nil
}

// stripeHeight is the fixed stripe size used for all three passes'
// scan order, per the "Stripe order" rule: vertical stripes of height
// 4, left to right; within a stripe, top to bottom.
const stripeHeight = 4

func forEachStripeColumn(height int, visit func(y0, y1 int)) {
	for y0 := 0; y0 < height; y0 += stripeHeight {
		y1 := y0 + stripeHeight
		if y1 > height {
			y1 = height
		}
		visit(y0, y1)
	}
}

func (t *T1) encodeSignificancePass(bp int, bypass bool) {
	bit := int32(1) << bp
	forEachStripeColumn(t.height, func(y0, y1 int) {
		for x := 0; x < t.width; x++ {
			for y := y0; y < y1; y++ {
				if t.hasFlag(x, y, T1Sig) || !t.hasSignificantNeighbor(x, y) {
					continue
				}
				sig := 0
				if t.data[y*t.width+x]&bit != 0 {
					sig = 1
				}
				t.codeBit(t.zcContext(x, y), sig, bypass)
				t.setFlag(x, y, T1Visit)
				if sig != 0 {
					t.encodeSign(x, y, bypass)
					t.setFlag(x, y, T1Sig)
				}
			}
		}
	})
}

func (t *T1) encodeSign(x, y int, bypass bool) {
	ctx, pred := t.scContext(x, y)
	sign := 0
	if t.hasFlag(x, y, T1SignNeg) {
		sign = 1
	}
	t.codeBit(ctx, sign^pred, bypass)
}

func (t *T1) encodeMagnitudeRefinementPass(bp int, bypass bool) {
	bit := int32(1) << bp
	forEachStripeColumn(t.height, func(y0, y1 int) {
		for x := 0; x < t.width; x++ {
			for y := y0; y < y1; y++ {
				if !t.hasFlag(x, y, T1Sig) || t.hasFlag(x, y, T1Visit) {
					continue
				}
				refBit := 0
				if t.data[y*t.width+x]&bit != 0 {
					refBit = 1
				}
				t.codeBit(t.mrContext(x, y), refBit, bypass)
				t.setFlag(x, y, T1Refine)
				t.setFlag(x, y, T1Visit)
			}
		}
	})
}

func (t *T1) encodeCleanupPass(bp int) {
	bit := int32(1) << bp
	forEachStripeColumn(t.height, func(y0, y1 int) {
		for x := 0; x < t.width; x++ {
			if y1-y0 == stripeHeight && t.canUseRunLength(x, y0, bit) {
				t.encodeRunLength(x, y0, bit)
				continue
			}
			for y := y0; y < y1; y++ {
				if t.hasFlag(x, y, T1Visit) {
					continue
				}
				if t.hasFlag(x, y, T1Sig) {
					continue
				}
				sig := 0
				if t.data[y*t.width+x]&bit != 0 {
					sig = 1
				}
				t.codeBit(t.zcContext(x, y), sig, false)
				if sig != 0 {
					t.encodeSign(x, y, false)
					t.setFlag(x, y, T1Sig)
				}
			}
		}
	})
}

// canUseRunLength reports whether the 4-sample stripe segment at column
// x, rows [y,y+4) is entirely insignificant with an empty neighborhood,
// making it eligible for the run-length shortcut.
func (t *T1) canUseRunLength(x, y int, bit int32) bool {
	for yy := y; yy < y+stripeHeight; yy++ {
		if t.hasFlag(x, yy, T1Sig) || t.hasSignificantNeighbor(x, yy) {
			return false
		}
	}
	return true
}

func (t *T1) encodeRunLength(x, y int, bit int32) {
	firstSig := -1
	for i := 0; i < stripeHeight; i++ {
		if t.data[(y+i)*t.width+x]&bit != 0 {
			firstSig = i
			break
		}
	}

	if firstSig == -1 {
		t.codeBit(CtxRL, 0, false)
		return
	}

	t.codeBit(CtxRL, 1, false)
	t.codeBit(CtxUni, (firstSig>>1)&1, false)
	t.codeBit(CtxUni, firstSig&1, false)

	t.encodeSign(x, y+firstSig, false)
	t.setFlag(x, y+firstSig, T1Sig)

	for i := firstSig + 1; i < stripeHeight; i++ {
		sig := 0
		if t.data[(y+i)*t.width+x]&bit != 0 {
			sig = 1
		}
		t.codeBit(t.zcContext(x, y+i), sig, false)
		if sig != 0 {
			t.encodeSign(x, y+i, false)
			t.setFlag(x, y+i, T1Sig)
		}
	}
}

func (t *T1) decodeSignificancePass(bp int, bypass bool) {
	bit := int32(1) << bp
	forEachStripeColumn(t.height, func(y0, y1 int) {
		for x := 0; x < t.width; x++ {
			for y := y0; y < y1; y++ {
				if t.hasFlag(x, y, T1Sig) || !t.hasSignificantNeighbor(x, y) {
					continue
				}
				sig := t.decodeBit(t.zcContext(x, y), bypass)
				t.setFlag(x, y, T1Visit)
				if sig != 0 {
					t.data[y*t.width+x] = bit
					t.decodeSign(x, y, bypass)
					t.setFlag(x, y, T1Sig)
				}
			}
		}
	})
}

func (t *T1) decodeSign(x, y int, bypass bool) {
	ctx, pred := t.scContext(x, y)
	sign := t.decodeBit(ctx, bypass) ^ pred
	if sign != 0 {
		t.setFlag(x, y, T1SignNeg)
	}
}

func (t *T1) decodeMagnitudeRefinementPass(bp int, bypass bool) {
	bit := int32(1) << bp
	forEachStripeColumn(t.height, func(y0, y1 int) {
		for x := 0; x < t.width; x++ {
			for y := y0; y < y1; y++ {
				if !t.hasFlag(x, y, T1Sig) || t.hasFlag(x, y, T1Visit) {
					continue
				}
				if t.decodeBit(t.mrContext(x, y), bypass) != 0 {
					t.data[y*t.width+x] |= bit
				}
				t.setFlag(x, y, T1Refine)
				t.setFlag(x, y, T1Visit)
			}
		}
	})
}

func (t *T1) decodeCleanupPass(bp int) {
	bit := int32(1) << bp
	forEachStripeColumn(t.height, func(y0, y1 int) {
		for x := 0; x < t.width; x++ {
			if y1-y0 == stripeHeight && t.canUseRunLength(x, y0, bit) {
				t.decodeRunLength(x, y0, bit)
				continue
			}
			for y := y0; y < y1; y++ {
				if t.hasFlag(x, y, T1Visit) || t.hasFlag(x, y, T1Sig) {
					continue
				}
				sig := t.decodeBit(t.zcContext(x, y), false)
				if sig != 0 {
					t.data[y*t.width+x] = bit
					t.decodeSign(x, y, false)
					t.setFlag(x, y, T1Sig)
				}
			}
		}
	})
}

func (t *T1) decodeRunLength(x, y int, bit int32) {
	if t.decodeBit(CtxRL, false) == 0 {
		return
	}
	pos := t.decodeBit(CtxUni, false) << 1
	pos |= t.decodeBit(CtxUni, false)

	t.data[(y+pos)*t.width+x] = bit
	t.decodeSign(x, y+pos, false)
	t.setFlag(x, y+pos, T1Sig)

	for i := pos + 1; i < stripeHeight; i++ {
		if t.decodeBit(t.zcContext(x, y+i), false) != 0 {
			t.data[(y+i)*t.width+x] = bit
			t.decodeSign(x, y+i, false)
			t.setFlag(x, y+i, T1Sig)
		}
	}
}

// codeBit and decodeBit route through either the adaptive MQ coder or
// the raw bypass coder, per the bypass/adaptive mode switch. Bypass
// coding is only ever requested for passes 1 and 2 under TermBypass.
func (t *T1) codeBit(ctx, bit int, bypass bool) {
	if bypass {
		if t.rawEnc == nil {
			t.rawEnc = NewRawEncoder()
		}
		t.rawEnc.EncodeBit(bit)
		return
	}
	t.mqEnc.Encode(ctx, bit)
}

func (t *T1) decodeBit(ctx int, bypass bool) int {
	if bypass {
		if t.rawDec == nil {
			t.rawDec = NewRawDecoder(nil)
		}
		return t.rawDec.DecodeBit()
	}
	return t.mqDec.Decode(ctx)
}
