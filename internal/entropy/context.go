// Package entropy - context.go implements the EBCOT context modeler.
//
// The context modeler is a pure function from coefficient-neighborhood
// state to one of the 19 EBCOT contexts (9 significance + 5 sign + 3
// magnitude-refinement + 1 run-length + 1 uniform). It never touches the
// MQ coder directly; T1 and the HT coder look up labels here and hand
// them to the arithmetic codec.
package entropy

// Band type constants, also used to index the zero-coding LUT.
const (
	BandLL = iota
	BandHL
	BandLH
	BandHH
)

// lutZCCtx is the significance/cleanup context lookup table.
// Indexed by bandType*256 + packed neighbor significance flags.
// Packed neighbor flags bit layout:
//
//	bit 0: W significant    bit 4: NW significant
//	bit 1: E significant    bit 5: NE significant
//	bit 2: N significant    bit 6: SW significant
//	bit 3: S significant    bit 7: SE significant
//
// Returns one of 9 context labels (CtxZC0..CtxZC8).
var lutZCCtx [4 * 256]uint8

// lutSignCtx and lutSignPred give the sign context label (0-4, mapping to
// CtxSC0..CtxSC4) and the XOR prediction bit for the neighbor-sum index
// (hc+2)*5+(vc+2), hc and vc in [-2,2]; see initSignLUT.
var lutSignCtx [25]uint8
var lutSignPred [25]uint8

func init() {
	initZCLUT()
	initSignLUT()
}

// initZCLUT builds the zero-coding/cleanup context table for all four
// subband families. LL and LH share a family; HL swaps horizontal and
// vertical neighbor roles; HH uses the diagonal-weighted family.
func initZCLUT() {
	for bandType := 0; bandType < 4; bandType++ {
		for packed := 0; packed < 256; packed++ {
			w := (packed >> 0) & 1
			e := (packed >> 1) & 1
			n := (packed >> 2) & 1
			s := (packed >> 3) & 1
			nw := (packed >> 4) & 1
			ne := (packed >> 5) & 1
			sw := (packed >> 6) & 1
			se := (packed >> 7) & 1

			h := w + e
			v := n + s
			d := nw + ne + sw + se

			var ctx int
			switch bandType {
			case BandHL:
				h, v = v, h
				fallthrough
			case BandLL, BandLH:
				switch {
				case h == 2:
					ctx = 8
				case h == 1:
					switch {
					case v >= 1:
						ctx = 7
					case d >= 1:
						ctx = 6
					default:
						ctx = 5
					}
				case v == 2:
					ctx = 4
				case v == 1:
					if d >= 1 {
						ctx = 3
					} else {
						ctx = 2
					}
				case d >= 2:
					ctx = 1
				default:
					ctx = 0
				}
			case BandHH:
				hv := h + v
				switch {
				case hv >= 3:
					ctx = 8
				case hv == 2:
					switch {
					case d >= 2:
						ctx = 7
					case d >= 1:
						ctx = 6
					default:
						ctx = 5
					}
				case hv == 1:
					if d >= 2 {
						ctx = 4
					} else {
						ctx = 3
					}
				default:
					switch {
					case d >= 2:
						ctx = 2
					case d >= 1:
						ctx = 1
					default:
						ctx = 0
					}
				}
			}
			lutZCCtx[bandType*256+packed] = uint8(ctx)
		}
	}
}

// initSignLUT builds the sign-coding context/prediction table, indexed by
// (hContrib+2)*5 + (vContrib+2) where the contributions are clamped to
// [-2,2] signed sums of horizontal/vertical neighbor signs.
func initSignLUT() {
	for hc := -2; hc <= 2; hc++ {
		for vc := -2; vc <= 2; vc++ {
			idx := (hc+2)*5 + (vc + 2)
			ctx, pred := signContext(hc, vc)
			lutSignCtx[idx] = ctx
			lutSignPred[idx] = pred
		}
	}
}

// signContext derives the sign context label and XOR prediction bit from
// clamped horizontal/vertical neighbor sign sums, per ITU-T T.800 Table D.6.
func signContext(hc, vc int) (ctx uint8, pred uint8) {
	h, v := hc, vc
	if h < 0 {
		pred = 1
		h = -h
		v = -v
	}
	if h == 0 && v < 0 {
		pred = 1
		v = -v
	}
	switch {
	case h == 1 && v >= 1:
		ctx = CtxSC4 - CtxSC0
	case h == 1 && v == 0:
		ctx = CtxSC3 - CtxSC0
	case h == 0 && v == 1:
		ctx = CtxSC2 - CtxSC0
	case h == 0 && v == 0 && hc == 0 && vc == 0:
		ctx = CtxSC1 - CtxSC0
	default:
		ctx = CtxSC0 - CtxSC0
	}
	return ctx, pred
}

// zcContextIndex maps clamped neighbor counts to a zero-coding context
// label for the given subband. It is the pure-function form of the
// lookup used by T1's flag-based fast path.
func zcContextIndex(bandType int, w, e, n, s, nw, ne, sw, se bool) int {
	packed := b2i(w) | b2i(e)<<1 | b2i(n)<<2 | b2i(s)<<3 |
		b2i(nw)<<4 | b2i(ne)<<5 | b2i(sw)<<6 | b2i(se)<<7
	return CtxZC0 + int(lutZCCtx[bandType*256+packed])
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// signContextIndex returns the sign context label and the XOR bit to
// apply to the true sign when coding, from signed horizontal/vertical
// neighbor sums clamped to [-1,0,+1] each (so the combined index ranges
// over the 5x5 table built above, restricted to the clamp used by T1).
func signContextIndex(hSum, vSum int) (ctx int, xorBit int) {
	if hSum > 1 {
		hSum = 1
	}
	if hSum < -1 {
		hSum = -1
	}
	if vSum > 1 {
		vSum = 1
	}
	if vSum < -1 {
		vSum = -1
	}
	idx := (hSum+2)*5 + (vSum + 2)
	return CtxSC0 + int(lutSignCtx[idx]), int(lutSignPred[idx])
}

// magnitudeRefinementContext returns one of the 3 magnitude-refinement
// labels: first refinement, subsequent refinement with a significant
// neighbor, or subsequent refinement without one.
func magnitudeRefinementContext(firstRefinement bool, hasSignificantNeighbor bool) int {
	if firstRefinement {
		return CtxMag0
	}
	if hasSignificantNeighbor {
		return CtxMag1
	}
	return CtxMag2
}
