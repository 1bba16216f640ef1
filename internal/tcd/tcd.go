// Package tcd implements the tile-component coordinator: the pipeline
// that takes a tile-component's spatial samples through the forward
// wavelet transform, quantization, ROI scaling, code-block partitioning,
// and Tier-1 (EBCOT) or HT (FBCOT) entropy coding, and back again.
//
// This package owns the Decomposition/CodeBlock data model spec.md §3
// defines; it produces and consumes the "(bytes, pass_count,
// zero_bit_planes, termination_offsets)" code-block tuple, never
// codestream marker bytes - packet/marker serialization is an external
// collaborator (spec.md §1, §6).
package tcd

import (
	"math/bits"

	"golang.org/x/sync/errgroup"

	"github.com/halcyon-imaging/jpeg2000/internal/dwt"
	"github.com/halcyon-imaging/jpeg2000/internal/entropy"
	"github.com/halcyon-imaging/jpeg2000/internal/quant"
	"github.com/halcyon-imaging/jpeg2000/internal/roi"
)

// Orientation aliases the entropy package's subband/context-modeler band
// constants so callers of this package never need to import internal/entropy
// directly just to name a subband.
const (
	BandLL = entropy.BandLL
	BandHL = entropy.BandHL
	BandLH = entropy.BandLH
	BandHH = entropy.BandHH
)

// Filter selects the lifting wavelet kernel.
type Filter int

const (
	Reversible53 Filter = iota
	Irreversible97
)

// CodingMode selects the Tier-1 block coder.
type CodingMode int

const (
	EBCOT CodingMode = iota
	HT
)

// InvalidParameter reports an Options value that cannot drive the
// pipeline (non-positive dimensions, an unsupported coding mode, etc).
type InvalidParameter struct{ Context string }

func (e *InvalidParameter) Error() string { return "tcd: invalid parameter: " + e.Context }

// Options configures one tile-component's forward/inverse pipeline.
type Options struct {
	Filter   Filter
	Boundary dwt.BoundaryMode
	Levels   int // number of DWT decomposition levels

	Quant quant.Params

	ROI []roi.Region

	Coding            CodingMode
	BitDepth          int // nominal per-subband bit depth fed to the entropy coder
	Termination       entropy.TerminationMode
	BypassStartPlane  int
	CodeBlockWidth    int
	CodeBlockHeight   int
	AdaptiveBlockSize bool
	Aggressiveness    float64 // 0..1, see AnalyzeBlockSize

	MaxWorkers int // 0 = let errgroup run unbounded
}

func (o Options) validate() error {
	if o.Levels < 0 {
		return &InvalidParameter{Context: "Levels must be >= 0"}
	}
	if o.CodeBlockWidth <= 0 || o.CodeBlockHeight <= 0 {
		return &InvalidParameter{Context: "code-block dimensions must be positive"}
	}
	return nil
}

// PassBoundary records the cumulative byte offset, within a code-block's
// payload, at the end of one coding pass - the quality-layer truncation
// metadata spec.md §3's "quality layer contribution" data model calls
// for. Only populated for EBCOT blocks coded with TermErrorResilient,
// since only that mode byte-aligns every pass.
type PassBoundary struct {
	PassIndex  int
	ByteOffset int
}

// CodeBlock is one entropy-coded block's result: its position within its
// subband's coefficient grid and its coded payload plus the bookkeeping
// (pass count, leading all-zero bit-planes) a decoder needs to invert it.
type CodeBlock struct {
	X0, Y0, X1, Y1 int // bounds within the parent subband's coefficient grid
	Payload        []byte
	PassCount      int
	ZeroBitPlanes  int
	BitPlanes      int
	Passes         []PassBoundary
}

func (cb CodeBlock) Width() int  { return cb.X1 - cb.X0 }
func (cb CodeBlock) Height() int { return cb.Y1 - cb.Y0 }

// Subband is one LL/HL/LH/HH subband of a Decomposition: its position in
// the decomposition level hierarchy, its coefficient-grid dimensions,
// and its code-blocks.
type Subband struct {
	Orientation int // BandLL, BandHL, BandLH, or BandHH
	Level       int // 1 = finest detail level; the LL subband uses Levels
	Width       int
	Height      int
	CodeBlocks  []CodeBlock
}

// Decomposition is the full multi-level wavelet decomposition of one
// tile-component: the LL subband first, then each level's HL/LH/HH detail
// subbands from level 1 (finest) to the coarsest level.
type Decomposition struct {
	Width    int
	Height   int
	Levels   int
	Subbands []Subband
}

// subbandLayout describes one subband's position in the Mallat-pyramid
// buffer, shared by both the 5/3 integer and 9/7 float paths.
type subbandLayout struct {
	orientation int
	level       int
	bounds      dwt.SubbandBounds
}

// computeLayout derives each subband's bounds within the full
// width x height transform buffer, coarsest LL first.
func computeLayout(width, height, levels int) []subbandLayout {
	if levels == 0 {
		return []subbandLayout{{BandLL, 0, dwt.SubbandBounds{X0: 0, Y0: 0, X1: width, Y1: height}}}
	}
	layouts := make([]subbandLayout, 0, 3*levels+1)
	for level := 1; level <= levels; level++ {
		ll, hl, lh, hh := dwt.CalculateSubbands(width, height, level-1)
		if level == levels {
			layouts = append(layouts, subbandLayout{BandLL, levels, ll})
		}
		layouts = append(layouts,
			subbandLayout{BandHL, level, hl},
			subbandLayout{BandLH, level, lh},
			subbandLayout{BandHH, level, hh},
		)
	}
	// Reorder so the LL (pushed mid-loop at level==levels) leads.
	reordered := make([]subbandLayout, 0, len(layouts))
	for _, l := range layouts {
		if l.orientation == BandLL {
			reordered = append(reordered, l)
		}
	}
	for _, l := range layouts {
		if l.orientation != BandLL {
			reordered = append(reordered, l)
		}
	}
	return reordered
}

func extractInt32(buf []int32, width int, b dwt.SubbandBounds) []int32 {
	w, h := b.X1-b.X0, b.Y1-b.Y0
	out := make([]int32, w*h)
	for y := 0; y < h; y++ {
		src := (b.Y0+y)*width + b.X0
		copy(out[y*w:(y+1)*w], buf[src:src+w])
	}
	return out
}

func insertInt32(buf []int32, width int, b dwt.SubbandBounds, sub []int32) {
	w := b.X1 - b.X0
	h := b.Y1 - b.Y0
	for y := 0; y < h; y++ {
		dst := (b.Y0+y)*width + b.X0
		copy(buf[dst:dst+w], sub[y*w:(y+1)*w])
	}
}

func extractFloat64(buf []float64, width int, b dwt.SubbandBounds) []float64 {
	w, h := b.X1-b.X0, b.Y1-b.Y0
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		src := (b.Y0+y)*width + b.X0
		copy(out[y*w:(y+1)*w], buf[src:src+w])
	}
	return out
}

func insertFloat64(buf []float64, width int, b dwt.SubbandBounds, sub []float64) {
	w := b.X1 - b.X0
	h := b.Y1 - b.Y0
	for y := 0; y < h; y++ {
		dst := (b.Y0+y)*width + b.X0
		copy(buf[dst:dst+w], sub[y*w:(y+1)*w])
	}
}

// EncodeTileComponent runs the forward pipeline - DWT, quantization, ROI
// scaling, code-block partitioning, and entropy coding - over one
// tile-component's spatial samples.
func EncodeTileComponent(samples []int32, width, height int, opts Options) (Decomposition, error) {
	if err := opts.validate(); err != nil {
		return Decomposition{}, err
	}
	if len(samples) != width*height {
		return Decomposition{}, &InvalidParameter{Context: "samples length does not match width*height"}
	}

	var blockW, blockH = opts.CodeBlockWidth, opts.CodeBlockHeight
	if opts.AdaptiveBlockSize {
		blockW, blockH = AnalyzeBlockSize(samples, width, height, opts.Aggressiveness)
	}

	layouts := computeLayout(width, height, opts.Levels)
	decomp := Decomposition{Width: width, Height: height, Levels: opts.Levels}

	switch opts.Filter {
	case Reversible53:
		buf := make([]int32, len(samples))
		copy(buf, samples)
		if opts.Levels > 0 {
			dwt.DecomposeMultiLevel53(buf, width, height, opts.Levels, opts.Boundary)
		}
		for _, l := range layouts {
			coeffs := extractInt32(buf, width, l.bounds)
			sb, err := encodeSubbandReversible(coeffs, l, opts)
			if err != nil {
				return Decomposition{}, err
			}
			decomp.Subbands = append(decomp.Subbands, sb)
		}
	case Irreversible97:
		buf := make([]float64, len(samples))
		for i, v := range samples {
			buf[i] = float64(v)
		}
		if opts.Levels > 0 {
			dwt.DecomposeMultiLevel97(buf, width, height, opts.Levels, opts.Boundary)
		}
		for _, l := range layouts {
			coeffs := extractFloat64(buf, width, l.bounds)
			sb, err := encodeSubbandIrreversible(coeffs, l, opts)
			if err != nil {
				return Decomposition{}, err
			}
			decomp.Subbands = append(decomp.Subbands, sb)
		}
	default:
		return Decomposition{}, &InvalidParameter{Context: "unknown Filter"}
	}

	_ = blockW
	_ = blockH
	return decomp, nil
}

func subbandROILevel(l subbandLayout, totalLevels int) int {
	if l.orientation == BandLL {
		return totalLevels
	}
	return l.level
}

func encodeSubbandReversible(coeffs []int32, l subbandLayout, opts Options) (Subband, error) {
	w, h := l.bounds.X1-l.bounds.X0, l.bounds.Y1-l.bounds.Y0
	q, err := quant.QuantizeReversible(coeffs, subbandStep(opts, l, true), opts.Quant)
	if err != nil {
		return Subband{}, err
	}
	applyROI(q, opts.ROI, w, h, subbandROILevel(l, opts.Levels))
	blocks, err := partitionAndEncode(q, w, h, l.orientation, opts)
	if err != nil {
		return Subband{}, err
	}
	return Subband{Orientation: l.orientation, Level: l.level, Width: w, Height: h, CodeBlocks: blocks}, nil
}

func encodeSubbandIrreversible(coeffs []float64, l subbandLayout, opts Options) (Subband, error) {
	w, h := l.bounds.X1-l.bounds.X0, l.bounds.Y1-l.bounds.Y0
	step := subbandStep(opts, l, false)
	q, err := quant.Quantize(coeffs, step, opts.Quant)
	if err != nil {
		return Subband{}, err
	}
	applyROI(q, opts.ROI, w, h, subbandROILevel(l, opts.Levels))
	blocks, err := partitionAndEncode(q, w, h, l.orientation, opts)
	if err != nil {
		return Subband{}, err
	}
	return Subband{Orientation: l.orientation, Level: l.level, Width: w, Height: h, CodeBlocks: blocks}, nil
}

func subbandStep(opts Options, l subbandLayout, reversible bool) float64 {
	switch opts.Quant.Style {
	case quant.NoQuantization:
		return 0
	case quant.ScalarExpounded:
		return opts.Quant.BaseStep
	default:
		orient := orientationIndex(l.orientation)
		return quant.SubbandStep(opts.Quant.BaseStep, l.level, orient, reversible)
	}
}

// orientationIndex maps a BandXX constant to quant's 0..3 orientation
// index (0=LL,1=HL,2=LH,3=HH), which matches the BandXX ordering exactly.
func orientationIndex(band int) int { return band }

func applyROI(coeffs []int32, regions []roi.Region, w, h, level int) {
	if len(regions) == 0 {
		return
	}
	shift := roi.SubbandMask(regions, w, h, level)
	roi.Apply(coeffs, shift)
}

func removeROI(coeffs []int32, regions []roi.Region, w, h, level int) {
	if len(regions) == 0 {
		return
	}
	shift := roi.SubbandMask(regions, w, h, level)
	roi.Remove(coeffs, shift)
}

// partition splits a w x h coefficient grid into a row-major sequence of
// code-block bounds of the configured size, clipping the last block in
// each row/column.
func partition(w, h int, opts Options) []dwt.SubbandBounds {
	var blocks []dwt.SubbandBounds
	for y0 := 0; y0 < h; y0 += opts.CodeBlockHeight {
		y1 := y0 + opts.CodeBlockHeight
		if y1 > h {
			y1 = h
		}
		for x0 := 0; x0 < w; x0 += opts.CodeBlockWidth {
			x1 := x0 + opts.CodeBlockWidth
			if x1 > w {
				x1 = w
			}
			blocks = append(blocks, dwt.SubbandBounds{X0: x0, Y0: y0, X1: x1, Y1: y1})
		}
	}
	if len(blocks) == 0 {
		blocks = append(blocks, dwt.SubbandBounds{X0: 0, Y0: 0, X1: w, Y1: h})
	}
	return blocks
}

// partitionAndEncode partitions a subband's coefficients into code-blocks
// and entropy-codes each one in parallel via errgroup.
func partitionAndEncode(coeffs []int32, w, h, bandType int, opts Options) ([]CodeBlock, error) {
	bounds := partition(w, h, opts)
	blocks := make([]CodeBlock, len(bounds))

	g := new(errgroup.Group)
	if opts.MaxWorkers > 0 {
		g.SetLimit(opts.MaxWorkers)
	}
	for i, b := range bounds {
		i, b := i, b
		g.Go(func() error {
			cw, ch := b.X1-b.X0, b.Y1-b.Y0
			block := extractInt32(coeffs, w, b)
			cb, err := encodeCodeBlock(block, cw, ch, bandType, opts)
			if err != nil {
				return err
			}
			cb.X0, cb.Y0, cb.X1, cb.Y1 = b.X0, b.Y0, b.X1, b.Y1
			blocks[i] = cb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return blocks, nil
}

func encodeCodeBlock(coeffs []int32, w, h, bandType int, opts Options) (CodeBlock, error) {
	switch opts.Coding {
	case HT:
		return encodeCodeBlockHT(coeffs, w, h, bandType)
	default:
		return encodeCodeBlockEBCOT(coeffs, w, h, bandType, opts)
	}
}

func encodeCodeBlockEBCOT(coeffs []int32, w, h, bandType int, opts Options) (CodeBlock, error) {
	t1 := entropy.GetT1(w, h)
	defer entropy.PutT1(t1)

	payload, passCount, zeroBP, err := t1.Encode(coeffs, w, h, bandType, opts.BitDepth,
		entropy.CodingOptions{Termination: opts.Termination, BypassStartPlane: opts.BypassStartPlane})
	if err != nil {
		return CodeBlock{}, err
	}
	cb := CodeBlock{Payload: payload, PassCount: passCount, ZeroBitPlanes: zeroBP, BitPlanes: opts.BitDepth - zeroBP}
	if opts.Termination == entropy.TermErrorResilient {
		offsets := t1.PassOffsets()
		cb.Passes = make([]PassBoundary, len(offsets))
		for i, off := range offsets {
			cb.Passes[i] = PassBoundary{PassIndex: i, ByteOffset: off}
		}
	}
	return cb, nil
}

func encodeCodeBlockHT(coeffs []int32, w, h, bandType int) (CodeBlock, error) {
	maxMag := int32(0)
	for _, c := range coeffs {
		m := c
		if m < 0 {
			m = -m
		}
		if m > maxMag {
			maxMag = m
		}
	}
	if maxMag == 0 {
		return CodeBlock{}, nil
	}
	numBits := bits.Len32(uint32(maxMag))

	enc := entropy.GetHTEncoder(w, h)
	defer entropy.PutHTEncoder(enc)
	enc.SetData(coeffs)
	framed := entropy.EncodeHTBlock(enc, bandType)
	return CodeBlock{Payload: framed, BitPlanes: numBits}, nil
}

// DecodeTileComponent runs the inverse pipeline: entropy decode, ROI
// removal, dequantization, and inverse DWT, reconstructing a
// width x height spatial sample buffer from a Decomposition.
func DecodeTileComponent(decomp Decomposition, opts Options) ([]int32, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	width, height := decomp.Width, decomp.Height
	layouts := computeLayout(width, height, decomp.Levels)
	if len(layouts) != len(decomp.Subbands) {
		return nil, &InvalidParameter{Context: "decomposition subband count does not match Levels"}
	}

	switch opts.Filter {
	case Reversible53:
		buf := make([]int32, width*height)
		for i, sb := range decomp.Subbands {
			l := layouts[i]
			q, err := decodeSubband(sb, opts)
			if err != nil {
				return nil, err
			}
			removeROI(q, opts.ROI, sb.Width, sb.Height, subbandROILevel(l, decomp.Levels))
			coeffs := quant.DequantizeReversible(q, subbandStep(opts, l, true), opts.Quant)
			insertInt32(buf, width, l.bounds, coeffs)
		}
		if decomp.Levels > 0 {
			dwt.ReconstructMultiLevel53(buf, width, height, decomp.Levels, opts.Boundary)
		}
		return buf, nil
	case Irreversible97:
		fbuf := make([]float64, width*height)
		for i, sb := range decomp.Subbands {
			l := layouts[i]
			q, err := decodeSubband(sb, opts)
			if err != nil {
				return nil, err
			}
			removeROI(q, opts.ROI, sb.Width, sb.Height, subbandROILevel(l, decomp.Levels))
			step := subbandStep(opts, l, false)
			f := quant.Dequantize(q, step, opts.Quant)
			insertFloat64(fbuf, width, l.bounds, f)
		}
		if decomp.Levels > 0 {
			dwt.ReconstructMultiLevel97(fbuf, width, height, decomp.Levels, opts.Boundary)
		}
		out := make([]int32, len(fbuf))
		for i, v := range fbuf {
			out[i] = int32(v + 0.5)
			if v < 0 {
				out[i] = -int32(-v + 0.5)
			}
		}
		return out, nil
	default:
		return nil, &InvalidParameter{Context: "unknown Filter"}
	}
}

// decodeSubband reassembles one subband's quantized coefficient grid
// from its code-blocks, in parallel.
func decodeSubband(sb Subband, opts Options) ([]int32, error) {
	out := make([]int32, sb.Width*sb.Height)
	g := new(errgroup.Group)
	if opts.MaxWorkers > 0 {
		g.SetLimit(opts.MaxWorkers)
	}
	for _, cb := range sb.CodeBlocks {
		cb := cb
		g.Go(func() error {
			w, h := cb.Width(), cb.Height()
			var block []int32
			var err error
			if opts.Coding == HT {
				block, err = decodeCodeBlockHT(cb, w, h, sb.Orientation)
			} else {
				block, err = decodeCodeBlockEBCOT(cb, w, h, sb.Orientation, opts)
			}
			if err != nil {
				return err
			}
			insertInt32(out, sb.Width, dwt.SubbandBounds{X0: cb.X0, Y0: cb.Y0, X1: cb.X1, Y1: cb.Y1}, block)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeCodeBlockEBCOT(cb CodeBlock, w, h, bandType int, opts Options) ([]int32, error) {
	if cb.Payload == nil {
		return make([]int32, w*h), nil
	}
	t1 := entropy.GetT1(w, h)
	defer entropy.PutT1(t1)
	return t1.Decode(cb.Payload, w, h, bandType, opts.BitDepth, cb.PassCount, cb.ZeroBitPlanes,
		entropy.CodingOptions{Termination: opts.Termination, BypassStartPlane: opts.BypassStartPlane})
}

func decodeCodeBlockHT(cb CodeBlock, w, h, bandType int) ([]int32, error) {
	if cb.Payload == nil {
		return make([]int32, w*h), nil
	}
	dec := entropy.GetHTDecoder(w, h)
	defer entropy.PutHTDecoder(dec)
	return entropy.DecodeHTBlock(dec, cb.Payload, cb.BitPlanes, bandType)
}
