// Package jpeg2000 implements the core JPEG 2000 (ISO/IEC 15444-1) and
// HTJ2K (ISO/IEC 15444-15) compression pipeline: the discrete wavelet
// transform, quantization, region-of-interest scaling, and EBCOT/FBCOT
// block entropy coding.
//
// The package operates on in-memory tiles of samples through the
// Pipeline facade; it does not parse or emit a JP2/J2K byte container,
// codestream markers, or packet headers - those remain an external
// collaborator's job, same as the color-space *detection* layer (the
// RCT/ICT transform math itself is wired in via internal/mct).
package jpeg2000

import (
	"github.com/halcyon-imaging/jpeg2000/internal/dwt"
	"github.com/halcyon-imaging/jpeg2000/internal/entropy"
	"github.com/halcyon-imaging/jpeg2000/internal/mct"
	"github.com/halcyon-imaging/jpeg2000/internal/quant"
	"github.com/halcyon-imaging/jpeg2000/internal/roi"
	"github.com/halcyon-imaging/jpeg2000/internal/tcd"
)

// ProgressionOrder re-exports tcd's packet coordinate ordering for
// callers that don't otherwise need internal/tcd.
type ProgressionOrder = tcd.ProgressionOrder

const (
	LRCP = tcd.LRCP
	RLCP = tcd.RLCP
	RPCL = tcd.RPCL
	PCRL = tcd.PCRL
	CPRL = tcd.CPRL
)

// ROIRegion re-exports internal/roi's region description.
type ROIRegion = roi.Region

// InvalidParameter reports a PipelineOptions or TileSamples value the
// facade cannot act on.
type InvalidParameter struct{ Context string }

func (e *InvalidParameter) Error() string { return "jpeg2000: invalid parameter: " + e.Context }

// InvalidComponentConfiguration reports a TileSamples whose component
// count/dimensions are inconsistent with Dims or with each other.
type InvalidComponentConfiguration struct{ Context string }

func (e *InvalidComponentConfiguration) Error() string {
	return "jpeg2000: invalid component configuration: " + e.Context
}

// BlockSize is a plain width/height pair (log2 dimensions are not
// exposed here; callers name the block's actual pixel dimensions).
type BlockSize struct{ Width, Height int }

// TileDims describes a tile's geometry independent of its sample data.
type TileDims struct {
	Width, Height  int
	NumComponents  int
	BitDepth       int // nominal per-component sample precision, e.g. 8
	SignedSamples  bool
}

// PipelineOptions configures the Pipeline's encode/decode behavior. It
// keeps the shape of the teacher's Options/Config struct (a plain,
// validated-on-use record, not a builder), dropping the JP2/J2K
// container-specific fields (Format, ICCProfile, Comment) per
// SPEC_FULL.md §5.
type PipelineOptions struct {
	Lossless bool
	// Quality in [1,100] selects the quantization step for lossy
	// encoding; ignored when Lossless is true.
	Quality int

	NumResolutions int
	CodeBlockSize  BlockSize

	ProgressionOrder ProgressionOrder
	NumLayers        int
	TileSize         BlockSize

	// SegmentedPasses requests a byte-aligned segment after every
	// coding pass (TermErrorResilient), which also populates each
	// code-block's PassBoundary table for later quality-layer
	// truncation. Named for what it does rather than for the SOP/EPH
	// markers the teacher's equivalent toggles controlled, since marker
	// emission itself is out of scope here.
	SegmentedPasses bool
	BypassMode      bool
	BypassStartPlane int

	HighThroughput bool
	HTBlockWidth   int
	HTBlockHeight  int

	ROI []ROIRegion

	// UseColorTransform applies RCT (lossless) or ICT (lossy) across
	// the first three components before the wavelet transform.
	UseColorTransform bool

	// CustomTransform, when set, replaces RCT/ICT with an arbitrary
	// NxN multi-component transform (internal/mct.CustomMCT) across
	// all of the tile's components. Takes precedence over
	// UseColorTransform when both are set.
	CustomTransform *mct.CustomMCT

	AdaptiveBlockSize bool
	Aggressiveness    float64

	Boundary dwt.BoundaryMode

	MaxWorkers int
}

// DefaultPipelineOptions returns the teacher's historical defaults,
// translated to the new facade's field names.
func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		Lossless:         false,
		Quality:          75,
		NumResolutions:   6,
		CodeBlockSize:    BlockSize{64, 64},
		ProgressionOrder: LRCP,
		NumLayers:        1,
		TileSize:         BlockSize{0, 0}, // 0 means "whole image, one tile"
		Boundary:         dwt.Symmetric,
	}
}

func (o PipelineOptions) validate() error {
	if !o.Lossless && (o.Quality < 1 || o.Quality > 100) {
		return &InvalidParameter{Context: "Quality must be in [1,100] when Lossless is false"}
	}
	if o.NumResolutions < 1 {
		return &InvalidParameter{Context: "NumResolutions must be >= 1"}
	}
	bw, bh := o.codeBlockDims()
	if bw <= 0 || bh <= 0 {
		return &InvalidParameter{Context: "code-block dimensions must be positive"}
	}
	return nil
}

func (o PipelineOptions) codeBlockDims() (int, int) {
	if o.HighThroughput && o.HTBlockWidth > 0 && o.HTBlockHeight > 0 {
		return o.HTBlockWidth, o.HTBlockHeight
	}
	if o.CodeBlockSize.Width > 0 && o.CodeBlockSize.Height > 0 {
		return o.CodeBlockSize.Width, o.CodeBlockSize.Height
	}
	return 64, 64
}

// TileSamples holds one tile's per-component spatial samples, already
// at full precision (not DC-shifted; EncodeTile performs the shift).
type TileSamples struct {
	Dims       TileDims
	Components [][]int32
}

func (t TileSamples) validate() error {
	if len(t.Components) != t.Dims.NumComponents {
		return &InvalidComponentConfiguration{Context: "component slice count does not match Dims.NumComponents"}
	}
	n := t.Dims.Width * t.Dims.Height
	for i, c := range t.Components {
		if len(c) != n {
			return &InvalidComponentConfiguration{Context: "component sample count does not match Dims.Width*Dims.Height"}
		}
		_ = i
	}
	return nil
}

// EncodedTile holds the per-component wavelet decomposition and
// code-block payloads produced by EncodeTile - the "(bytes, pass_count,
// zero_bit_planes, termination_offsets)" tuple spec.md §6 defines, one
// per component, not a serialized byte container.
type EncodedTile struct {
	Dims       TileDims
	Components []tcd.Decomposition
}

// Pipeline is the top-level encode/decode facade over internal/dwt,
// internal/quant, internal/roi, and internal/tcd.
type Pipeline struct {
	Options PipelineOptions
}

func (p *Pipeline) tcdOptions(dims TileDims) tcd.Options {
	bw, bh := p.Options.codeBlockDims()
	filter := tcd.Reversible53
	qp := quant.Params{Style: quant.NoQuantization}
	if !p.Options.Lossless {
		filter = tcd.Irreversible97
		qp = quant.Params{Style: quant.ScalarDerived, BaseStep: qualityToBaseStep(p.Options.Quality)}
	}
	coding := tcd.EBCOT
	if p.Options.HighThroughput {
		coding = tcd.HT
	}
	term := entropy.TermDefault
	if p.Options.SegmentedPasses {
		term = entropy.TermErrorResilient
	} else if p.Options.BypassMode {
		term = entropy.TermBypass
	}
	return tcd.Options{
		Filter:            filter,
		Boundary:          p.Options.Boundary,
		Levels:            p.Options.NumResolutions - 1,
		Quant:             qp,
		ROI:               p.Options.ROI,
		Coding:            coding,
		BitDepth:          dims.BitDepth + guardBits,
		Termination:       term,
		BypassStartPlane:  p.Options.BypassStartPlane,
		CodeBlockWidth:    bw,
		CodeBlockHeight:   bh,
		AdaptiveBlockSize: p.Options.AdaptiveBlockSize,
		Aggressiveness:    p.Options.Aggressiveness,
		MaxWorkers:        p.Options.MaxWorkers,
	}
}

// guardBits is the fixed number of extra MSB bit-planes carried through
// the entropy coder to absorb inter-stage bit growth (MCT, DWT),
// matching ITU-T T.800 Annex E.1's typical 1-2 guard-bit convention.
const guardBits = 2

// qualityToBaseStep maps a [1,100] quality value to a quantizer base
// step size, using the IJG-style two-segment scale (linear descent
// above 50, reciprocal growth below it) the teacher's own
// Quality-driven Options already assumes informally via its
// DefaultOptions comment ("Quality specifies the compression
// quality (1-100)").
func qualityToBaseStep(quality int) float64 {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	var scale float64
	if quality < 50 {
		scale = 50.0 / float64(quality)
	} else {
		scale = 2.0 - float64(quality)/50.0
	}
	const baseStep = 0.5
	step := baseStep * scale
	if step < 0.01 {
		step = 0.01
	}
	return step
}

// EncodeTile runs the forward pipeline over one tile's samples: DC level
// shift, optional multi-component transform, then per-component
// DWT/quantization/ROI/entropy coding.
func (p *Pipeline) EncodeTile(tile TileSamples) (EncodedTile, error) {
	if err := p.Options.validate(); err != nil {
		return EncodedTile{}, err
	}
	if err := tile.validate(); err != nil {
		return EncodedTile{}, err
	}

	components := make([][]int32, len(tile.Components))
	for i, c := range tile.Components {
		shifted := make([]int32, len(c))
		copy(shifted, c)
		if !tile.Dims.SignedSamples {
			mct.DCLevelShiftForward(shifted, tile.Dims.BitDepth)
		}
		components[i] = shifted
	}

	if p.Options.CustomTransform != nil {
		if err := applyForwardCustomTransform(components, p.Options.CustomTransform); err != nil {
			return EncodedTile{}, err
		}
	} else if mct.ShouldApplyMCT(tile.Dims.NumComponents, p.Options.UseColorTransform) {
		applyForwardMCT(components, p.Options.Lossless)
	}

	tcdOpts := p.tcdOptions(tile.Dims)
	out := EncodedTile{Dims: tile.Dims, Components: make([]tcd.Decomposition, len(components))}
	for i, c := range components {
		decomp, err := tcd.EncodeTileComponent(c, tile.Dims.Width, tile.Dims.Height, tcdOpts)
		if err != nil {
			return EncodedTile{}, err
		}
		out.Components[i] = decomp
	}
	return out, nil
}

// DecodeTile runs the inverse pipeline, reconstructing a tile's spatial
// samples from an EncodedTile.
func (p *Pipeline) DecodeTile(enc EncodedTile, dims TileDims) (TileSamples, error) {
	if err := p.Options.validate(); err != nil {
		return TileSamples{}, err
	}
	if len(enc.Components) != dims.NumComponents {
		return TileSamples{}, &InvalidComponentConfiguration{Context: "encoded component count does not match dims"}
	}

	tcdOpts := p.tcdOptions(dims)
	components := make([][]int32, len(enc.Components))
	for i, decomp := range enc.Components {
		samples, err := tcd.DecodeTileComponent(decomp, tcdOpts)
		if err != nil {
			return TileSamples{}, err
		}
		components[i] = samples
	}

	if p.Options.CustomTransform != nil {
		if err := applyInverseCustomTransform(components, p.Options.CustomTransform); err != nil {
			return TileSamples{}, err
		}
	} else if mct.ShouldApplyMCT(dims.NumComponents, p.Options.UseColorTransform) {
		applyInverseMCT(components, p.Options.Lossless)
	}

	for _, c := range components {
		if !dims.SignedSamples {
			mct.DCLevelShiftInverse(c, dims.BitDepth)
		}
		mct.ApplyPrecisionClamp(c, dims.BitDepth, dims.SignedSamples)
	}

	return TileSamples{Dims: dims, Components: components}, nil
}

func applyForwardMCT(components [][]int32, lossless bool) {
	if lossless {
		mct.ForwardRCT(components[0], components[1], components[2])
		return
	}
	r := make([]float64, len(components[0]))
	g := make([]float64, len(components[1]))
	b := make([]float64, len(components[2]))
	mct.ConvertInt32ToFloat64(components[0], r)
	mct.ConvertInt32ToFloat64(components[1], g)
	mct.ConvertInt32ToFloat64(components[2], b)
	mct.ForwardICT(r, g, b)
	mct.ConvertFloat64ToInt32(r, components[0])
	mct.ConvertFloat64ToInt32(g, components[1])
	mct.ConvertFloat64ToInt32(b, components[2])
}

// applyForwardCustomTransform applies an arbitrary NxN multi-component
// transform in place across all of a tile's components, round-tripping
// through float64 the same way applyForwardMCT's ICT path does.
func applyForwardCustomTransform(components [][]int32, t *mct.CustomMCT) error {
	if len(components) != t.NumComponents {
		return &InvalidComponentConfiguration{Context: "CustomTransform.NumComponents does not match tile component count"}
	}
	fcomps := make([][]float64, len(components))
	for i, c := range components {
		fcomps[i] = make([]float64, len(c))
		mct.ConvertInt32ToFloat64(c, fcomps[i])
	}
	if err := t.Apply(fcomps); err != nil {
		return err
	}
	for i, c := range components {
		mct.ConvertFloat64ToInt32(fcomps[i], c)
	}
	return nil
}

func applyInverseCustomTransform(components [][]int32, t *mct.CustomMCT) error {
	if len(components) != t.NumComponents {
		return &InvalidComponentConfiguration{Context: "CustomTransform.NumComponents does not match tile component count"}
	}
	fcomps := make([][]float64, len(components))
	for i, c := range components {
		fcomps[i] = make([]float64, len(c))
		mct.ConvertInt32ToFloat64(c, fcomps[i])
	}
	if err := t.ApplyInverse(fcomps); err != nil {
		return err
	}
	for i, c := range components {
		mct.ConvertFloat64ToInt32(fcomps[i], c)
	}
	return nil
}

func applyInverseMCT(components [][]int32, lossless bool) {
	if lossless {
		mct.InverseRCT(components[0], components[1], components[2])
		return
	}
	y := make([]float64, len(components[0]))
	cb := make([]float64, len(components[1]))
	cr := make([]float64, len(components[2]))
	mct.ConvertInt32ToFloat64(components[0], y)
	mct.ConvertInt32ToFloat64(components[1], cb)
	mct.ConvertInt32ToFloat64(components[2], cr)
	mct.InverseICT(y, cb, cr)
	mct.ConvertFloat64ToInt32(y, components[0])
	mct.ConvertFloat64ToInt32(cb, components[1])
	mct.ConvertFloat64ToInt32(cr, components[2])
}
