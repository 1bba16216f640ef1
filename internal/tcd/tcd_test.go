package tcd

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-imaging/jpeg2000/internal/dwt"
	"github.com/halcyon-imaging/jpeg2000/internal/entropy"
	"github.com/halcyon-imaging/jpeg2000/internal/quant"
	"github.com/halcyon-imaging/jpeg2000/internal/roi"
)

func syntheticTile(width, height int, seed int64) []int32 {
	r := rand.New(rand.NewSource(seed))
	out := make([]int32, width*height)
	for i := range out {
		out[i] = int32(r.Intn(256) - 128)
	}
	return out
}

func baseOptions() Options {
	return Options{
		Filter:          Reversible53,
		Boundary:        dwt.Symmetric,
		Levels:          2,
		Quant:           quant.Params{Style: quant.NoQuantization},
		Coding:          EBCOT,
		BitDepth:        12,
		CodeBlockWidth:  16,
		CodeBlockHeight: 16,
	}
}

func TestEncodeDecodeRoundTripLosslessReversible(t *testing.T) {
	width, height := 32, 32
	samples := syntheticTile(width, height, 1)
	opts := baseOptions()

	decomp, err := EncodeTileComponent(samples, width, height, opts)
	require.NoError(t, err)
	require.Equal(t, 3*opts.Levels+1, len(decomp.Subbands))

	out, err := DecodeTileComponent(decomp, opts)
	require.NoError(t, err)
	require.Equal(t, samples, out)
}

func TestEncodeDecodeRoundTripIrreversibleIsApproximate(t *testing.T) {
	width, height := 32, 32
	samples := syntheticTile(width, height, 2)
	opts := baseOptions()
	opts.Filter = Irreversible97
	opts.Quant = quant.Params{Style: quant.ScalarDerived, BaseStep: 1.0}

	decomp, err := EncodeTileComponent(samples, width, height, opts)
	require.NoError(t, err)

	out, err := DecodeTileComponent(decomp, opts)
	require.NoError(t, err)
	require.Len(t, out, len(samples))

	var sqErr float64
	for i := range samples {
		d := float64(samples[i] - out[i])
		sqErr += d * d
	}
	mse := sqErr / float64(len(samples))
	require.Less(t, mse, 400.0)
}

func TestEncodeAppliesROIShift(t *testing.T) {
	width, height := 16, 16
	samples := syntheticTile(width, height, 3)
	opts := baseOptions()
	opts.Levels = 1
	opts.CodeBlockWidth, opts.CodeBlockHeight = 8, 8

	plain, err := EncodeTileComponent(samples, width, height, opts)
	require.NoError(t, err)

	opts.ROI = []roi.Region{{Shape: roi.Rect, X0: 0, Y0: 0, X1: width, Y1: height, Shift: 3, Priority: 1}}
	withROI, err := EncodeTileComponent(samples, width, height, opts)
	require.NoError(t, err)

	// With a full-tile ROI shift applied, at least one HL/LH/HH
	// code-block's payload must differ (coefficients were scaled before
	// entropy coding), since the magnitude growth changes the bit-plane
	// count the block coder walks.
	foundDifference := false
	for i := range plain.Subbands {
		if plain.Subbands[i].Orientation == BandLL {
			continue
		}
		for j := range plain.Subbands[i].CodeBlocks {
			if !bytesEqual(plain.Subbands[i].CodeBlocks[j].Payload, withROI.Subbands[i].CodeBlocks[j].Payload) {
				foundDifference = true
			}
		}
	}
	require.True(t, foundDifference)

	out, err := DecodeTileComponent(withROI, opts)
	require.NoError(t, err)
	require.Equal(t, samples, out)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEncodeDecodeHTCodingMode(t *testing.T) {
	width, height := 16, 16
	samples := syntheticTile(width, height, 4)
	opts := baseOptions()
	opts.Coding = HT
	opts.Levels = 1
	opts.CodeBlockWidth, opts.CodeBlockHeight = 8, 8

	decomp, err := EncodeTileComponent(samples, width, height, opts)
	require.NoError(t, err)

	out, err := DecodeTileComponent(decomp, opts)
	require.NoError(t, err)
	require.Equal(t, samples, out)
}

func TestPassBoundariesPopulatedUnderErrorResilientTermination(t *testing.T) {
	width, height := 16, 16
	samples := syntheticTile(width, height, 5)
	opts := baseOptions()
	opts.Levels = 1
	opts.CodeBlockWidth, opts.CodeBlockHeight = 16, 16
	opts.Termination = entropy.TermErrorResilient

	decomp, err := EncodeTileComponent(samples, width, height, opts)
	require.NoError(t, err)

	foundPasses := false
	for _, sb := range decomp.Subbands {
		for _, cb := range sb.CodeBlocks {
			if len(cb.Payload) > 0 {
				require.NotEmpty(t, cb.Passes)
				foundPasses = true
				for i := 1; i < len(cb.Passes); i++ {
					require.GreaterOrEqual(t, cb.Passes[i].ByteOffset, cb.Passes[i-1].ByteOffset)
				}
			}
		}
	}
	require.True(t, foundPasses)
}

func TestAdaptiveBlockSizeSelectsSmallerBlocksForBusyTile(t *testing.T) {
	width, height := 64, 64
	flat := make([]int32, width*height)
	w, h := AnalyzeBlockSize(flat, width, height, 1.0)
	require.Equal(t, 64, w)
	require.Equal(t, 64, h)

	busy := syntheticTile(width, height, 6)
	bw, bh := AnalyzeBlockSize(busy, width, height, 1.0)
	require.Less(t, bw, 64)
	require.Less(t, bh, 64)
}

func TestDecompositionIsDeterministicAcrossRepeatedEncodes(t *testing.T) {
	width, height := 16, 16
	samples := syntheticTile(width, height, 7)
	opts := baseOptions()
	opts.Levels = 1
	opts.CodeBlockWidth, opts.CodeBlockHeight = 16, 16

	a, err := EncodeTileComponent(samples, width, height, opts)
	require.NoError(t, err)
	b, err := EncodeTileComponent(samples, width, height, opts)
	require.NoError(t, err)

	diff := cmp.Diff(a, b)
	require.Empty(t, diff, "encoding the same tile twice sequentially must be deterministic")
}
