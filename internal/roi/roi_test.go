package roi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRectContains(t *testing.T) {
	r := Region{Shape: Rect, X0: 2, Y0: 2, X1: 6, Y1: 6}
	require.True(t, r.contains(2, 2))
	require.True(t, r.contains(5, 5))
	require.False(t, r.contains(6, 6))
	require.False(t, r.contains(0, 0))
}

func TestEllipseContains(t *testing.T) {
	r := Region{Shape: Ellipse, X0: 0, Y0: 0, X1: 10, Y1: 10}
	require.True(t, r.contains(5, 5))
	require.False(t, r.contains(0, 0))
}

func TestPolygonContainsSquare(t *testing.T) {
	r := Region{Shape: Polygon, Vertices: []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}}
	require.True(t, r.contains(5, 5))
	require.False(t, r.contains(20, 20))
}

func TestMaskContains(t *testing.T) {
	data := make([]byte, 4*4)
	data[1*4+1] = 1
	r := Region{Shape: Mask, MaskWidth: 4, MaskHeight: 4, MaskData: data}
	require.True(t, r.contains(1, 1))
	require.False(t, r.contains(0, 0))
}

func TestValidateRejectsDegenerateShapes(t *testing.T) {
	cases := []Region{
		{Shape: Rect, X0: 5, Y0: 5, X1: 5, Y1: 10},
		{Shape: Polygon, Vertices: []Point{{0, 0}, {1, 1}}},
		{Shape: Mask, MaskWidth: 2, MaskHeight: 2, MaskData: []byte{1}},
		{Shape: Rect, X0: 0, Y0: 0, X1: 2, Y1: 2, Shift: -1},
	}
	for _, r := range cases {
		require.Error(t, r.Validate(100, 100))
	}
}

func TestShiftAtPriorityResolution(t *testing.T) {
	regions := []Region{
		{Shape: Rect, X0: 0, Y0: 0, X1: 10, Y1: 10, Shift: 2, Priority: 1},
		{Shape: Rect, X0: 5, Y0: 5, X1: 15, Y1: 15, Shift: 5, Priority: 2},
	}
	require.Equal(t, 2, shiftAt(regions, 1, 1))
	require.Equal(t, 5, shiftAt(regions, 7, 7))
	require.Equal(t, 0, shiftAt(regions, 20, 20))
}

func TestSubbandMaskAnyHitAggregation(t *testing.T) {
	// A 1-sample region at image coordinate (3,3) should still mark the
	// subband cell it downsamples into at level 2 (4x4 blocks).
	regions := []Region{{Shape: Rect, X0: 3, Y0: 3, X1: 4, Y1: 4, Shift: 4, Priority: 1}}
	shift := SubbandMask(regions, 4, 4, 2)
	require.Equal(t, 4, shift[0*4+0])
	require.Equal(t, 0, shift[3*4+3])
}

func TestApplyRemoveRoundTrip(t *testing.T) {
	coeffs := []int32{1, -2, 3, -4, 5, 0}
	shift := []int{3, 3, 0, 0, 2, 0}
	orig := append([]int32(nil), coeffs...)

	Apply(coeffs, shift)
	require.NotEqual(t, orig, coeffs)

	Remove(coeffs, shift)
	require.Equal(t, orig, coeffs)
}

func TestApplyScalesByShiftAmount(t *testing.T) {
	coeffs := []int32{3, -3}
	shift := []int{4, 4}
	Apply(coeffs, shift)
	require.Equal(t, []int32{3 << 4, -(3 << 4)}, coeffs)
}

func TestRemoveLeavesBelowThresholdCoefficientsUnscaled(t *testing.T) {
	// A background coefficient whose magnitude never crossed the
	// MAXSHIFT threshold must be left untouched by Remove.
	coeffs := []int32{1}
	shift := []int{5}
	Remove(coeffs, shift)
	require.Equal(t, []int32{1}, coeffs)
}
