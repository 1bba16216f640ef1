package mct

import (
	"math"
	"testing"
)

func TestForwardRCT_InverseRCT_Roundtrip(t *testing.T) {
	r := []int32{100, 150, 200, 50}
	g := []int32{110, 140, 190, 60}
	b := []int32{120, 130, 180, 70}

	origR := make([]int32, len(r))
	origG := make([]int32, len(g))
	origB := make([]int32, len(b))
	copy(origR, r)
	copy(origG, g)
	copy(origB, b)

	ForwardRCT(r, g, b)
	InverseRCT(r, g, b)

	for i := range origR {
		if r[i] != origR[i] {
			t.Errorf("R[%d]: got %d, want %d", i, r[i], origR[i])
		}
		if g[i] != origG[i] {
			t.Errorf("G[%d]: got %d, want %d", i, g[i], origG[i])
		}
		if b[i] != origB[i] {
			t.Errorf("B[%d]: got %d, want %d", i, b[i], origB[i])
		}
	}
}

func TestForwardRCT_EdgeCases(t *testing.T) {
	tests := []struct {
		name       string
		r, g, b    []int32
	}{
		{"zero values", []int32{0, 0, 0}, []int32{0, 0, 0}, []int32{0, 0, 0}},
		{"max 8-bit values", []int32{255, 255, 255}, []int32{255, 255, 255}, []int32{255, 255, 255}},
		{"negative values", []int32{-128, -64, 0}, []int32{-128, -64, 0}, []int32{-128, -64, 0}},
		{"mixed positive negative", []int32{-100, 0, 100}, []int32{50, -50, 150}, []int32{-50, 100, -100}},
		{"single element", []int32{128}, []int32{128}, []int32{128}},
		{"empty slices", []int32{}, []int32{}, []int32{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origR, origG, origB := append([]int32{}, tt.r...), append([]int32{}, tt.g...), append([]int32{}, tt.b...)
			ForwardRCT(tt.r, tt.g, tt.b)
			InverseRCT(tt.r, tt.g, tt.b)
			for i := range origR {
				if tt.r[i] != origR[i] || tt.g[i] != origG[i] || tt.b[i] != origB[i] {
					t.Errorf("roundtrip failed at %d: got (%d,%d,%d), want (%d,%d,%d)",
						i, tt.r[i], tt.g[i], tt.b[i], origR[i], origG[i], origB[i])
				}
			}
		})
	}
}

func TestForwardICT_InverseICT_Roundtrip(t *testing.T) {
	r := []float64{100.0, 150.0, 200.0, 50.0}
	g := []float64{110.0, 140.0, 190.0, 60.0}
	b := []float64{120.0, 130.0, 180.0, 70.0}

	origR, origG, origB := append([]float64{}, r...), append([]float64{}, g...), append([]float64{}, b...)

	ForwardICT(r, g, b)
	InverseICT(r, g, b)

	const tolerance = 1e-2
	for i := range origR {
		if math.Abs(r[i]-origR[i]) > tolerance {
			t.Errorf("R[%d]: got %v, want %v", i, r[i], origR[i])
		}
		if math.Abs(g[i]-origG[i]) > tolerance {
			t.Errorf("G[%d]: got %v, want %v", i, g[i], origG[i])
		}
		if math.Abs(b[i]-origB[i]) > tolerance {
			t.Errorf("B[%d]: got %v, want %v", i, b[i], origB[i])
		}
	}
}

func TestForwardICT_EdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b []float64
	}{
		{"zero values", []float64{0, 0, 0}, []float64{0, 0, 0}, []float64{0, 0, 0}},
		{"max 8-bit values", []float64{255, 255, 255}, []float64{255, 255, 255}, []float64{255, 255, 255}},
		{"negative values", []float64{-128, -64, 0}, []float64{-128, -64, 0}, []float64{-128, -64, 0}},
		{"single element", []float64{128.5}, []float64{128.5}, []float64{128.5}},
		{"empty slices", []float64{}, []float64{}, []float64{}},
		{"very small values", []float64{0.001, 0.002, 0.003}, []float64{0.001, 0.002, 0.003}, []float64{0.001, 0.002, 0.003}},
		{"very large values", []float64{1e6, 1e7, 1e8}, []float64{1e6, 1e7, 1e8}, []float64{1e6, 1e7, 1e8}},
	}

	const tolerance = 1e-2
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origR, origG, origB := append([]float64{}, tt.r...), append([]float64{}, tt.g...), append([]float64{}, tt.b...)
			ForwardICT(tt.r, tt.g, tt.b)
			InverseICT(tt.r, tt.g, tt.b)
			for i := range origR {
				relTol := tolerance
				if math.Abs(origR[i]) > 1000 {
					relTol = tolerance * math.Abs(origR[i]) / 100
				}
				if math.Abs(tt.r[i]-origR[i]) > relTol ||
					math.Abs(tt.g[i]-origG[i]) > relTol ||
					math.Abs(tt.b[i]-origB[i]) > relTol {
					t.Errorf("roundtrip failed at %d: got (%v,%v,%v), want (%v,%v,%v)",
						i, tt.r[i], tt.g[i], tt.b[i], origR[i], origG[i], origB[i])
				}
			}
		})
	}
}

func TestDCLevelShiftForward_Inverse_Roundtrip(t *testing.T) {
	data := []int32{0, 64, 128, 192, 255}
	original := append([]int32{}, data...)

	DCLevelShiftForward(data, 8)
	DCLevelShiftInverse(data, 8)

	for i := range original {
		if data[i] != original[i] {
			t.Errorf("position %d: got %d, want %d", i, data[i], original[i])
		}
	}
}

func TestDCLevelShiftForwardFloat_InverseFloat_Roundtrip(t *testing.T) {
	data := []float64{0, 64, 128, 192, 255}
	original := append([]float64{}, data...)

	DCLevelShiftForwardFloat(data, 8)
	DCLevelShiftInverseFloat(data, 8)

	for i := range original {
		if data[i] != original[i] {
			t.Errorf("position %d: got %v, want %v", i, data[i], original[i])
		}
	}
}

func TestDCLevelShift_DifferentPrecisions(t *testing.T) {
	for _, prec := range []int{1, 4, 8, 10, 12, 16} {
		maxVal := int32((1 << prec) - 1)
		data := []int32{0, maxVal / 2, maxVal}
		original := append([]int32{}, data...)

		DCLevelShiftForward(data, prec)
		DCLevelShiftInverse(data, prec)

		for i := range original {
			if data[i] != original[i] {
				t.Errorf("precision %d, pos %d: got %d, want %d", prec, i, data[i], original[i])
			}
		}
	}
}

func TestClampInt32(t *testing.T) {
	tests := []struct{ v, min, max, want int32 }{
		{0, 0, 0, 0},
		{math.MaxInt32, 0, math.MaxInt32, math.MaxInt32},
		{math.MinInt32, math.MinInt32, 0, math.MinInt32},
		{50, 50, 50, 50},
		{-10, 0, 100, 0},
		{150, 0, 100, 100},
	}
	for _, tt := range tests {
		if got := ClampInt32(tt.v, tt.min, tt.max); got != tt.want {
			t.Errorf("ClampInt32(%d, %d, %d) = %d, want %d", tt.v, tt.min, tt.max, got, tt.want)
		}
	}
}

func TestClampFloat64(t *testing.T) {
	tests := []struct{ v, min, max, want float64 }{
		{0.0, 0.0, 100.0, 0.0},
		{100.0, 0.0, 100.0, 100.0},
		{math.Inf(1), 0.0, 100.0, 100.0},
		{math.Inf(-1), 0.0, 100.0, 0.0},
		{50.5, 50.5, 50.5, 50.5},
	}
	for _, tt := range tests {
		if got := ClampFloat64(tt.v, tt.min, tt.max); got != tt.want {
			t.Errorf("ClampFloat64(%v, %v, %v) = %v, want %v", tt.v, tt.min, tt.max, got, tt.want)
		}
	}
}

func TestShouldApplyMCT(t *testing.T) {
	tests := []struct {
		numComponents int
		mctEnabled    bool
		want          bool
	}{
		{0, true, false}, {0, false, false},
		{2, true, false}, {2, false, false},
		{3, true, true}, {3, false, false},
		{10, true, true}, {10, false, false},
		{100, true, true},
	}
	for _, tt := range tests {
		if got := ShouldApplyMCT(tt.numComponents, tt.mctEnabled); got != tt.want {
			t.Errorf("ShouldApplyMCT(%d, %v) = %v, want %v", tt.numComponents, tt.mctEnabled, got, tt.want)
		}
	}
}

func TestConvertFloat64ToInt32(t *testing.T) {
	tests := []struct {
		src      []float64
		expected []int32
	}{
		{[]float64{}, []int32{}},
		{[]float64{0.0}, []int32{0}},
		{[]float64{0.49999}, []int32{0}},
		{[]float64{0.50001}, []int32{1}},
		{[]float64{-0.49999}, []int32{0}},
		{[]float64{-0.50001}, []int32{-1}},
		{[]float64{100.5, -100.5}, []int32{101, -101}},
	}
	for _, tt := range tests {
		dst := make([]int32, len(tt.src))
		ConvertFloat64ToInt32(tt.src, dst)
		for i := range tt.expected {
			if dst[i] != tt.expected[i] {
				t.Errorf("ConvertFloat64ToInt32 pos %d: got %d, want %d", i, dst[i], tt.expected[i])
			}
		}
	}
}

func TestConvertInt32ToFloat64(t *testing.T) {
	tests := []struct {
		src      []int32
		expected []float64
	}{
		{[]int32{}, []float64{}},
		{[]int32{0}, []float64{0.0}},
		{[]int32{math.MaxInt32}, []float64{float64(math.MaxInt32)}},
		{[]int32{math.MinInt32}, []float64{float64(math.MinInt32)}},
	}
	for _, tt := range tests {
		dst := make([]float64, len(tt.src))
		ConvertInt32ToFloat64(tt.src, dst)
		for i := range tt.expected {
			if dst[i] != tt.expected[i] {
				t.Errorf("ConvertInt32ToFloat64 pos %d: got %v, want %v", i, dst[i], tt.expected[i])
			}
		}
	}
}

func TestApplyPrecisionClamp(t *testing.T) {
	tests := []struct {
		precision int
		signed    bool
		input     []int32
		expected  []int32
	}{
		{1, false, []int32{-1, 0, 1, 2}, []int32{0, 0, 1, 1}},
		{1, true, []int32{-2, -1, 0, 1}, []int32{-1, -1, 0, 0}},
		{8, false, []int32{-10, 0, 128, 255, 300}, []int32{0, 0, 128, 255, 255}},
		{8, true, []int32{-200, -128, 0, 127, 200}, []int32{-128, -128, 0, 127, 127}},
		{12, false, []int32{-1, 0, 2048, 4095, 5000}, []int32{0, 0, 2048, 4095, 4095}},
		{12, true, []int32{-3000, -2048, 0, 2047, 3000}, []int32{-2048, -2048, 0, 2047, 2047}},
	}
	for _, tt := range tests {
		data := append([]int32{}, tt.input...)
		ApplyPrecisionClamp(data, tt.precision, tt.signed)
		for i := range tt.expected {
			if data[i] != tt.expected[i] {
				t.Errorf("precision %d, signed %v, pos %d: got %d, want %d",
					tt.precision, tt.signed, i, data[i], tt.expected[i])
			}
		}
	}
}

func TestApplyPrecisionClampFloat(t *testing.T) {
	tests := []struct {
		precision int
		signed    bool
		input     []float64
		expected  []float64
	}{
		{8, false, []float64{-10.0, 0.0, 128.0, 255.0, 300.0}, []float64{0.0, 0.0, 128.0, 255.0, 255.0}},
		{8, true, []float64{-200.0, -128.0, 0.0, 127.0, 200.0}, []float64{-128.0, -128.0, 0.0, 127.0, 127.0}},
		{16, false, []float64{-100.0, 0.0, 32767.0, 65535.0, 70000.0}, []float64{0.0, 0.0, 32767.0, 65535.0, 65535.0}},
	}
	for _, tt := range tests {
		data := append([]float64{}, tt.input...)
		ApplyPrecisionClampFloat(data, tt.precision, tt.signed)
		for i := range tt.expected {
			if data[i] != tt.expected[i] {
				t.Errorf("precision %d, signed %v, pos %d: got %v, want %v",
					tt.precision, tt.signed, i, data[i], tt.expected[i])
			}
		}
	}
}

func BenchmarkForwardRCT(b *testing.B) {
	size := 1024
	r := make([]int32, size)
	g := make([]int32, size)
	bl := make([]int32, size)
	for i := 0; i < size; i++ {
		r[i] = int32(i % 256)
		g[i] = int32((i + 85) % 256)
		bl[i] = int32((i + 170) % 256)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ForwardRCT(r, g, bl)
	}
}

func BenchmarkForwardICT(b *testing.B) {
	size := 1024
	r := make([]float64, size)
	g := make([]float64, size)
	bl := make([]float64, size)
	for i := 0; i < size; i++ {
		r[i] = float64(i % 256)
		g[i] = float64((i + 85) % 256)
		bl[i] = float64((i + 170) % 256)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ForwardICT(r, g, bl)
	}
}

// CustomMCT

func mustCustomMCT(t *testing.T, forward []float64, n int) *CustomMCT {
	t.Helper()
	m, err := NewCustomMCT(forward, n)
	if err != nil {
		t.Fatalf("NewCustomMCT(%v, %d): unexpected error: %v", forward, n, err)
	}
	return m
}

func TestNewCustomMCT_InvalidParameter(t *testing.T) {
	if _, err := NewCustomMCT([]float64{1, 0, 0, 1}, 1); err == nil {
		t.Error("NewCustomMCT with NumComponents=1: want error, got nil")
	}
	if _, err := NewCustomMCT([]float64{1, 0, 0, 1}, 3); err == nil {
		t.Error("NewCustomMCT with mismatched forward length: want error, got nil")
	}
	if _, err := NewCustomMCT([]float64{1, 2, 3, 1, 2, 3, 1, 2, 3}, 3); err == nil {
		t.Error("NewCustomMCT with singular matrix: want error, got nil")
	}
}

func TestCustomMCT_Apply_ApplyInverse_Roundtrip(t *testing.T) {
	forward := []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
	m := mustCustomMCT(t, forward, 3)

	components := [][]float64{
		{100, 200, 150},
		{110, 190, 140},
		{120, 180, 130},
	}
	original := make([][]float64, 3)
	for i := range original {
		original[i] = append([]float64{}, components[i]...)
	}

	if err := m.Apply(components); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := m.ApplyInverse(components); err != nil {
		t.Fatalf("ApplyInverse: %v", err)
	}

	for c := range original {
		for i := range original[c] {
			if math.Abs(components[c][i]-original[c][i]) > 1e-9 {
				t.Errorf("component %d, position %d: got %v, want %v", c, i, components[c][i], original[c][i])
			}
		}
	}
}

func TestCustomMCT_3x3_NonIdentity_Roundtrip(t *testing.T) {
	forward := []float64{
		2, 0, 0,
		0, 3, 0,
		0, 0, 4,
	}
	m := mustCustomMCT(t, forward, 3)

	components := [][]float64{
		{10, 20, 30},
		{40, 50, 60},
		{70, 80, 90},
	}
	original := make([][]float64, 3)
	for i := range original {
		original[i] = append([]float64{}, components[i]...)
	}

	if err := m.Apply(components); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for i := range components[0] {
		if math.Abs(components[0][i]-original[0][i]*2) > 1e-9 {
			t.Errorf("forward R[%d]: got %v, want %v", i, components[0][i], original[0][i]*2)
		}
		if math.Abs(components[1][i]-original[1][i]*3) > 1e-9 {
			t.Errorf("forward G[%d]: got %v, want %v", i, components[1][i], original[1][i]*3)
		}
		if math.Abs(components[2][i]-original[2][i]*4) > 1e-9 {
			t.Errorf("forward B[%d]: got %v, want %v", i, components[2][i], original[2][i]*4)
		}
	}

	if err := m.ApplyInverse(components); err != nil {
		t.Fatalf("ApplyInverse: %v", err)
	}
	for c := range original {
		for i := range original[c] {
			if math.Abs(components[c][i]-original[c][i]) > 1e-9 {
				t.Errorf("roundtrip component %d, pos %d: got %v, want %v", c, i, components[c][i], original[c][i])
			}
		}
	}
}

func TestCustomMCT_LargerMatrix_Roundtrip(t *testing.T) {
	forward := []float64{
		1, 2, 0, 0,
		3, 4, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
	m := mustCustomMCT(t, forward, 4)

	components := [][]float64{
		{10, 20},
		{30, 40},
		{50, 60},
		{70, 80},
	}
	original := make([][]float64, 4)
	for i := range original {
		original[i] = append([]float64{}, components[i]...)
	}

	if err := m.Apply(components); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := m.ApplyInverse(components); err != nil {
		t.Fatalf("ApplyInverse: %v", err)
	}
	for c := range original {
		for i := range original[c] {
			if math.Abs(components[c][i]-original[c][i]) > 1e-6 {
				t.Errorf("4x4 roundtrip component %d, pos %d: got %v, want %v", c, i, components[c][i], original[c][i])
			}
		}
	}
}

func TestCustomMCT_4x4_WithPivoting(t *testing.T) {
	// First pivot is 0, forces a row swap during elimination.
	forward := []float64{
		0, 1, 0, 0,
		1, 0, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
	m := mustCustomMCT(t, forward, 4)

	// Permutation matrix: inverse equals transpose.
	expected := []float64{
		0, 1, 0, 0,
		1, 0, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
	for i := range expected {
		if math.Abs(m.Inverse[i]-expected[i]) > 1e-9 {
			t.Errorf("inverse[%d]: got %v, want %v", i, m.Inverse[i], expected[i])
		}
	}
}

func TestCustomMCT_5x5_Diagonal(t *testing.T) {
	forward := make([]float64, 25)
	for i := 0; i < 5; i++ {
		forward[i*5+i] = float64(i + 1)
	}
	m := mustCustomMCT(t, forward, 5)

	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			expected := 0.0
			if i == j {
				expected = 1.0 / float64(i+1)
			}
			if math.Abs(m.Inverse[i*5+j]-expected) > 1e-9 {
				t.Errorf("inverse[%d][%d]: got %v, want %v", i, j, m.Inverse[i*5+j], expected)
			}
		}
	}
}

func TestCustomMCT_Apply_WrongComponentCount(t *testing.T) {
	m := mustCustomMCT(t, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}, 3)

	components := [][]float64{{100, 200}, {110, 190}}
	original := [][]float64{append([]float64{}, components[0]...), append([]float64{}, components[1]...)}

	if err := m.Apply(components); err == nil {
		t.Error("Apply with wrong component count: want error, got nil")
	}
	for c := range original {
		for i := range original[c] {
			if components[c][i] != original[c][i] {
				t.Errorf("wrong component count: component %d, pos %d was modified despite the error", c, i)
			}
		}
	}
}

func TestCustomMCT_ApplyInverse_WrongComponentCount(t *testing.T) {
	m := mustCustomMCT(t, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}, 3)

	components := [][]float64{{100, 200}, {110, 190}}
	original := [][]float64{append([]float64{}, components[0]...), append([]float64{}, components[1]...)}

	if err := m.ApplyInverse(components); err == nil {
		t.Error("ApplyInverse with wrong component count: want error, got nil")
	}
	for c := range original {
		for i := range original[c] {
			if components[c][i] != original[c][i] {
				t.Errorf("wrong component count inverse: component %d, pos %d was modified despite the error", c, i)
			}
		}
	}
}

func TestCustomMCT_Apply_MismatchedSampleCounts(t *testing.T) {
	m := mustCustomMCT(t, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}, 3)
	components := [][]float64{{1, 2, 3}, {1, 2}, {1, 2, 3}}
	if err := m.Apply(components); err == nil {
		t.Error("Apply with mismatched sample counts: want error, got nil")
	}
}
