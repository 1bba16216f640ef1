package dwt

// BoundaryMode selects how a 1-D lifting transform extends a signal
// past its edges to supply the lifting kernel's out-of-range neighbor
// samples.
type BoundaryMode int

const (
	// Symmetric is the JPEG 2000 default: whole-sample mirror, so the
	// virtual sample at x[-1] equals x[1], x[-2] equals x[2], and
	// symmetrically at the right edge.
	Symmetric BoundaryMode = iota
	// Periodic wraps around: x[-1] equals x[n-1], x[n] equals x[0].
	Periodic
	// ZeroPadding treats every out-of-range sample as zero.
	ZeroPadding
)

// at returns data[i], extending past either edge according to mode.
// Because it reads the CURRENT contents of data rather than a
// precomputed extension, it stays correct across successive lifting
// steps that mutate data in place (the value a later step sees for a
// mirrored neighbor reflects earlier steps' updates, exactly as if the
// signal had really been mirrored before any lifting ran).
func at(data []int32, i int, mode BoundaryMode) int32 {
	n := len(data)
	if i >= 0 && i < n {
		return data[i]
	}
	switch mode {
	case Periodic:
		return data[((i%n)+n)%n]
	case ZeroPadding:
		return 0
	default: // Symmetric
		if i < 0 {
			return data[-i]
		}
		return data[2*n-2-i]
	}
}

func atFloat(data []float64, i int, mode BoundaryMode) float64 {
	n := len(data)
	if i >= 0 && i < n {
		return data[i]
	}
	switch mode {
	case Periodic:
		return data[((i%n)+n)%n]
	case ZeroPadding:
		return 0
	default:
		if i < 0 {
			return data[-i]
		}
		return data[2*n-2-i]
	}
}
