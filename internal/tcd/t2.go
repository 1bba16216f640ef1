package tcd

// ProgressionOrder selects the order in which (resolution, component,
// layer, precinct) packet coordinates are visited. Packet
// *serialization* (marker bytes, tag-tree coded packet headers) is an
// external collaborator per spec.md §1/§6; this package only models the
// four-coordinate iteration order a packetizer downstream would need.
type ProgressionOrder int

const (
	LRCP ProgressionOrder = iota // layer, resolution, component, position
	RLCP                         // resolution, layer, component, position
	RPCL                         // resolution, position, component, layer
	PCRL                         // position, component, resolution, layer
	CPRL                         // component, position, resolution, layer
)

// PacketCoord identifies one packet's coordinates in the progression.
type PacketCoord struct {
	Layer      int
	Resolution int
	Component  int
	Precinct   int
}

// PacketIterator walks the packet coordinate space for a tile in the
// configured progression order.
type PacketIterator struct {
	order ProgressionOrder

	numLayers      int
	numResolutions int
	numComponents  int
	numPrecincts   int

	layer, res, comp, prec int
	started                bool
	done                   bool
}

// NewPacketIterator creates an iterator over the packet coordinate space
// implied by the given counts.
func NewPacketIterator(order ProgressionOrder, numLayers, numResolutions, numComponents, numPrecincts int) *PacketIterator {
	return &PacketIterator{
		order:          order,
		numLayers:      numLayers,
		numResolutions: numResolutions,
		numComponents:  numComponents,
		numPrecincts:   numPrecincts,
	}
}

// Next returns the next packet coordinate in progression order, and
// false once the iteration space is exhausted.
func (pi *PacketIterator) Next() (PacketCoord, bool) {
	if pi.numLayers <= 0 || pi.numResolutions <= 0 || pi.numComponents <= 0 || pi.numPrecincts <= 0 {
		return PacketCoord{}, false
	}
	if pi.done {
		return PacketCoord{}, false
	}
	if !pi.started {
		pi.started = true
		return pi.current(), true
	}
	if !pi.advance() {
		pi.done = true
		return PacketCoord{}, false
	}
	return pi.current(), true
}

func (pi *PacketIterator) current() PacketCoord {
	return PacketCoord{Layer: pi.layer, Resolution: pi.res, Component: pi.comp, Precinct: pi.prec}
}

// Reset rewinds the iterator to the first coordinate.
func (pi *PacketIterator) Reset() {
	pi.layer, pi.res, pi.comp, pi.prec = 0, 0, 0, 0
	pi.started = false
	pi.done = false
}

// advance steps to the next coordinate tuple per the configured
// progression's nesting order (outermost listed first increments
// slowest).
func (pi *PacketIterator) advance() bool {
	switch pi.order {
	case LRCP:
		return pi.advanceNested(&pi.layer, pi.numLayers, &pi.res, pi.numResolutions, &pi.comp, pi.numComponents, &pi.prec, pi.numPrecincts)
	case RLCP:
		return pi.advanceNested(&pi.res, pi.numResolutions, &pi.layer, pi.numLayers, &pi.comp, pi.numComponents, &pi.prec, pi.numPrecincts)
	case RPCL:
		return pi.advanceNested(&pi.res, pi.numResolutions, &pi.prec, pi.numPrecincts, &pi.comp, pi.numComponents, &pi.layer, pi.numLayers)
	case PCRL:
		return pi.advanceNested(&pi.prec, pi.numPrecincts, &pi.comp, pi.numComponents, &pi.res, pi.numResolutions, &pi.layer, pi.numLayers)
	case CPRL:
		return pi.advanceNested(&pi.comp, pi.numComponents, &pi.prec, pi.numPrecincts, &pi.res, pi.numResolutions, &pi.layer, pi.numLayers)
	default:
		return false
	}
}

// advanceNested increments a 4-level nested counter (outermost first)
// and reports whether the whole space has more coordinates left.
func (pi *PacketIterator) advanceNested(c0 *int, n0 int, c1 *int, n1 int, c2 *int, n2 int, c3 *int, n3 int) bool {
	*c3++
	if *c3 < n3 {
		return true
	}
	*c3 = 0
	*c2++
	if *c2 < n2 {
		return true
	}
	*c2 = 0
	*c1++
	if *c1 < n1 {
		return true
	}
	*c1 = 0
	*c0++
	return *c0 < n0
}
