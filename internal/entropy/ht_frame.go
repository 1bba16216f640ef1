// Package entropy - ht_frame.go implements the HTJ2K capability markers
// and the length-prefixed sub-stream framing that wraps HTEncoder's
// MagSgn/MEL/VLC output for transport.
package entropy

import (
	"bytes"
	"encoding/binary"

	"github.com/halcyon-imaging/jpeg2000/internal/bio"
)

// HTProfile selects the HTJ2K coding profile advertised in CPF.
type HTProfile uint8

const (
	// ProfileReversible marks a block coded with a reversible transform.
	ProfileReversible HTProfile = 0
	// ProfileIrreversible marks a block coded with an irreversible transform.
	ProfileIrreversible HTProfile = 1
)

// CapabilityMarker is the CAP (ISO/IEC 15444-1 A.5.1, extended by Part
// 15 Annex A) capability record. Pcap's bit 15 (counting from the MSB
// of the 32-bit field) signals that Part 15 extended capabilities
// follow in Ccap15.
type CapabilityMarker struct {
	Pcap uint32
	// Ccap15 carries the Part 15 extended-capability word: bit 0 flags
	// mixed HT/non-HT code-block usage within a tile-component, and
	// bits 1-2 carry the coding profile.
	Ccap15 uint16
	Mixed  bool
	Profile HTProfile
}

const pcapPart15Bit = 1 << 16 // bit 15, numbered from bit 0 = MSB of a 32-bit field per Annex A.5.1

// NewCapabilityMarker builds a CAP/CPF record for an HTJ2K-coded
// tile-component.
func NewCapabilityMarker(profile HTProfile, mixed bool) CapabilityMarker {
	c := CapabilityMarker{Pcap: pcapPart15Bit, Profile: profile, Mixed: mixed}
	c.Ccap15 = uint16(profile) << 1
	if mixed {
		c.Ccap15 |= 1
	}
	return c
}

// Encode serializes the marker. The payload is 6 bytes when Part 15
// capabilities are present (4-byte Pcap + 2-byte Ccap15), or 4 bytes
// for a bare Pcap with no extension.
func (c CapabilityMarker) Encode() []byte {
	if c.Pcap&pcapPart15Bit == 0 {
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, c.Pcap)
		return buf
	}
	buf := make([]byte, 6)
	binary.BigEndian.PutUint32(buf[0:4], c.Pcap)
	binary.BigEndian.PutUint16(buf[4:6], c.Ccap15)
	return buf
}

// DecodeCapabilityMarker parses a CAP marker payload produced by Encode.
func DecodeCapabilityMarker(data []byte) (CapabilityMarker, error) {
	if len(data) < 4 {
		return CapabilityMarker{}, &ErrInvalidData{Context: "CAP marker shorter than 4 bytes"}
	}
	c := CapabilityMarker{Pcap: binary.BigEndian.Uint32(data[0:4])}
	if c.Pcap&pcapPart15Bit == 0 {
		return c, nil
	}
	if len(data) < 6 {
		return CapabilityMarker{}, &ErrInvalidData{Context: "CAP marker missing Ccap15 extension"}
	}
	c.Ccap15 = binary.BigEndian.Uint16(data[4:6])
	c.Profile = HTProfile((c.Ccap15 >> 1) & 0x3)
	c.Mixed = c.Ccap15&1 != 0
	return c, nil
}

// FramedPayload is a length-prefixed container for the three HTJ2K
// cleanup-pass sub-streams: the header gives each sub-stream's length
// so a decoder can slice the concatenated body without re-deriving
// SCUP from trailer bytes.
type FramedPayload struct {
	MelLen    uint32
	VlcLen    uint32
	MagSgnLen uint32
	Body      []byte
}

// EncodeHTBlock runs HTEncoder.Encode and repackages its MagSgn|MEL+VLC
// body with a length prefix, so code-block payloads reach the tile
// assembler without needing to rescan trailer bytes. The prefix holds
// two lengths, magsgn_len and then the combined MEL+VLC length; MEL and
// VLC are not framed separately. The two lengths
// are written with bio's variable-length codec rather than fixed-width
// fields, since most code-blocks' sub-streams fit in one or two bytes
// and a fixed 4-byte-per-field header would waste more than it frames.
func EncodeHTBlock(e *HTEncoder, bandType int) []byte {
	raw := e.Encode(bandType)
	if raw == nil {
		return nil
	}
	scup := int(raw[len(raw)-1]) + int(raw[len(raw)-2])<<8
	magSgnLen := len(raw) - scup
	melVlcLen := scup - 2

	var header bytes.Buffer
	vw := bio.NewVariableLengthWriter(&header)
	// mel/vlc split is not separable post-hoc from the SCUP trailer
	// alone; melVlcLen covers both sub-streams, framed as a single
	// field (vlc_len folds into the remainder).
	_ = vw.Write(uint32(magSgnLen))
	_ = vw.Write(uint32(melVlcLen))

	out := make([]byte, 0, header.Len()+magSgnLen+melVlcLen)
	out = append(out, header.Bytes()...)
	out = append(out, raw[:magSgnLen+melVlcLen]...)
	return out
}

// DecodeHTBlock reverses EncodeHTBlock's framing and feeds the
// reconstructed SCUP-terminated block to HTDecoder.Decode.
func DecodeHTBlock(d *HTDecoder, framed []byte, numBitplanes, bandType int) ([]int32, error) {
	r := bytes.NewReader(framed)
	vr := bio.NewVariableLengthReader(r)
	magSgnLenRaw, err := vr.Read()
	if err != nil {
		return nil, &ErrTruncatedPayload{Context: "HT block framing header (magsgn_len)"}
	}
	melVlcLenRaw, err := vr.Read()
	if err != nil {
		return nil, &ErrTruncatedPayload{Context: "HT block framing header (mel_vlc_len)"}
	}
	magSgnLen, melVlcLen := int(magSgnLenRaw), int(melVlcLenRaw)

	body := framed[len(framed)-r.Len():]
	if len(body) < magSgnLen+melVlcLen {
		return nil, &ErrTruncatedPayload{Context: "HT block body"}
	}

	scup := melVlcLen + 2
	raw := make([]byte, magSgnLen+scup)
	copy(raw, body[:magSgnLen+melVlcLen])
	raw[len(raw)-2] = byte(scup >> 8)
	raw[len(raw)-1] = byte(scup & 0xFF)

	return d.Decode(raw, numBitplanes, bandType), nil
}
