// Package rtpwire implements RTP packet framing per RFC 3550: the 12-byte
// fixed header plus an optional CSRC list, and the payload that follows it.
package rtpwire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	fixedHeaderLen = 12
	rtpVersion     = 2
)

// ErrTooShort is returned when a buffer is shorter than the fixed RTP
// header.
var ErrTooShort = errors.New("rtpwire: buffer shorter than fixed RTP header")

// ErrHeaderIncomplete is returned when a buffer is long enough to hold the
// fixed header but not the CSRC list the header's CC field declares.
var ErrHeaderIncomplete = errors.New("rtpwire: buffer too short for declared CSRC count")

// Packet is a parsed RTP packet. Only the fields this softphone needs are
// kept: Serialize never sets the padding or extension bits, and Parse
// ignores them, accepting such packets with any padding or extension bytes
// left in Payload.
type Packet struct {
	Version        uint8
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	CSRC           []uint32
	Payload        []byte
}

// Serialize packs p into its RFC 3550 wire representation.
func (p *Packet) Serialize() []byte {
	headerLen := fixedHeaderLen + 4*len(p.CSRC)
	buf := make([]byte, headerLen+len(p.Payload))

	buf[0] = (rtpVersion << 6) | byte(len(p.CSRC)&0x0F)
	buf[1] = p.PayloadType & 0x7F
	if p.Marker {
		buf[1] |= 0x80
	}
	binary.BigEndian.PutUint16(buf[2:4], p.SequenceNumber)
	binary.BigEndian.PutUint32(buf[4:8], p.Timestamp)
	binary.BigEndian.PutUint32(buf[8:12], p.SSRC)

	off := fixedHeaderLen
	for _, csrc := range p.CSRC {
		binary.BigEndian.PutUint32(buf[off:off+4], csrc)
		off += 4
	}

	copy(buf[headerLen:], p.Payload)
	return buf
}

// Parse decodes an RTP packet from its wire representation.
func Parse(buf []byte) (*Packet, error) {
	if len(buf) < fixedHeaderLen {
		return nil, fmt.Errorf("rtpwire: parsing header: %w", ErrTooShort)
	}

	cc := int(buf[0] & 0x0F)
	headerLen := fixedHeaderLen + 4*cc
	if len(buf) < headerLen {
		return nil, fmt.Errorf("rtpwire: parsing %d CSRC entries: %w", cc, ErrHeaderIncomplete)
	}

	p := &Packet{
		Version:        buf[0] >> 6,
		Marker:         buf[1]&0x80 != 0,
		PayloadType:    buf[1] & 0x7F,
		SequenceNumber: binary.BigEndian.Uint16(buf[2:4]),
		Timestamp:      binary.BigEndian.Uint32(buf[4:8]),
		SSRC:           binary.BigEndian.Uint32(buf[8:12]),
	}

	if cc > 0 {
		p.CSRC = make([]uint32, cc)
		off := fixedHeaderLen
		for i := range p.CSRC {
			p.CSRC[i] = binary.BigEndian.Uint32(buf[off : off+4])
			off += 4
		}
	}

	p.Payload = append([]byte(nil), buf[headerLen:]...)
	return p, nil
}
