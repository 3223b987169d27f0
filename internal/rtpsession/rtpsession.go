// Package rtpsession binds a local UDP port to one remote RTP peer and
// sends/receives G.711 payloads, per RFC 3550, with no jitter buffer,
// reordering, SSRC validation, or RTCP: the playback buffer upstream
// absorbs arrival jitter instead.
package rtpsession

import (
	"fmt"
	"math/rand/v2"
	"net"

	"github.com/duophone/duophone/internal/rtpwire"
)

const (
	// timestampIncrement is the RTP timestamp step per 20ms packet at the
	// 8kHz clock rate G.711 uses: 8000 * 0.020 = 160.
	timestampIncrement = 160

	// recvBufSize is large enough for any G.711 RTP packet (header + up to
	// a few dozen ms of 8-bit payload) with headroom.
	recvBufSize = 2048
)

// Session is a bound RTP socket talking to exactly one remote peer.
type Session struct {
	conn        *net.UDPConn
	remote      *net.UDPAddr
	payloadType uint8
	ssrc        uint32
	seq         uint16
	ts          uint32
}

// New binds localPort and targets remoteAddr for the given payload type.
func New(localPort int, remoteAddr string, payloadType uint8) (*Session, error) {
	remote, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("rtpsession: resolving remote addr %q: %w", remoteAddr, err)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: localPort})
	if err != nil {
		return nil, fmt.Errorf("rtpsession: binding local port %d: %w", localPort, err)
	}

	return &Session{
		conn:        conn,
		remote:      remote,
		payloadType: payloadType,
		ssrc:        rand.Uint32(),
		seq:         uint16(rand.Uint32()),
		ts:          rand.Uint32(),
	}, nil
}

// SendAudio packs payload into one RTP packet at the session's current
// sequence number and timestamp, sends it, then advances both.
func (s *Session) SendAudio(payload []byte) error {
	pkt := &rtpwire.Packet{
		PayloadType:    s.payloadType,
		SequenceNumber: s.seq,
		Timestamp:      s.ts,
		SSRC:           s.ssrc,
		Payload:        payload,
	}

	if _, err := s.conn.WriteToUDP(pkt.Serialize(), s.remote); err != nil {
		return fmt.Errorf("rtpsession: sending packet: %w", err)
	}

	s.seq++
	s.ts += timestampIncrement
	return nil
}

// ReceiveAudio reads one UDP datagram and returns its RTP payload.
func (s *Session) ReceiveAudio() ([]byte, error) {
	buf := make([]byte, recvBufSize)
	n, _, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, fmt.Errorf("rtpsession: reading packet: %w", err)
	}

	pkt, err := rtpwire.Parse(buf[:n])
	if err != nil {
		return nil, fmt.Errorf("rtpsession: parsing packet: %w", err)
	}
	return pkt.Payload, nil
}

// LocalPort returns the bound local UDP port.
func (s *Session) LocalPort() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

// Close releases the underlying UDP socket.
func (s *Session) Close() error {
	return s.conn.Close()
}
