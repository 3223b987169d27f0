// Package sdp implements the narrow slice of SDP (RFC 4566) this softphone
// needs: extracting the remote media address from an answer, and building
// the one fixed offer it ever sends.
package sdp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMissingConnection is returned when an SDP body has no c= line.
var ErrMissingConnection = errors.New("sdp: missing c= connection line")

// ErrMissingMedia is returned when an SDP body has no m=audio line.
var ErrMissingMedia = errors.New("sdp: missing m=audio media line")

// Offer describes the fixed audio offer this UA always sends.
type Offer struct {
	LocalIP   string
	RTPPort   int
	SessionID int64
}

// Remote is the information this softphone extracts from an SDP answer: the
// address and port to send RTP to, and the payload type the peer chose.
type Remote struct {
	Address     string
	Port        int
	PayloadType int
}

// Parse scans body line by line for the first c=IN IP4 line and the first
// m=audio line, returning the remote media address, port, and first
// (highest-priority) payload type offered.
func Parse(body string) (Remote, error) {
	var r Remote
	haveConnection := false
	haveMedia := false

	for _, line := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case !haveConnection && strings.HasPrefix(line, "c=IN IP4 "):
			r.Address = strings.TrimSpace(strings.TrimPrefix(line, "c=IN IP4 "))
			haveConnection = true
		case !haveMedia && strings.HasPrefix(line, "m=audio "):
			fields := strings.Fields(strings.TrimPrefix(line, "m=audio "))
			if len(fields) < 3 {
				continue
			}
			port, err := strconv.Atoi(fields[0])
			if err != nil {
				continue
			}
			pt, err := strconv.Atoi(fields[2])
			if err != nil {
				continue
			}
			r.Port = port
			r.PayloadType = pt
			haveMedia = true
		}
	}

	if !haveConnection {
		return Remote{}, ErrMissingConnection
	}
	if !haveMedia {
		return Remote{}, ErrMissingMedia
	}
	return r, nil
}

// Build renders the fixed PCMU/PCMA/telephone-event offer this UA sends
// with every INVITE.
func Build(o Offer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "v=0\r\n")
	fmt.Fprintf(&b, "o=- %d %d IN IP4 %s\r\n", o.SessionID, o.SessionID, o.LocalIP)
	fmt.Fprintf(&b, "s=\r\n")
	fmt.Fprintf(&b, "c=IN IP4 %s\r\n", o.LocalIP)
	fmt.Fprintf(&b, "t=0 0\r\n")
	fmt.Fprintf(&b, "m=audio %d RTP/AVP 0 8 101\r\n", o.RTPPort)
	fmt.Fprintf(&b, "a=rtpmap:0 PCMU/8000\r\n")
	fmt.Fprintf(&b, "a=rtpmap:8 PCMA/8000\r\n")
	fmt.Fprintf(&b, "a=rtpmap:101 telephone-event/8000\r\n")
	fmt.Fprintf(&b, "a=sendrecv\r\n")
	return b.String()
}
