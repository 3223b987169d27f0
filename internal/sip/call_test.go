package sip

import (
	"net"
	"strconv"
	"strings"
	"testing"
	"time"
)

// fakePeer answers an INVITE with 180 Ringing followed by 200 OK carrying a
// minimal SDP answer, and answers any BYE with 200 OK.
// Received ACK and BYE requests are pushed onto the returned channel.
func fakePeer(t *testing.T) (*net.UDPConn, <-chan string) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("starting fake peer: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	requests := make(chan string, 8)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			raw := string(buf[:n])
			switch {
			case strings.HasPrefix(raw, "INVITE"):
				conn.WriteToUDP([]byte("SIP/2.0 180 Ringing\r\nTo: <sip:bob@x.com>;tag=peer-tag\r\nContent-Length: 0\r\n\r\n"), addr)
				sdp := "v=0\r\no=- 1 1 IN IP4 127.0.0.1\r\ns=\r\nc=IN IP4 127.0.0.1\r\nt=0 0\r\nm=audio 17500 RTP/AVP 0\r\na=rtpmap:0 PCMU/8000\r\n"
				okResp := "SIP/2.0 200 OK\r\nTo: <sip:bob@x.com>;tag=peer-tag\r\nContent-Type: application/sdp\r\nContent-Length: " +
					strconv.Itoa(len(sdp)) + "\r\n\r\n" + sdp
				conn.WriteToUDP([]byte(okResp), addr)
			case strings.HasPrefix(raw, "ACK"):
				requests <- raw
			case strings.HasPrefix(raw, "BYE"):
				requests <- raw
				conn.WriteToUDP([]byte("SIP/2.0 200 OK\r\nContent-Length: 0\r\n\r\n"), addr)
			}
		}
	}()
	return conn, requests
}

func TestMakeCallReachesConfirmedAfterRinging(t *testing.T) {
	registrar := fakeRegistrar(t)
	regDest := registrar.LocalAddr().(*net.UDPAddr)
	cfg := testConfig(t, regDest.String())

	ua, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ua.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := ua.Register(regDest.String(), cfg.AccountUser, cfg.AccountPass); err != nil {
		t.Fatalf("Register: %v", err)
	}
	drainEvents(ua)

	peer, peerRequests := fakePeer(t)
	peerDest := peer.LocalAddr().(*net.UDPAddr)

	// Point the UA's call at the fake peer by using its address as both
	// the registrar (for Request-URI construction) and destination.
	ua.cfg.RegistrarHost = peerDest.IP.String()
	ua.cfg.RegistrarPort = peerDest.Port

	if err := ua.MakeCall("18005550100"); err != nil {
		t.Fatalf("MakeCall: %v", err)
	}

	ua.mu.Lock()
	dialog := ua.dialog
	ua.mu.Unlock()
	if dialog == nil {
		t.Fatal("dialog is nil after a confirmed call")
	}
	if dialog.State != StateConfirmed {
		t.Errorf("dialog.State = %v, want Confirmed", dialog.State)
	}
	if dialog.ToTag != "peer-tag" {
		t.Errorf("dialog.ToTag = %q, want peer-tag", dialog.ToTag)
	}

	select {
	case ack := <-peerRequests:
		// The INVITE was not challenged, so the ACK carries its CSeq of 1.
		if !strings.HasPrefix(ack, "ACK ") || !strings.Contains(ack, "CSeq: 1 ACK") {
			t.Errorf("peer did not receive an ACK matching the 2xx CSeq, got:\n%s", ack)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ACK at the peer")
	}

	if err := ua.HangupCall(); err != nil {
		t.Fatalf("HangupCall: %v", err)
	}

	select {
	case bye := <-peerRequests:
		if !strings.HasPrefix(bye, "BYE ") || !strings.Contains(bye, "tag=peer-tag") {
			t.Errorf("BYE must carry the learned to-tag, got:\n%s", bye)
		}
		if !strings.Contains(bye, "CSeq: 2 BYE") {
			t.Errorf("BYE CSeq must be the dialog counter plus one, got:\n%s", bye)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for BYE at the peer")
	}
	ua.mu.Lock()
	cleared := ua.dialog
	ua.mu.Unlock()
	if cleared != nil {
		t.Error("dialog should be cleared after HangupCall")
	}
}

func drainEvents(ua *UserAgent) {
	for {
		select {
		case <-ua.Events():
		case <-time.After(10 * time.Millisecond):
			return
		}
	}
}
