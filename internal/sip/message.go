// Package sip implements the slice of RFC 3261 this softphone needs: raw
// UDP message framing, the digest-auth retry transaction, and the
// dialog/UA controller that drives REGISTER, INVITE, ACK, and BYE.
//
// Requests and responses are built and parsed as plain text rather than
// through a full SIP stack: this UA only ever emits a small fixed header
// set, so a textual template is simpler and more auditable than a generic
// message object graph.
package sip

import (
	"fmt"
	"strings"

	gosip "github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
)

// UserAgentHeader is sent in every outbound request's User-Agent header.
const UserAgentHeader = "duophone/0.1"

// NewCallID returns a fresh globally-unique Call-ID.
func NewCallID() string {
	return uuid.NewString()
}

// NewTag returns a fresh From/To tag: a UUID with its dashes stripped.
func NewTag() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewBranch returns a fresh RFC 3261 magic-cookie branch parameter. A new
// one is required per transaction and per auth retry within a transaction.
func NewBranch() string {
	return "z9hG4bK" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ResolveDestination turns a dialed number into a Request-URI. A bare
// number is wrapped as sip:<number>@<server>; anything already shaped like
// a SIP URI is used as-is. Either way the result is validated with
// sipgo's URI parser so syntax errors (bad params, missing host) surface
// before a malformed INVITE ever reaches the wire.
func ResolveDestination(number, server string) (string, error) {
	uriText := number
	if !strings.HasPrefix(uriText, "sip:") && !strings.HasPrefix(uriText, "sips:") {
		uriText = fmt.Sprintf("sip:%s@%s", number, server)
	}
	var parsed gosip.Uri
	if err := gosip.ParseUri(uriText, &parsed); err != nil {
		return "", fmt.Errorf("sip: parsing destination %q: %w", uriText, err)
	}
	return uriText, nil
}

// nameAddr renders a From/To header value: a bare <uri>, or
// "Display Name" <uri> when a display name is configured.
func nameAddr(display, uri string) string {
	if display == "" {
		return fmt.Sprintf("<%s>", uri)
	}
	return fmt.Sprintf("%q <%s>", display, uri)
}

// RegisterParams holds everything BuildRegister needs to render one
// REGISTER request.
type RegisterParams struct {
	Server      string // registrar host[:port], used for Request-URI and From/To
	LocalAddr   string // advertised host:port for Via and Contact
	User        string
	DisplayName string
	CallID      string
	FromTag     string
	CSeq        int
	Expires     int
	Branch      string
}

// BuildRegister renders a REGISTER request: request-URI sip:<server>,
// From/To both the account AOR, Expires as given.
func BuildRegister(p RegisterParams) string {
	aor := fmt.Sprintf("sip:%s@%s", p.User, p.Server)
	contact := fmt.Sprintf("sip:%s@%s", p.User, p.LocalAddr)
	return fmt.Sprintf(
		"REGISTER sip:%s SIP/2.0\r\n"+
			"Via: SIP/2.0/UDP %s;branch=%s\r\n"+
			"From: %s;tag=%s\r\n"+
			"To: <%s>\r\n"+
			"Call-ID: %s\r\n"+
			"CSeq: %d REGISTER\r\n"+
			"Contact: <%s>\r\n"+
			"Max-Forwards: 70\r\n"+
			"Expires: %d\r\n"+
			"User-Agent: %s\r\n"+
			"Content-Length: 0\r\n"+
			"\r\n",
		p.Server, p.LocalAddr, p.Branch, nameAddr(p.DisplayName, aor), p.FromTag,
		aor, p.CallID, p.CSeq, contact, p.Expires, UserAgentHeader,
	)
}

// InviteParams holds everything BuildInvite needs to render one INVITE
// request carrying an SDP offer body.
type InviteParams struct {
	DestURI     string // request-URI and To, e.g. sip:bob@example.com
	Server      string // used to build the From AOR
	LocalAddr   string
	User        string
	DisplayName string
	CallID      string
	FromTag     string
	CSeq        int
	Branch      string
	SDP         string
}

// BuildInvite renders an INVITE request with an application/sdp body.
func BuildInvite(p InviteParams) string {
	from := fmt.Sprintf("sip:%s@%s", p.User, p.Server)
	contact := fmt.Sprintf("sip:%s@%s", p.User, p.LocalAddr)
	return fmt.Sprintf(
		"INVITE %s SIP/2.0\r\n"+
			"Via: SIP/2.0/UDP %s;branch=%s\r\n"+
			"From: %s;tag=%s\r\n"+
			"To: <%s>\r\n"+
			"Call-ID: %s\r\n"+
			"CSeq: %d INVITE\r\n"+
			"Contact: <%s>\r\n"+
			"Max-Forwards: 70\r\n"+
			"Content-Type: application/sdp\r\n"+
			"User-Agent: %s\r\n"+
			"Content-Length: %d\r\n"+
			"\r\n"+
			"%s",
		p.DestURI, p.LocalAddr, p.Branch, nameAddr(p.DisplayName, from), p.FromTag,
		p.DestURI, p.CallID, p.CSeq, contact, UserAgentHeader, len(p.SDP), p.SDP,
	)
}

// AckParams holds everything BuildAck needs. CSeq must equal the CSeq of
// the INVITE that elicited the 2xx this ACK confirms.
type AckParams struct {
	DestURI     string
	Server      string
	LocalAddr   string
	User        string
	DisplayName string
	CallID      string
	FromTag     string
	ToTag       string // empty if the 2xx's To header carried none
	CSeq        int
	Branch      string
}

// BuildAck renders a fire-and-forget ACK for a 2xx INVITE response.
func BuildAck(p AckParams) string {
	from := fmt.Sprintf("sip:%s@%s", p.User, p.Server)
	to := fmt.Sprintf("<%s>", p.DestURI)
	if p.ToTag != "" {
		to = fmt.Sprintf("<%s>;tag=%s", p.DestURI, p.ToTag)
	}
	return fmt.Sprintf(
		"ACK %s SIP/2.0\r\n"+
			"Via: SIP/2.0/UDP %s;branch=%s\r\n"+
			"From: %s;tag=%s\r\n"+
			"To: %s\r\n"+
			"Call-ID: %s\r\n"+
			"CSeq: %d ACK\r\n"+
			"Max-Forwards: 70\r\n"+
			"User-Agent: %s\r\n"+
			"Content-Length: 0\r\n"+
			"\r\n",
		p.DestURI, p.LocalAddr, p.Branch, nameAddr(p.DisplayName, from), p.FromTag,
		to, p.CallID, p.CSeq, UserAgentHeader,
	)
}

// ByeParams holds everything BuildBye needs.
type ByeParams struct {
	DestURI     string
	Server      string
	LocalAddr   string
	User        string
	DisplayName string
	CallID      string
	FromTag     string
	ToTag       string
	CSeq        int
	Branch      string
}

// BuildBye renders a BYE request terminating an established dialog.
func BuildBye(p ByeParams) string {
	from := fmt.Sprintf("sip:%s@%s", p.User, p.Server)
	to := fmt.Sprintf("<%s>", p.DestURI)
	if p.ToTag != "" {
		to = fmt.Sprintf("<%s>;tag=%s", p.DestURI, p.ToTag)
	}
	return fmt.Sprintf(
		"BYE %s SIP/2.0\r\n"+
			"Via: SIP/2.0/UDP %s;branch=%s\r\n"+
			"From: %s;tag=%s\r\n"+
			"To: %s\r\n"+
			"Call-ID: %s\r\n"+
			"CSeq: %d BYE\r\n"+
			"Max-Forwards: 70\r\n"+
			"User-Agent: %s\r\n"+
			"Content-Length: 0\r\n"+
			"\r\n",
		p.DestURI, p.LocalAddr, p.Branch, nameAddr(p.DisplayName, from), p.FromTag,
		to, p.CallID, p.CSeq, UserAgentHeader,
	)
}

// ExtractToTag returns the tag= parameter of the first To: (or compact t:)
// header line, stopping at the first ';' after tag=. Additional quoted
// parameters after the tag could be misparsed; no server this UA talks to
// is expected to send any.
func ExtractToTag(raw string) string {
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if !strings.HasPrefix(line, "To:") && !strings.HasPrefix(line, "t:") {
			continue
		}
		idx := strings.Index(line, "tag=")
		if idx < 0 {
			return ""
		}
		rest := line[idx+len("tag="):]
		if semi := strings.IndexByte(rest, ';'); semi >= 0 {
			rest = rest[:semi]
		}
		return strings.TrimSpace(rest)
	}
	return ""
}
