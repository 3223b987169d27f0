package sip

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/duophone/duophone/internal/digestauth"
)

// Credentials is the account identity used to answer a digest challenge.
type Credentials struct {
	Username string
	Password string
}

// TransactionResult is what SendWithAuth hands back: the final response
// and the CSeq number of the request that elicited it (1, or 2 if an auth
// retry occurred), which callers need to build a matching ACK.
type TransactionResult struct {
	Response *Response
	CSeq     int
}

// SendWithAuth runs the generic "send with auth retry" transaction: send
// the initial request, wait for a final response while dropping 1xx
// provisionals, and on 401/407 rebuild the request with a computed
// Authorization header, a bumped CSeq, and a fresh branch before resending
// once. A resubmission that is challenged again fails with AuthFailure.
// Lost packets are not retransmitted.
func SendWithAuth(t *Transport, dest *net.UDPAddr, raw, method, uri string, creds Credentials, timeout time.Duration) (*TransactionResult, error) {
	if err := t.Send(raw, dest); err != nil {
		return nil, err
	}

	resp, err := recvFinal(t, timeout)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != 401 && resp.StatusCode != 407 {
		return &TransactionResult{Response: resp, CSeq: 1}, nil
	}

	challengeHeader, authzHeader := "www-authenticate", "Authorization"
	if resp.StatusCode == 407 {
		challengeHeader, authzHeader = "proxy-authenticate", "Proxy-Authorization"
	}

	headerValue, ok := resp.Header(challengeHeader)
	if !ok {
		return nil, newErr(AuthFailure, "received %d with no %s header", resp.StatusCode, challengeHeader)
	}

	chal, err := digestauth.ParseChallenge(headerValue)
	if err != nil {
		return nil, &Error{Kind: AuthFailure, Err: err}
	}

	authValue, err := digestauth.Compute(chal, digestauth.Credentials{
		Method:   method,
		URI:      uri,
		Username: creds.Username,
		Password: creds.Password,
	})
	if err != nil {
		return nil, &Error{Kind: AuthFailure, Err: err}
	}

	retry, err := rebuildForAuth(raw, method, authzHeader, authValue)
	if err != nil {
		return nil, newErr(ProtocolError, "rebuilding %s for auth retry: %w", method, err)
	}

	if err := t.Send(retry, dest); err != nil {
		return nil, err
	}

	resp2, err := recvFinal(t, timeout)
	if err != nil {
		return nil, err
	}
	if resp2.StatusCode == 401 || resp2.StatusCode == 407 {
		return nil, newErr(AuthFailure, "%s challenged again after auth retry (%s)", method, resp2.StatusLine())
	}

	return &TransactionResult{Response: resp2, CSeq: 2}, nil
}

// recvFinal loops Transport.Recv, dropping 1xx provisional responses,
// until a final (>=200) response arrives or the per-recv timeout elapses.
func recvFinal(t *Transport, timeout time.Duration) (*Response, error) {
	for {
		resp, err := t.Recv(timeout)
		if err != nil {
			return nil, err
		}
		if resp.IsProvisional() {
			continue
		}
		return resp, nil
	}
}

// rebuildForAuth inserts the Authorization/Proxy-Authorization header,
// rewrites CSeq from 1 to 2, and replaces the top Via's branch with a
// fresh one.
func rebuildForAuth(raw, method, authzHeader, authValue string) (string, error) {
	withAuth, err := insertAuthHeader(raw, authzHeader, authValue)
	if err != nil {
		return "", err
	}
	withCSeq := rewriteCSeq(withAuth, method, 2)
	return replaceBranch(withCSeq, NewBranch())
}

// insertAuthHeader inserts "<name>: <value>\r\n" just before Content-Type,
// or Content-Length if there is no Content-Type, or after User-Agent if
// there is neither.
func insertAuthHeader(raw, name, value string) (string, error) {
	line := name + ": " + value + "\r\n"

	if idx := strings.Index(raw, "Content-Type:"); idx >= 0 {
		return raw[:idx] + line + raw[idx:], nil
	}
	if idx := strings.Index(raw, "Content-Length:"); idx >= 0 {
		return raw[:idx] + line + raw[idx:], nil
	}
	if idx := strings.Index(raw, "User-Agent:"); idx >= 0 {
		lineEnd := strings.Index(raw[idx:], "\r\n")
		if lineEnd < 0 {
			return "", newErr(ProtocolError, "User-Agent header has no line terminator")
		}
		insertAt := idx + lineEnd + len("\r\n")
		return raw[:insertAt] + line + raw[insertAt:], nil
	}
	return "", newErr(ProtocolError, "no insertion point for %s header", name)
}

// rewriteCSeq replaces "CSeq: 1 <method>" with "CSeq: <newSeq> <method>".
func rewriteCSeq(raw, method string, newSeq int) string {
	old := "CSeq: 1 " + method
	repl := "CSeq: " + strconv.Itoa(newSeq) + " " + method
	return strings.Replace(raw, old, repl, 1)
}

// replaceBranch replaces the branch= parameter on the first Via header.
func replaceBranch(raw, newBranch string) (string, error) {
	viaIdx := strings.Index(raw, "Via:")
	if viaIdx < 0 {
		return "", newErr(ProtocolError, "no Via header to rewrite branch on")
	}
	branchIdx := strings.Index(raw[viaIdx:], "branch=")
	if branchIdx < 0 {
		return "", newErr(ProtocolError, "Via header has no branch parameter")
	}
	start := viaIdx + branchIdx + len("branch=")
	end := strings.IndexAny(raw[start:], ";\r\n")
	if end < 0 {
		return "", newErr(ProtocolError, "branch parameter has no terminator")
	}
	return raw[:start] + newBranch + raw[start+end:], nil
}
