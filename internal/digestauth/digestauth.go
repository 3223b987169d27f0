// Package digestauth wraps github.com/icholy/digest to compute the
// Authorization header value for a SIP request challenged with 401/407, per
// RFC 2617 / RFC 3261 §22.
package digestauth

import (
	"fmt"

	"github.com/icholy/digest"
)

// Challenge is a parsed WWW-Authenticate/Proxy-Authenticate header.
type Challenge = digest.Challenge

// ParseChallenge parses the value of a WWW-Authenticate or
// Proxy-Authenticate header.
func ParseChallenge(header string) (*Challenge, error) {
	chal, err := digest.ParseChallenge(header)
	if err != nil {
		return nil, fmt.Errorf("digestauth: parsing challenge: %w", err)
	}
	return chal, nil
}

// Credentials holds what Compute needs beyond the challenge itself.
type Credentials struct {
	Method   string
	URI      string
	Username string
	Password string
}

// Compute produces the Authorization/Proxy-Authorization header value for
// chal using creds. qop, if the server requested it, is handled by the
// underlying digest package (cnonce and nc are generated for us).
func Compute(chal *Challenge, creds Credentials) (string, error) {
	cred, err := digest.Digest(chal, digest.Options{
		Method:   creds.Method,
		URI:      creds.URI,
		Username: creds.Username,
		Password: creds.Password,
	})
	if err != nil {
		return "", fmt.Errorf("digestauth: computing response: %w", err)
	}
	return cred.String(), nil
}
