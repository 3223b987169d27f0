package digestauth

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"testing"
)

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestComputeWithoutQop(t *testing.T) {
	chal, err := ParseChallenge(`Digest realm="a", nonce="b"`)
	if err != nil {
		t.Fatalf("ParseChallenge: %v", err)
	}

	header, err := Compute(chal, Credentials{
		Method:   "REGISTER",
		URI:      "sip:s",
		Username: "u",
		Password: "p",
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	ha1 := md5hex("u:a:p")
	ha2 := md5hex("REGISTER:sip:s")
	want := md5hex(ha1 + ":b:" + ha2)

	if !strings.Contains(header, `response="`+want+`"`) {
		t.Fatalf("header %q does not contain response=%q", header, want)
	}
}

func TestParseChallengeMissingHeader(t *testing.T) {
	if _, err := ParseChallenge(""); err == nil {
		t.Fatal("expected error parsing empty challenge, got nil")
	}
}

func TestComputeWithQop(t *testing.T) {
	chal, err := ParseChallenge(`Digest realm="a", nonce="b", qop="auth"`)
	if err != nil {
		t.Fatalf("ParseChallenge: %v", err)
	}

	header, err := Compute(chal, Credentials{
		Method:   "REGISTER",
		URI:      "sip:s",
		Username: "u",
		Password: "p",
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	for _, want := range []string{`nc=`, `cnonce=`, `qop=`, `username="u"`, `realm="a"`, `nonce="b"`} {
		if !strings.Contains(header, want) {
			t.Errorf("header %q missing %s", header, want)
		}
	}
}
