package sip

import (
	"fmt"
	"strconv"
	"strings"
)

// Response is a parsed SIP status line plus headers and body. Headers keep
// only the first value per name (this UA's servers never fold headers
// across lines), stored by lower-cased name for case-insensitive lookup.
type Response struct {
	StatusCode int
	Reason     string
	Headers    map[string]string
	Body       string
	Raw        string
}

// ParseResponse parses one UDP datagram into a Response. It is deliberately
// forgiving of the exact header set: unrecognized headers are ignored, and
// a missing blank-line body separator just yields an empty body.
func ParseResponse(raw string) (*Response, error) {
	original := raw
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	headerPart, body, _ := strings.Cut(raw, "\n\n")
	if _, crlfBody, ok := strings.Cut(original, "\r\n\r\n"); ok {
		body = crlfBody
	}

	lines := strings.Split(headerPart, "\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, fmt.Errorf("sip: empty response")
	}

	statusFields := strings.SplitN(lines[0], " ", 3)
	if len(statusFields) < 2 || !strings.HasPrefix(statusFields[0], "SIP/2.0") {
		return nil, fmt.Errorf("sip: malformed status line %q", lines[0])
	}
	code, err := strconv.Atoi(statusFields[1])
	if err != nil {
		return nil, fmt.Errorf("sip: malformed status code %q: %w", statusFields[1], err)
	}
	reason := ""
	if len(statusFields) == 3 {
		reason = statusFields[2]
	}

	resp := &Response{
		StatusCode: code,
		Reason:     reason,
		Headers:    make(map[string]string),
		Body:       body,
		Raw:        raw,
	}
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(name))
		if _, seen := resp.Headers[key]; seen {
			continue
		}
		resp.Headers[key] = strings.TrimSpace(value)
	}
	return resp, nil
}

// Header looks up a header by name, case-insensitively.
func (r *Response) Header(name string) (string, bool) {
	v, ok := r.Headers[strings.ToLower(name)]
	return v, ok
}

// IsProvisional reports whether this is a 1xx response.
func (r *Response) IsProvisional() bool {
	return r.StatusCode >= 100 && r.StatusCode < 200
}

// StatusLine returns the first line of the response, for error messages.
func (r *Response) StatusLine() string {
	return fmt.Sprintf("SIP/2.0 %d %s", r.StatusCode, r.Reason)
}
