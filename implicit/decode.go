package implicit

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// MalformedTokenMessage is the error reported for a segment which decodes but
// isn't JSON.
const MalformedTokenMessage = "Malformed token"

// MalformedToken stands in for a token segment that isn't JSON. It is
// returned as a value, not an error.
type MalformedToken struct {
	Error string `json:"error"`
}

// DecodedToken is the unverified view of a token: the JSON header and payload
// segments of a JWT.  A token which has no "." is returned as-is in Opaque.
type DecodedToken struct {
	Header  interface{} `json:"header,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	Opaque  string      `json:"-"`
}

// MarshalJSON renders an opaque token as a JSON string and a JWT as an object
// with header and payload.
func (d DecodedToken) MarshalJSON() ([]byte, error) {
	if d.Opaque != "" {
		return json.Marshal(d.Opaque)
	}
	type plain DecodedToken
	return json.Marshal(plain(d))
}

// DecodeToken splits raw on "." and decodes the first two segments.  The
// signature segment is ignored and nothing is verified.
func DecodeToken(raw string) (*DecodedToken, error) {
	const op = "implicit.DecodeToken"
	if raw == "" {
		return nil, fmt.Errorf("%s: token is empty: %w", op, ErrMissingToken)
	}
	if !strings.Contains(raw, ".") {
		return &DecodedToken{Opaque: raw}, nil
	}
	parts := strings.Split(raw, ".")
	header, err := DecodeSegment(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%s: unable to decode header: %w", op, err)
	}
	payload, err := DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%s: unable to decode payload: %w", op, err)
	}
	return &DecodedToken{Header: header, Payload: payload}, nil
}

var base64URLReplacer = strings.NewReplacer("-", "+", "_", "/")

// DecodeSegment decodes one base64url segment as JSON.  If the segment decodes
// but is not JSON, a MalformedToken is returned without an error.  Invalid
// base64 is returned as an ErrMalformedSegment error.
func DecodeSegment(seg string) (interface{}, error) {
	const op = "implicit.DecodeSegment"
	std := strings.TrimRight(base64URLReplacer.Replace(seg), "=")
	b, err := base64.RawStdEncoding.DecodeString(std)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrMalformedSegment)
	}
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return MalformedToken{Error: MalformedTokenMessage}, nil
	}
	return v, nil
}
