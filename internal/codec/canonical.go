// Package codec implements the canonical serialization and numeric policy
// shared by every artifact writer: stable key ordering, no NaN/Infinity,
// 8-fractional-digit HALF_UP float quantization, and atomic file writes.
package codec

import (
	"bytes"
	"encoding/json"

	"github.com/gowebpki/jcs"

	"github.com/buffquant/simrun/internal/apierr"
)

// CanonicalJSON marshals v with encoding/json (field order follows struct
// declaration order, map keys sort lexicographically per the json package),
// then runs the result through an RFC 8785 (JCS) canonicalization pass so
// that any embedded free-form maps (strategy params, candidate overrides)
// come out byte-stable regardless of how they were constructed. HTML
// escaping is disabled; no trailing newline is appended.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	raw := bytes.TrimRight(buf.Bytes(), "\n")
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, err
	}
	return canon, nil
}

// CanonicalJSONLine is CanonicalJSON without the JCS key-sort pass skipped —
// JCS already guarantees ascending key order, so this is just a readable
// alias used by JSONL writers.
func CanonicalJSONLine(v any) ([]byte, error) {
	return CanonicalJSON(v)
}

// MustDecimalJSON is used when a value is already a pre-quantized decimal
// string and must be embedded as a bare JSON number, not a quoted string.
type RawNumber string

func (r RawNumber) MarshalJSON() ([]byte, error) {
	if r == "" {
		return nil, apierr.DataInvalid("empty numeric literal")
	}
	return []byte(string(r)), nil
}
