package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSONEncode encodes a value to JSON bytes (fail-fast).
// HTML characters are written verbatim; the browser client escapes on render.
func JSONEncode(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, &Error{Code: "INVALID_INPUT", Message: "cannot encode nil value"}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("json encode failed: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// JSONDecode decodes JSON bytes to a value (fail-fast).
// Trailing data after the first value is rejected.
func JSONDecode(data []byte, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return &Error{Code: "INVALID_INPUT", Message: "cannot decode empty data"}
	}
	if v == nil {
		return &Error{Code: "INVALID_INPUT", Message: "cannot decode into nil value"}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("json decode failed: %w", err)
	}
	if dec.More() {
		return &Error{Code: "INVALID_INPUT", Message: "unexpected data after JSON value"}
	}
	return nil
}
