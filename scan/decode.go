// Package scan turns decoded QR payloads into inventory outcomes: link the
// scan to an existing fridge record or create a new one, exactly once per
// scan.
package scan

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrDecode means the scanned payload is not a recognized product
// identifier.
var ErrDecode = errors.New("malformed scan payload")

// DecodePayload extracts the product id from a scanned QR payload. Two wire
// formats exist: the generator encodes the bare decimal id, older codes
// carry a JSON object with an "id" field. Dispatch is explicit: a payload
// whose first non-space byte is '{' is parsed as JSON and must carry a
// numeric id; anything else must be a base-10 integer in full.
func DecodePayload(text string) (int64, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	if trimmed[0] == '{' {
		var envelope struct {
			ID *int64 `json:"id"`
		}
		if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if envelope.ID == nil {
			return 0, fmt.Errorf("%w: missing id field", ErrDecode)
		}
		return *envelope.ID, nil
	}

	id, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a product id", ErrDecode, trimmed)
	}
	return id, nil
}
