package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// maxWrapDepth bounds how many layers of string encoding UnwrapJSON peels.
const maxWrapDepth = 3

var errNotJSON = errors.New("payload is not valid JSON")

// UnwrapJSON returns the JSON document inside raw, peeling layers where a
// historical writer serialized an already-serialized document as a string
// (e.g. `"[\"track_a\"]"` instead of `["track_a"]`). wrapped reports whether
// any layer was removed. A plain string that does not itself hold a JSON
// object or array is returned as-is.
func UnwrapJSON(raw []byte) (doc json.RawMessage, wrapped bool, err error) {
	cur := bytes.TrimSpace(raw)
	if !json.Valid(cur) {
		return nil, false, errNotJSON
	}
	for depth := 0; depth < maxWrapDepth; depth++ {
		if len(cur) == 0 || cur[0] != '"' {
			break
		}
		var inner string
		if err := json.Unmarshal(cur, &inner); err != nil {
			return nil, false, fmt.Errorf("decode string layer: %w", err)
		}
		next := bytes.TrimSpace([]byte(inner))
		if len(next) == 0 || (next[0] != '{' && next[0] != '[' && next[0] != '"') {
			break
		}
		if !json.Valid(next) {
			return nil, false, fmt.Errorf("string layer %d: %w", depth+1, errNotJSON)
		}
		cur, wrapped = next, true
	}
	return json.RawMessage(cur), wrapped, nil
}
