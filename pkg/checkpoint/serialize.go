package checkpoint

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// checkpointAlias avoids infinite recursion through Checkpoint's custom
// (Un)MarshalJSON while still getting free field-tag-driven encoding for
// everything but Extra.
type checkpointAlias Checkpoint

// MarshalJSON folds Extra back into the top-level object, so unknown fields
// read from an older/newer engine round-trip byte-for-byte in meaning.
func (c *Checkpoint) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal((*checkpointAlias)(c))
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range c.Extra {
		if _, known := merged[k]; known {
			continue // known fields always win over stale Extra entries
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("checkpoint: encoding extra field %q: %w", k, err)
		}
		merged[k] = encoded
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the known fields and stashes everything else in
// Extra.
func (c *Checkpoint) UnmarshalJSON(data []byte) error {
	var alias checkpointAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*c = Checkpoint(alias)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	known := map[string]bool{
		"jobId": true, "startTime": true, "items": true,
		"completedCount": true, "failedCount": true,
	}
	extra := make(map[string]any)
	for k, v := range raw {
		if known[k] {
			continue
		}
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return fmt.Errorf("checkpoint: decoding extra field %q: %w", k, err)
		}
		extra[k] = decoded
	}
	if len(extra) > 0 {
		c.Extra = extra
	}
	return nil
}
