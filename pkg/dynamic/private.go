package dynamic

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
)

// PrivateState is the opaque keyed blob a resource implementation owns.
// The framework never inspects its contents, only passes it through plan
// and apply. Encoding is deterministic so state hashes stay stable.
type PrivateState struct {
	data map[string][]byte
}

// NewPrivateState returns an empty private state container.
func NewPrivateState() *PrivateState {
	return &PrivateState{data: make(map[string][]byte)}
}

// GetKey returns the value stored under key, or nil.
func (ps *PrivateState) GetKey(key string) []byte {
	if ps == nil || ps.data == nil {
		return nil
	}
	return ps.data[key]
}

// SetKey stores value under key.
func (ps *PrivateState) SetKey(key string, value []byte) {
	if ps.data == nil {
		ps.data = make(map[string][]byte)
	}
	ps.data[key] = value
}

// RemoveKey deletes the entry under key.
func (ps *PrivateState) RemoveKey(key string) {
	delete(ps.data, key)
}

// Encode serializes the private state deterministically. An empty state
// encodes to nil.
func (ps *PrivateState) Encode() ([]byte, error) {
	if ps == nil || len(ps.data) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(ps.data))
	for k := range ps.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// json.Marshal of a map sorts keys, but build explicitly so the
	// deterministic layout does not depend on encoder internals.
	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("encode private state key: %w", err)
		}
		vb, err := json.Marshal(base64.StdEncoding.EncodeToString(ps.data[k]))
		if err != nil {
			return nil, fmt.Errorf("encode private state value: %w", err)
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	return append(buf, '}'), nil
}

// DecodePrivateState deserializes a private state blob. Nil or empty input
// yields an empty container.
func DecodePrivateState(raw []byte) (*PrivateState, error) {
	ps := NewPrivateState()
	if len(raw) == 0 {
		return ps, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode private state: %w", err)
	}
	for k, v := range m {
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("decode private state value %q: %w", k, err)
		}
		ps.data[k] = b
	}
	return ps, nil
}
