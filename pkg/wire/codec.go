// Package wire provides bidirectional, lossless transcoding between Dynamic
// Values and the protocol's self-describing binary representation. Encoding
// is deterministic: the same logical value always produces byte-identical
// output, which the diff engine relies on for state-hash comparisons.
// Decoding tolerates extra keys produced by a newer schema version and
// rejects payloads whose top-level shape cannot match the declared type.
package wire

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/openfroyo/providerkit/pkg/diag"
	"github.com/openfroyo/providerkit/pkg/dynamic"
	"github.com/openfroyo/providerkit/pkg/schema"
)

// Type tags used in the wire envelope.
const (
	tagNull    = "null"
	tagUnknown = "unknown"
	tagBool    = "bool"
	tagNumber  = "number"
	tagString  = "string"
	tagList    = "list"
	tagMap     = "map"
	tagObject  = "object"
)

// Encode serializes a value into its deterministic wire form.
func Encode(v dynamic.Value) ([]byte, error) {
	var buf []byte
	return appendValue(buf, v)
}

// Hash returns the hex SHA-256 of a value's wire form. Because encoding is
// deterministic, equal values always hash equally.
func Hash(v dynamic.Value) (string, error) {
	raw, err := Encode(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func appendValue(buf []byte, v dynamic.Value) ([]byte, error) {
	switch v.Kind() {
	case dynamic.KindNull:
		return append(buf, `{"t":"null"}`...), nil
	case dynamic.KindUnknown:
		return append(buf, `{"t":"unknown"}`...), nil
	case dynamic.KindBool:
		b, _ := v.AsBool()
		return append(buf, fmt.Sprintf(`{"t":"bool","v":%t}`, b)...), nil
	case dynamic.KindNumber:
		n, _ := v.AsNumber()
		return append(buf, fmt.Sprintf(`{"t":"number","v":%s}`, strconv.Quote(n.String()))...), nil
	case dynamic.KindString:
		s, _ := v.AsString()
		return append(buf, fmt.Sprintf(`{"t":"string","v":%s}`, encodeJSONString(s))...), nil
	case dynamic.KindList:
		elems, _ := v.AsList()
		buf = append(buf, `{"t":"list","v":[`...)
		for i, e := range elems {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			buf, err = appendValue(buf, e)
			if err != nil {
				return nil, err
			}
		}
		return append(buf, `]}`...), nil
	case dynamic.KindMap, dynamic.KindObject:
		tag := tagMap
		if v.Kind() == dynamic.KindObject {
			tag = tagObject
		}
		buf = append(buf, fmt.Sprintf(`{"t":"%s","v":{`, tag)...)
		for i, name := range v.AttrNames() {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, encodeJSONString(name)...)
			buf = append(buf, ':')
			e, _ := v.Attr(name)
			var err error
			buf, err = appendValue(buf, e)
			if err != nil {
				return nil, err
			}
		}
		return append(buf, `}}`...), nil
	default:
		return nil, diag.NewCodecError("cannot encode invalid value", nil)
	}
}

func encodeJSONString(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}

// envelope mirrors the wire layout of a single value node.
type envelope struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v"`
}

// Decode deserializes wire bytes into a value governed by the schema.
// Object keys the schema does not declare are dropped, never fatal, so a
// provider can read state written by a newer schema version. A payload
// whose top-level shape cannot possibly match the schema's declared type is
// rejected with a codec-class error. Empty input decodes to null.
func Decode(data []byte, s schema.Schema) (dynamic.Value, error) {
	if len(data) == 0 {
		return dynamic.Null(), nil
	}
	v, err := decodeRaw(data)
	if err != nil {
		return dynamic.Null(), err
	}
	switch v.Kind() {
	case dynamic.KindNull, dynamic.KindUnknown:
		return v, nil
	case dynamic.KindObject, dynamic.KindMap:
		return pruneBlock(v, s.Block), nil
	default:
		return dynamic.Null(), diag.NewCodecError(
			fmt.Sprintf("top-level %s cannot match an object schema", v.Kind()), nil).
			WithCode(diag.CodeShapeMismatch)
	}
}

// DecodeType deserializes wire bytes governed by a bare type descriptor,
// used for values that do not carry attribute roles.
func DecodeType(data []byte, t schema.Type) (dynamic.Value, error) {
	if len(data) == 0 {
		return dynamic.Null(), nil
	}
	v, err := decodeRaw(data)
	if err != nil {
		return dynamic.Null(), err
	}
	if v.IsNull() || v.IsUnknown() {
		return v, nil
	}
	if !shapeMatches(v, t) {
		return dynamic.Null(), diag.NewCodecError(
			fmt.Sprintf("top-level %s cannot match declared %s", v.Kind(), t.Kind), nil).
			WithCode(diag.CodeShapeMismatch)
	}
	return pruneType(v, t), nil
}

func decodeRaw(data []byte) (dynamic.Value, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return dynamic.Null(), diag.NewCodecError("malformed wire data", err).WithCode(diag.CodeBadFrame)
	}
	switch env.T {
	case tagNull:
		return dynamic.Null(), nil
	case tagUnknown:
		return dynamic.Unknown(), nil
	case tagBool:
		var b bool
		if err := json.Unmarshal(env.V, &b); err != nil {
			return dynamic.Null(), diag.NewCodecError("malformed bool", err).WithCode(diag.CodeBadFrame)
		}
		return dynamic.Bool(b), nil
	case tagNumber:
		var s string
		if err := json.Unmarshal(env.V, &s); err != nil {
			return dynamic.Null(), diag.NewCodecError("malformed number", err).WithCode(diag.CodeBadFrame)
		}
		n, err := dynamic.NumberString(s)
		if err != nil {
			return dynamic.Null(), diag.NewCodecError("malformed number literal", err).WithCode(diag.CodeBadFrame)
		}
		return n, nil
	case tagString:
		var s string
		if err := json.Unmarshal(env.V, &s); err != nil {
			return dynamic.Null(), diag.NewCodecError("malformed string", err).WithCode(diag.CodeBadFrame)
		}
		return dynamic.String(s), nil
	case tagList:
		var raws []json.RawMessage
		if err := json.Unmarshal(env.V, &raws); err != nil {
			return dynamic.Null(), diag.NewCodecError("malformed list", err).WithCode(diag.CodeBadFrame)
		}
		elems := make([]dynamic.Value, len(raws))
		for i, r := range raws {
			e, err := decodeRaw(r)
			if err != nil {
				return dynamic.Null(), err
			}
			elems[i] = e
		}
		return dynamic.List(elems), nil
	case tagMap, tagObject:
		var raws map[string]json.RawMessage
		if err := json.Unmarshal(env.V, &raws); err != nil {
			return dynamic.Null(), diag.NewCodecError("malformed "+env.T, err).WithCode(diag.CodeBadFrame)
		}
		entries := make(map[string]dynamic.Value, len(raws))
		for name, r := range raws {
			e, err := decodeRaw(r)
			if err != nil {
				return dynamic.Null(), err
			}
			entries[name] = e
		}
		if env.T == tagObject {
			return dynamic.Object(entries), nil
		}
		return dynamic.Map(entries), nil
	default:
		return dynamic.Null(), diag.NewCodecError(
			fmt.Sprintf("unknown wire tag %q", env.T), nil).WithCode(diag.CodeBadFrame)
	}
}

// pruneBlock drops object keys the block does not declare and recurses into
// declared attributes and nested blocks.
func pruneBlock(v dynamic.Value, b schema.Block) dynamic.Value {
	if v.Kind() != dynamic.KindObject && v.Kind() != dynamic.KindMap {
		return v
	}
	out := make(map[string]dynamic.Value, len(b.Attributes)+len(b.BlockTypes))
	for _, a := range b.Attributes {
		if e, ok := v.Attr(a.Name); ok {
			out[a.Name] = pruneType(e, a.Type)
		}
	}
	for _, nb := range b.BlockTypes {
		e, ok := v.Attr(nb.TypeName)
		if !ok {
			continue
		}
		switch nb.Nesting {
		case schema.NestingSingle:
			out[nb.TypeName] = pruneBlock(e, nb.Block)
		default:
			elems, err := e.AsList()
			if err != nil {
				out[nb.TypeName] = e
				continue
			}
			pruned := make([]dynamic.Value, len(elems))
			for i, el := range elems {
				pruned[i] = pruneBlock(el, nb.Block)
			}
			out[nb.TypeName] = dynamic.List(pruned)
		}
	}
	return dynamic.Object(out)
}

func pruneType(v dynamic.Value, t schema.Type) dynamic.Value {
	switch t.Kind {
	case schema.KindObject:
		if v.Kind() != dynamic.KindObject && v.Kind() != dynamic.KindMap {
			return v
		}
		out := make(map[string]dynamic.Value, len(t.Attrs))
		for name, at := range t.Attrs {
			if e, ok := v.Attr(name); ok {
				out[name] = pruneType(e, at)
			}
		}
		return dynamic.Object(out)
	case schema.KindList, schema.KindSet:
		elems, err := v.AsList()
		if err != nil || t.Elem == nil {
			return v
		}
		pruned := make([]dynamic.Value, len(elems))
		for i, e := range elems {
			pruned[i] = pruneType(e, *t.Elem)
		}
		return dynamic.List(pruned)
	case schema.KindMap:
		if (v.Kind() != dynamic.KindMap && v.Kind() != dynamic.KindObject) || t.Elem == nil {
			return v
		}
		out := make(map[string]dynamic.Value)
		for _, name := range v.AttrNames() {
			e, _ := v.Attr(name)
			out[name] = pruneType(e, *t.Elem)
		}
		return dynamic.Map(out)
	default:
		return v
	}
}

func shapeMatches(v dynamic.Value, t schema.Type) bool {
	switch t.Kind {
	case schema.KindString:
		return v.Kind() == dynamic.KindString
	case schema.KindNumber:
		return v.Kind() == dynamic.KindNumber
	case schema.KindBool:
		return v.Kind() == dynamic.KindBool
	case schema.KindList, schema.KindSet:
		return v.Kind() == dynamic.KindList
	case schema.KindMap:
		return v.Kind() == dynamic.KindMap || v.Kind() == dynamic.KindObject
	case schema.KindObject:
		return v.Kind() == dynamic.KindObject || v.Kind() == dynamic.KindMap
	default:
		return false
	}
}
