// Package value defines the runtime value model shared by every component of
// the flow engine. A Value is a tagged sum over the JSON-serializable shapes a
// node may publish or consume: null, boolean, number, string, raw bytes,
// array, object, and object reference (an opaque handle to bytes held in a
// blob store).
//
// Values cross the durable-step boundary in JSON form, so every kind except
// Bytes round-trips losslessly through encoding/json. Bytes is the in-memory
// form produced by input transformation (a dereferenced object reference) and
// is materialized back into a Ref before results are serialized; it marshals
// as a base64 string if serialized directly.
package value

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Kind discriminates the shape held by a Value.
type Kind int

const (
	// KindNull is the zero Value.
	KindNull Kind = iota
	// KindBool holds a boolean.
	KindBool
	// KindNumber holds a float64. JSON numbers are always decoded as float64.
	KindNumber
	// KindString holds a string.
	KindString
	// KindBytes holds raw binary content together with its mime type. Bytes
	// values only exist between input transformation and output
	// transformation; they never cross the durable-step boundary.
	KindBytes
	// KindArray holds an ordered sequence of Values.
	KindArray
	// KindObject holds a string-keyed map of Values.
	KindObject
	// KindRef holds an object reference into the blob store.
	KindRef
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindRef:
		return "ref"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type (
	// Value is an immutable tagged runtime value. The zero Value is null.
	// Values are safe to share between goroutines; none of the accessors
	// mutate the receiver.
	Value struct {
		kind Kind
		b    bool
		num  float64
		str  string
		raw  []byte
		mime string
		arr  []Value
		obj  map[string]Value
		ref  Ref
	}

	// Ref identifies binary content held in a blob store. It is the wire
	// form of large or non-JSON payloads: nodes publish a Ref, downstream
	// nodes receive the dereferenced bytes.
	Ref struct {
		// ID is the store-assigned object identifier.
		ID string `json:"id"`
		// MimeType describes the stored content.
		MimeType string `json:"mimeType"`
		// Filename optionally preserves the original file name.
		Filename string `json:"filename,omitempty"`
	}
)

// Null returns the null Value.
func Null() Value { return Value{} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric Value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Int returns a numeric Value from an int.
func Int(i int) Value { return Number(float64(i)) }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bytes returns a binary Value carrying its mime type.
func Bytes(data []byte, mimeType string) Value {
	return Value{kind: KindBytes, raw: data, mime: mimeType}
}

// Array returns an array Value over the given elements.
func Array(elems ...Value) Value {
	return Value{kind: KindArray, arr: elems}
}

// Object returns an object Value over the given fields.
func Object(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindObject, obj: fields}
}

// FromRef returns a Value holding the given object reference.
func FromRef(r Ref) Value { return Value{kind: KindRef, ref: r} }

// Kind returns the discriminator for v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null Value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload. The second result is false when v is
// not a boolean.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsNumber returns the numeric payload. The second result is false when v is
// not a number.
func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// AsString returns the string payload. The second result is false when v is
// not a string.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// AsBytes returns the binary payload and its mime type. The second result is
// false when v is not a bytes value.
func (v Value) AsBytes() ([]byte, string, bool) {
	if v.kind != KindBytes {
		return nil, "", false
	}
	return v.raw, v.mime, true
}

// AsArray returns the element slice. Callers must not mutate it. The second
// result is false when v is not an array.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// AsObject returns the field map. Callers must not mutate it. The second
// result is false when v is not an object.
func (v Value) AsObject() (map[string]Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// AsRef returns the object reference. The second result is false when v is
// not a reference.
func (v Value) AsRef() (Ref, bool) {
	if v.kind != KindRef {
		return Ref{}, false
	}
	return v.ref, true
}

// Truthy reports whether v counts as true in a branch condition: false for
// null, false, zero, the empty string, and empty arrays/objects; true
// otherwise.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		return v.num != 0 && !math.IsNaN(v.num)
	case KindString:
		return v.str != ""
	case KindBytes:
		return len(v.raw) > 0
	case KindArray:
		return len(v.arr) > 0
	case KindObject:
		return len(v.obj) > 0
	case KindRef:
		return v.ref.ID != ""
	default:
		return false
	}
}

// Interface converts v into the natural Go representation used by expression
// environments and templates: nil, bool, float64, string, []byte, []any,
// map[string]any, or Ref.
func (v Value) Interface() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindBytes:
		return v.raw
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.Interface()
		}
		return out
	case KindRef:
		return v.ref
	default:
		return nil
	}
}

// Equal reports deep equality of two Values. Object field order is
// irrelevant; array order matters.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindBytes:
		return v.mime == o.mime && bytes.Equal(v.raw, o.raw)
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, e := range v.obj {
			oe, ok := o.obj[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	case KindRef:
		return v.ref == o.ref
	default:
		return false
	}
}

// FromAny converts a Go value produced by generic JSON decoding or node code
// into a Value. Supported inputs: nil, bool, numeric types, string, []byte,
// []any, map[string]any, Ref, Value, and slices/maps thereof. Functions,
// channels, and other opaque handles are rejected.
func FromAny(in any) (Value, error) {
	switch t := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case Ref:
		return FromRef(t), nil
	case *Ref:
		if t == nil {
			return Null(), nil
		}
		return FromRef(*t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case []byte:
		return Bytes(t, "application/octet-stream"), nil
	case []any:
		elems := make([]Value, len(t))
		for i, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			elems[i] = ev
		}
		return Array(elems...), nil
	case []Value:
		return Array(t...), nil
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			fields[k] = ev
		}
		return Object(fields), nil
	case map[string]Value:
		return Object(t), nil
	default:
		return Value{}, fmt.Errorf("unsupported runtime value type %T", in)
	}
}

// MarshalJSON encodes v as its natural JSON form. Refs encode as their
// {id, mimeType, filename} object; bytes encode as a base64 string.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("cannot encode non-finite number %v", v.num)
		}
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	case KindBytes:
		return json.Marshal(base64.StdEncoding.EncodeToString(v.raw))
	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case KindObject:
		// Encode fields in sorted key order so step results are byte-stable
		// across replays.
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			eb, err := json.Marshal(v.obj[k])
			if err != nil {
				return nil, err
			}
			buf.Write(eb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case KindRef:
		return json.Marshal(v.ref)
	default:
		return nil, fmt.Errorf("cannot encode value of kind %s", v.kind)
	}
}

// UnmarshalJSON decodes the natural JSON form into v. An object carrying
// exactly the reference fields (id, mimeType, optional filename, all strings)
// decodes as a Ref; every other object decodes as KindObject.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	decoded, err := fromDecoded(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

func fromDecoded(in any) (Value, error) {
	if m, ok := in.(map[string]any); ok {
		if ref, ok := refFromMap(m); ok {
			return FromRef(ref), nil
		}
	}
	return FromAny(in)
}

// refFromMap recognizes the object-reference shape: string id and mimeType,
// optional string filename, no other fields.
func refFromMap(m map[string]any) (Ref, bool) {
	id, ok := m["id"].(string)
	if !ok || id == "" {
		return Ref{}, false
	}
	mime, ok := m["mimeType"].(string)
	if !ok || mime == "" {
		return Ref{}, false
	}
	ref := Ref{ID: id, MimeType: mime}
	rest := len(m) - 2
	if fn, ok := m["filename"]; ok {
		s, isStr := fn.(string)
		if !isStr {
			return Ref{}, false
		}
		ref.Filename = s
		rest--
	}
	if rest != 0 {
		return Ref{}, false
	}
	return ref, true
}
