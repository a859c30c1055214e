package value

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MarshalBSONValue implements bson.ValueMarshaler so Values embedded in
// execution records persist with the same shape they have in JSON: refs as
// {id, mimeType, filename} documents, bytes as binary.
func (v Value) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(toBSON(v))
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler. Documents matching
// the reference shape decode as refs, mirroring JSON decoding.
func (v *Value) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	var in any
	if err := raw.Unmarshal(&in); err != nil {
		return err
	}
	dec, err := fromBSON(in)
	if err != nil {
		return err
	}
	*v = dec
	return nil
}

func toBSON(v Value) any {
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
		return primitive.Binary{Data: v.raw}
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = toBSON(e)
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = toBSON(e)
		}
		return out
	case KindRef:
		doc := map[string]any{"id": v.ref.ID, "mimeType": v.ref.MimeType}
		if v.ref.Filename != "" {
			doc["filename"] = v.ref.Filename
		}
		return doc
	default:
		return nil
	}
}

func fromBSON(in any) (Value, error) {
	switch t := in.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case float64:
		return Number(t), nil
	case string:
		return String(t), nil
	case primitive.Binary:
		return Bytes(t.Data, "application/octet-stream"), nil
	case primitive.A:
		elems := make([]Value, len(t))
		for i, e := range t {
			ev, err := fromBSON(e)
			if err != nil {
				return Value{}, err
			}
			elems[i] = ev
		}
		return Array(elems...), nil
	case primitive.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = e.Value
		}
		return fromBSONMap(m)
	case primitive.M:
		return fromBSONMap(t)
	case map[string]any:
		return fromBSONMap(t)
	default:
		return Value{}, fmt.Errorf("unsupported bson value type %T", in)
	}
}

func fromBSONMap(m map[string]any) (Value, error) {
	if ref, ok := refFromMap(m); ok {
		return FromRef(ref), nil
	}
	fields := make(map[string]Value, len(m))
	for k, e := range m {
		ev, err := fromBSON(e)
		if err != nil {
			return Value{}, err
		}
		fields[k] = ev
	}
	return Object(fields), nil
}
