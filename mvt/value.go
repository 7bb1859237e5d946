package mvt

import (
	"fmt"
	"math"
	"strconv"

	"google.golang.org/protobuf/encoding/protowire"
)

// ValueType numbers match the field numbers of the encoded value message.
type ValueType uint8

const (
	TypeString ValueType = 1
	TypeFloat  ValueType = 2
	TypeDouble ValueType = 3
	TypeInt    ValueType = 4
	TypeUint   ValueType = 5
	TypeSint   ValueType = 6
	TypeBool   ValueType = 7
)

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeInt:
		return "int"
	case TypeUint:
		return "uint"
	case TypeSint:
		return "sint"
	case TypeBool:
		return "bool"
	default:
		return fmt.Sprintf("ValueType(%d)", t)
	}
}

// Value is a typed scalar from a layer's value table.
// Only the field matching Type is meaningful.
type Value struct {
	Type   ValueType
	String string
	Float  float32
	Double float64
	Int    int64
	Uint   uint64
	Bool   bool
}

func NewString(s string) Value { return Value{Type: TypeString, String: s} }
func NewFloat(f float32) Value { return Value{Type: TypeFloat, Float: f} }
func NewDouble(d float64) Value { return Value{Type: TypeDouble, Double: d} }
func NewInt(i int64) Value { return Value{Type: TypeInt, Int: i} }
func NewUint(u uint64) Value { return Value{Type: TypeUint, Uint: u} }
func NewSint(i int64) Value { return Value{Type: TypeSint, Int: i} }
func NewBool(b bool) Value { return Value{Type: TypeBool, Bool: b} }

// Interface returns the value as a plain Go value.
func (v Value) Interface() interface{} {
	switch v.Type {
	case TypeString:
		return v.String
	case TypeFloat:
		return v.Float
	case TypeDouble:
		return v.Double
	case TypeInt, TypeSint:
		return v.Int
	case TypeUint:
		return v.Uint
	case TypeBool:
		return v.Bool
	default:
		return nil
	}
}

// Text formats the value for humans.
func (v Value) Text() string {
	switch v.Type {
	case TypeString:
		return v.String
	case TypeFloat:
		return strconv.FormatFloat(float64(v.Float), 'g', -1, 32)
	case TypeDouble:
		return strconv.FormatFloat(v.Double, 'g', -1, 64)
	case TypeInt, TypeSint:
		return strconv.FormatInt(v.Int, 10)
	case TypeUint:
		return strconv.FormatUint(v.Uint, 10)
	case TypeBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

func appendValue(b []byte, v Value) ([]byte, error) {
	num := protowire.Number(v.Type)
	switch v.Type {
	case TypeString:
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, v.String)
	case TypeFloat:
		b = protowire.AppendTag(b, num, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(v.Float))
	case TypeDouble:
		b = protowire.AppendTag(b, num, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(v.Double))
	case TypeInt:
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.Int))
	case TypeUint:
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, v.Uint)
	case TypeSint:
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(v.Int))
	case TypeBool:
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(v.Bool))
	default:
		return b, fmt.Errorf("%w: %v", ErrValue, v.Type)
	}
	return b, nil
}

func decodeValue(data []byte) (Value, error) {
	var v Value
	r := reader{b: data}
	for !r.done() {
		num, typ, err := r.tag()
		if err != nil {
			return v, err
		}
		if num < protowire.Number(TypeString) || num > protowire.Number(TypeBool) {
			if err = r.skip(num, typ); err != nil {
				return v, err
			}
			continue
		}
		if v.Type != 0 {
			return v, fmt.Errorf("%w: both %v and %v set", ErrValue, v.Type, ValueType(num))
		}
		v.Type = ValueType(num)
		switch v.Type {
		case TypeString:
			var s []byte
			if s, err = r.bytes(typ); err == nil {
				v.String = string(s)
			}
		case TypeFloat:
			var bits uint32
			if bits, err = r.fixed32(typ); err == nil {
				v.Float = math.Float32frombits(bits)
			}
		case TypeDouble:
			var bits uint64
			if bits, err = r.fixed64(typ); err == nil {
				v.Double = math.Float64frombits(bits)
			}
		case TypeInt:
			var u uint64
			if u, err = r.varint(typ); err == nil {
				v.Int = int64(u)
			}
		case TypeUint:
			v.Uint, err = r.varint(typ)
		case TypeSint:
			var u uint64
			if u, err = r.varint(typ); err == nil {
				v.Int = protowire.DecodeZigZag(u)
			}
		case TypeBool:
			var u uint64
			if u, err = r.varint(typ); err == nil {
				v.Bool = protowire.DecodeBool(u)
			}
		}
		if err != nil {
			return v, err
		}
	}
	if v.Type == 0 {
		return v, fmt.Errorf("%w: no value set", ErrValue)
	}
	return v, nil
}
