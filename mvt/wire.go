package mvt

import (
	"errors"
	"fmt"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// reader walks the fields of one protobuf message.
type reader struct {
	b []byte
}

func (r *reader) done() bool {
	return len(r.b) == 0
}

func (r *reader) tag() (protowire.Number, protowire.Type, error) {
	num, typ, n := protowire.ConsumeTag(r.b)
	if n < 0 {
		return 0, 0, wireError(n)
	}
	r.b = r.b[n:]
	return num, typ, nil
}

func (r *reader) skip(num protowire.Number, typ protowire.Type) error {
	n := protowire.ConsumeFieldValue(num, typ, r.b)
	if n < 0 {
		return wireError(n)
	}
	r.b = r.b[n:]
	return nil
}

func (r *reader) varint(typ protowire.Type) (uint64, error) {
	if typ != protowire.VarintType {
		return 0, fmt.Errorf("%w: %v, want varint", ErrWireType, typ)
	}
	v, n := protowire.ConsumeVarint(r.b)
	if n < 0 {
		return 0, wireError(n)
	}
	r.b = r.b[n:]
	return v, nil
}

func (r *reader) bytes(typ protowire.Type) ([]byte, error) {
	if typ != protowire.BytesType {
		return nil, fmt.Errorf("%w: %v, want bytes", ErrWireType, typ)
	}
	v, n := protowire.ConsumeBytes(r.b)
	if n < 0 {
		return nil, wireError(n)
	}
	r.b = r.b[n:]
	return v, nil
}

func (r *reader) fixed32(typ protowire.Type) (uint32, error) {
	if typ != protowire.Fixed32Type {
		return 0, fmt.Errorf("%w: %v, want fixed32", ErrWireType, typ)
	}
	v, n := protowire.ConsumeFixed32(r.b)
	if n < 0 {
		return 0, wireError(n)
	}
	r.b = r.b[n:]
	return v, nil
}

func (r *reader) fixed64(typ protowire.Type) (uint64, error) {
	if typ != protowire.Fixed64Type {
		return 0, fmt.Errorf("%w: %v, want fixed64", ErrWireType, typ)
	}
	v, n := protowire.ConsumeFixed64(r.b)
	if n < 0 {
		return 0, wireError(n)
	}
	r.b = r.b[n:]
	return v, nil
}

// uint32s reads a repeated uint32 field, packed or not, appending to dst.
func (r *reader) uint32s(typ protowire.Type, dst []uint32) ([]uint32, error) {
	if typ == protowire.VarintType {
		v, err := r.varint(typ)
		if err != nil {
			return dst, err
		}
		if v > math.MaxUint32 {
			return dst, fmt.Errorf("%w: %d overflows uint32", ErrMalformed, v)
		}
		return append(dst, uint32(v)), nil
	}
	packed, err := r.bytes(typ)
	if err != nil {
		return dst, err
	}
	for len(packed) > 0 {
		v, n := protowire.ConsumeVarint(packed)
		if n < 0 {
			return dst, wireError(n)
		}
		if v > math.MaxUint32 {
			return dst, fmt.Errorf("%w: %d overflows uint32", ErrMalformed, v)
		}
		dst = append(dst, uint32(v))
		packed = packed[n:]
	}
	return dst, nil
}

func wireError(n int) error {
	err := protowire.ParseError(n)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

func appendPacked(b []byte, num protowire.Number, vs []uint32) []byte {
	size := 0
	for _, v := range vs {
		size += protowire.SizeVarint(uint64(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(size))
	for _, v := range vs {
		b = protowire.AppendVarint(b, uint64(v))
	}
	return b
}
