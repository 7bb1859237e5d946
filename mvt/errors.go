package mvt

import (
	"errors"
	"fmt"
)

var (
	ErrTruncated      = errors.New("truncated data")
	ErrMalformed      = errors.New("malformed protobuf")
	ErrWireType       = errors.New("unexpected wire type")
	ErrMissingName    = errors.New("layer without name")
	ErrDuplicateLayer = errors.New("duplicate layer name")
	ErrExtent         = errors.New("layer extent must be positive")
	ErrValue          = errors.New("invalid value")
	ErrTags           = errors.New("invalid tags")
	ErrTagIndex       = errors.New("tag index out of range")
	ErrGeometry       = errors.New("invalid geometry")
	ErrGeomType       = errors.New("unknown geometry type")
	ErrCompression    = errors.New("invalid compression stream")
	ErrTooLarge       = errors.New("tile exceeds maximum size")
	ErrDanglingIndex  = errors.New("dangling table index")
	ErrEmptyName      = errors.New("empty layer name")
)

// DecodeError is returned for a blob that is not a valid vector tile.
// Scope names the part of the tile that failed, e.g. `layer "roads" feature 3`.
type DecodeError struct {
	Scope string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Scope == "" {
		return "mvt: decode: " + e.Err.Error()
	}
	return fmt.Sprintf("mvt: decode %s: %v", e.Scope, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError means the in-memory tile violates an invariant and cannot be written,
// e.g. a feature tag refers past the end of its layer's key table.
type EncodeError struct {
	Layer string
	Err   error
}

func (e *EncodeError) Error() string {
	if e.Layer == "" {
		return "mvt: encode: " + e.Err.Error()
	}
	return fmt.Sprintf("mvt: encode layer %q: %v", e.Layer, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is or wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
