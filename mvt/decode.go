package mvt

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// field numbers of the vector tile messages
const (
	tileLayers protowire.Number = 3

	layerName     protowire.Number = 1
	layerFeatures protowire.Number = 2
	layerKeys     protowire.Number = 3
	layerValues   protowire.Number = 4
	layerExtent   protowire.Number = 5
	layerVersion  protowire.Number = 15

	featureID       protowire.Number = 1
	featureTags     protowire.Number = 2
	featureType     protowire.Number = 3
	featureGeometry protowire.Number = 4
)

// Decode parses a possibly compressed vector tile blob.
// Any failure is returned as a *DecodeError.
func Decode(blob []byte) (*Tile, error) {
	data, compression, err := Decompress(blob)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	t := &Tile{Compression: compression}
	names := make(map[string]struct{})
	r := reader{b: data}
	for !r.done() {
		num, typ, err := r.tag()
		if err != nil {
			return nil, &DecodeError{Scope: "tile", Err: err}
		}
		if num != tileLayers {
			if err = r.skip(num, typ); err != nil {
				return nil, &DecodeError{Scope: "tile", Err: err}
			}
			continue
		}
		scope := fmt.Sprintf("layer %d", len(t.Layers))
		raw, err := r.bytes(typ)
		if err != nil {
			return nil, &DecodeError{Scope: scope, Err: err}
		}
		layer, err := decodeLayer(raw)
		if err != nil {
			if layer != nil && layer.Name != "" {
				scope = fmt.Sprintf("layer %q", layer.Name)
			}
			return nil, &DecodeError{Scope: scope, Err: err}
		}
		if _, dup := names[layer.Name]; dup {
			return nil, &DecodeError{Scope: fmt.Sprintf("layer %q", layer.Name), Err: ErrDuplicateLayer}
		}
		names[layer.Name] = struct{}{}
		t.Layers = append(t.Layers, layer)
	}
	return t, nil
}

// decodeLayer returns the partially decoded layer along with an error so the caller can name it.
func decodeLayer(data []byte) (*Layer, error) {
	l := &Layer{Version: DefaultVersion, Extent: DefaultExtent}
	var rawFeatures [][]byte
	hasName := false
	r := reader{b: data}
	for !r.done() {
		num, typ, err := r.tag()
		if err != nil {
			return l, err
		}
		switch num {
		case layerName:
			var b []byte
			if b, err = r.bytes(typ); err == nil {
				l.Name = string(b)
				hasName = true
			}
		case layerFeatures:
			var b []byte
			if b, err = r.bytes(typ); err == nil {
				rawFeatures = append(rawFeatures, b)
			}
		case layerKeys:
			var b []byte
			if b, err = r.bytes(typ); err == nil {
				l.Keys = append(l.Keys, string(b))
			}
		case layerValues:
			var b []byte
			if b, err = r.bytes(typ); err == nil {
				var v Value
				if v, err = decodeValue(b); err != nil {
					err = fmt.Errorf("value %d: %w", len(l.Values), err)
				}
				l.Values = append(l.Values, v)
			}
		case layerExtent:
			var v uint64
			if v, err = r.varint(typ); err == nil {
				if v == 0 || v > 0xffffffff {
					err = fmt.Errorf("%w: %d", ErrExtent, v)
				}
				l.Extent = uint32(v)
			}
		case layerVersion:
			var v uint64
			if v, err = r.varint(typ); err == nil {
				l.Version = uint32(v)
			}
		default:
			err = r.skip(num, typ)
		}
		if err != nil {
			return l, err
		}
	}
	if !hasName || l.Name == "" {
		return l, ErrMissingName
	}
	l.Features = make([]Feature, len(rawFeatures))
	for i, raw := range rawFeatures {
		if err := decodeFeature(raw, &l.Features[i]); err != nil {
			return l, fmt.Errorf("feature %d: %w", i, err)
		}
		for _, tag := range l.Features[i].Tags {
			if int(tag.Key) >= len(l.Keys) || int(tag.Value) >= len(l.Values) {
				return l, fmt.Errorf("feature %d: %w: key %d of %d, value %d of %d",
					i, ErrTagIndex, tag.Key, len(l.Keys), tag.Value, len(l.Values))
			}
		}
	}
	return l, nil
}

func decodeFeature(data []byte, f *Feature) error {
	var tags, geometry []uint32
	r := reader{b: data}
	for !r.done() {
		num, typ, err := r.tag()
		if err != nil {
			return err
		}
		switch num {
		case featureID:
			if f.ID, err = r.varint(typ); err == nil {
				f.HasID = true
			}
		case featureTags:
			tags, err = r.uint32s(typ, tags)
		case featureType:
			var v uint64
			if v, err = r.varint(typ); err == nil {
				if v > uint64(Polygon) {
					err = fmt.Errorf("%w: %d", ErrGeomType, v)
				}
				f.Type = GeomType(v)
			}
		case featureGeometry:
			geometry, err = r.uint32s(typ, geometry)
		default:
			err = r.skip(num, typ)
		}
		if err != nil {
			return err
		}
	}
	if len(tags)%2 != 0 {
		return fmt.Errorf("%w: odd number of tag indices (%d)", ErrTags, len(tags))
	}
	if len(tags) > 0 {
		f.Tags = make([]Tag, len(tags)/2)
		for i := range f.Tags {
			f.Tags[i] = Tag{Key: tags[2*i], Value: tags[2*i+1]}
		}
	}
	var err error
	if f.Geometry, err = decodeGeometry(f.Type, geometry); err != nil {
		return err
	}
	return nil
}
