package mvt

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Encode serializes t and applies t.Compression. The tile is not modified.
// Key and value tables are rebuilt from the referenced tags only.
// Any failure is returned as an *EncodeError.
func Encode(t *Tile) ([]byte, error) {
	var b []byte
	names := make(map[string]struct{}, len(t.Layers))
	for _, l := range t.Layers {
		if _, dup := names[l.Name]; dup {
			return nil, &EncodeError{Layer: l.Name, Err: ErrDuplicateLayer}
		}
		names[l.Name] = struct{}{}
		raw, err := encodeLayer(l)
		if err != nil {
			return nil, &EncodeError{Layer: l.Name, Err: err}
		}
		b = protowire.AppendTag(b, tileLayers, protowire.BytesType)
		b = protowire.AppendBytes(b, raw)
	}
	out, err := Compress(b, t.Compression)
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	return out, nil
}

func encodeLayer(l *Layer) ([]byte, error) {
	if l.Name == "" {
		return nil, ErrEmptyName
	}
	if l.Extent == 0 {
		return nil, ErrExtent
	}
	tbl, err := l.compacted()
	if err != nil {
		return nil, err
	}
	version := l.Version
	if version == 0 {
		version = DefaultVersion
	}
	var b []byte
	b = protowire.AppendTag(b, layerVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(version))
	b = protowire.AppendTag(b, layerName, protowire.BytesType)
	b = protowire.AppendString(b, l.Name)
	var fb []byte
	for i := range l.Features {
		fb = encodeFeature(fb[:0], &l.Features[i], tbl.tags[i])
		b = protowire.AppendTag(b, layerFeatures, protowire.BytesType)
		b = protowire.AppendBytes(b, fb)
	}
	for _, k := range tbl.keys {
		b = protowire.AppendTag(b, layerKeys, protowire.BytesType)
		b = protowire.AppendString(b, k)
	}
	for _, v := range tbl.encodedValues {
		b = protowire.AppendTag(b, layerValues, protowire.BytesType)
		b = protowire.AppendBytes(b, v)
	}
	b = protowire.AppendTag(b, layerExtent, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(l.Extent))
	return b, nil
}

func encodeFeature(b []byte, f *Feature, tags []Tag) []byte {
	if f.HasID {
		b = protowire.AppendTag(b, featureID, protowire.VarintType)
		b = protowire.AppendVarint(b, f.ID)
	}
	if len(tags) > 0 {
		flat := make([]uint32, 0, 2*len(tags))
		for _, t := range tags {
			flat = append(flat, t.Key, t.Value)
		}
		b = appendPacked(b, featureTags, flat)
	}
	if f.Type != Unknown {
		b = protowire.AppendTag(b, featureType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(f.Type))
	}
	if len(f.Geometry) > 0 {
		b = appendPacked(b, featureGeometry, encodeGeometry(f.Geometry))
	}
	return b
}

// tables is the compacted form of a layer's key and value tables.
type tables struct {
	keys          []string
	values        []Value
	encodedValues [][]byte
	// tags per feature, renumbered against keys and values
	tags [][]Tag
}

func (l *Layer) compacted() (*tables, error) {
	tbl := &tables{tags: make([][]Tag, len(l.Features))}
	keyIndex := make(map[string]uint32)
	valueIndex := make(map[string]uint32)
	// old index -> new index, filled lazily
	keyMap := make(map[uint32]uint32)
	valueMap := make(map[uint32]uint32)
	for i := range l.Features {
		f := &l.Features[i]
		if len(f.Tags) == 0 {
			continue
		}
		tags := make([]Tag, len(f.Tags))
		for j, tag := range f.Tags {
			if int(tag.Key) >= len(l.Keys) || int(tag.Value) >= len(l.Values) {
				return nil, fmt.Errorf("%w: feature %d tag %d: key %d of %d, value %d of %d",
					ErrDanglingIndex, i, j, tag.Key, len(l.Keys), tag.Value, len(l.Values))
			}
			k, ok := keyMap[tag.Key]
			if !ok {
				name := l.Keys[tag.Key]
				if k, ok = keyIndex[name]; !ok {
					k = uint32(len(tbl.keys))
					keyIndex[name] = k
					tbl.keys = append(tbl.keys, name)
				}
				keyMap[tag.Key] = k
			}
			v, ok := valueMap[tag.Value]
			if !ok {
				value := l.Values[tag.Value]
				raw, err := appendValue(nil, value)
				if err != nil {
					return nil, fmt.Errorf("feature %d tag %d: %w", i, j, err)
				}
				if v, ok = valueIndex[string(raw)]; !ok {
					v = uint32(len(tbl.values))
					valueIndex[string(raw)] = v
					tbl.values = append(tbl.values, value)
					tbl.encodedValues = append(tbl.encodedValues, raw)
				}
				valueMap[tag.Value] = v
			}
			tags[j] = Tag{Key: k, Value: v}
		}
		tbl.tags[i] = tags
	}
	return tbl, nil
}
