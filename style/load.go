package style

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/perimeterx/marshmallow"
)

// Style is the parsed style document. Layers only holds layers that draw from a source-layer.
type Style struct {
	Version int
	Name    string
	Layers  []Layer
}

// ParseError means the style document cannot be used.
type ParseError struct {
	Path string
	// Layer is the index in the document's layers array, -1 for document level errors.
	Layer int
	Err   error
}

func (e *ParseError) Error() string {
	msg := "style"
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Layer >= 0 {
		msg += fmt.Sprintf(": layer %d", e.Layer)
	}
	return msg + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load reads and parses the style document at path.
func Load(path string) (*Style, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Layer: -1, Err: err}
	}
	s, err := Parse(data)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Path = path
		}
		return nil, err
	}
	return s, nil
}

type jsonDocument struct {
	Version int    `json:"version" default:"8" validate:"eq=8"`
	Name    string `json:"name"`
}

type jsonLayer struct {
	ID          string   `json:"id"`
	Type        string   `json:"type" default:"fill"`
	Source      string   `json:"source"`
	SourceLayer string   `json:"source-layer"`
	MinZoom     float64  `json:"minzoom" default:"0" validate:"gte=0"`
	MaxZoom     *float64 `json:"maxzoom" validate:"omitnil,gte=0"`
}

// Parse parses a Mapbox GL style document.
func Parse(data []byte) (*Style, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Layer: -1, Err: err}
	}
	validate := validator.New(validator.WithRequiredStructEnabled())

	var doc jsonDocument
	if err := defaults.Set(&doc); err != nil {
		return nil, &ParseError{Layer: -1, Err: err}
	}
	specials, err := marshmallow.UnmarshalFromJSONMap(raw, &doc, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return nil, &ParseError{Layer: -1, Err: err}
	}
	if err = validate.Struct(&doc); err != nil {
		return nil, &ParseError{Layer: -1, Err: err}
	}

	rawLayers, ok := specials["layers"].([]interface{})
	if !ok {
		return nil, &ParseError{Layer: -1, Err: fmt.Errorf(`"layers" should be an array`)}
	}
	s := &Style{Version: doc.Version, Name: doc.Name}
	for i, rawLayer := range rawLayers {
		layerMap, ok := rawLayer.(map[string]interface{})
		if !ok {
			return nil, &ParseError{Layer: i, Err: fmt.Errorf("layer should be an object, got %T", rawLayer)}
		}
		// background and raster layers have no source-layer
		if _, ok := layerMap["source"]; !ok {
			continue
		}
		if _, ok := layerMap["source-layer"]; !ok {
			continue
		}
		layer, err := parseLayer(validate, layerMap)
		if err != nil {
			return nil, &ParseError{Layer: i, Err: err}
		}
		s.Layers = append(s.Layers, layer)
	}
	if len(s.Layers) == 0 {
		return nil, &ParseError{Layer: -1, Err: fmt.Errorf("style contains no source-layer entries")}
	}
	return s, nil
}

func parseLayer(validate *validator.Validate, layerMap map[string]interface{}) (Layer, error) {
	var jl jsonLayer
	if err := defaults.Set(&jl); err != nil {
		return Layer{}, err
	}
	specials, err := marshmallow.UnmarshalFromJSONMap(layerMap, &jl, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return Layer{}, err
	}
	if err = validate.Struct(&jl); err != nil {
		return Layer{}, err
	}
	if jl.SourceLayer == "" {
		return Layer{}, fmt.Errorf(`"source-layer" should not be empty`)
	}
	l := Layer{
		ID:          jl.ID,
		SourceLayer: jl.SourceLayer,
		MinZoom:     jl.MinZoom,
		MaxZoom:     NoMaxZoom,
	}
	if jl.MaxZoom != nil {
		if *jl.MaxZoom < jl.MinZoom {
			return Layer{}, fmt.Errorf("maxzoom %v is below minzoom %v", *jl.MaxZoom, jl.MinZoom)
		}
		l.MaxZoom = *jl.MaxZoom
	}

	if layout, ok := specials["layout"].(map[string]interface{}); ok {
		l.Hidden = layout["visibility"] == "none"
	}
	if paint, ok := specials["paint"].(map[string]interface{}); ok {
		l.Paint = parsePaint(paint)
	}
	if filter, ok := specials["filter"]; ok {
		if l.RawFilter, err = json.Marshal(filter); err != nil {
			return Layer{}, err
		}
	}
	return l, nil
}

// parsePaint keeps the zero-checked properties that are a number or a stops function.
// Expressions and colors cannot be checked and are left out.
func parsePaint(paint map[string]interface{}) map[string]PaintValue {
	var out map[string]PaintValue
	for _, name := range ZeroCheckedPaint {
		v, ok := parsePaintValue(paint[name])
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[string]PaintValue)
		}
		out[name] = v
	}
	return out
}

func parsePaintValue(raw interface{}) (PaintValue, bool) {
	switch v := raw.(type) {
	case float64:
		return Constant(v), true
	case map[string]interface{}:
		rawStops, ok := v["stops"].([]interface{})
		if !ok {
			return PaintValue{}, false
		}
		var p PaintValue
		for _, rawStop := range rawStops {
			stop, ok := rawStop.([]interface{})
			if !ok || len(stop) < 2 {
				continue
			}
			zoom, ok := stop[0].(float64)
			if !ok || zoom < 0 || zoom > 255 {
				continue
			}
			value, ok := stop[1].(float64)
			if !ok {
				continue
			}
			p.Stops = append(p.Stops, Stop{Zoom: uint32(zoom), Value: value})
		}
		return p, len(p.Stops) > 0
	default:
		return PaintValue{}, false
	}
}
