package optimize

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pdok/tilesieve/processing"
)

// PruneMetadata returns a copy of md whose json row no longer describes the
// source-layers for which live returns false. The vector_layers entries are matched
// on id, the tilestats layers on layer. Other rows and keys keep their order and content.
// On error md is returned unchanged.
func PruneMetadata(md *processing.Metadata, live func(sourceLayer string) bool) (*processing.Metadata, error) {
	doc, ok := md.Rows.Get("json")
	if !ok {
		return md, nil
	}
	pruned, err := pruneJSON([]byte(doc), live)
	if err != nil {
		return md, fmt.Errorf("prune metadata json: %w", err)
	}
	rows := orderedmap.New[string, string]()
	for pair := md.Rows.Oldest(); pair != nil; pair = pair.Next() {
		rows.Set(pair.Key, pair.Value)
	}
	rows.Set("json", string(pruned))
	return processing.NewMetadata(rows), nil
}

func pruneJSON(doc []byte, live func(string) bool) ([]byte, error) {
	obj := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(doc, obj); err != nil {
		return nil, err
	}
	if raw, ok := obj.Get("vector_layers"); ok {
		kept, _, err := pruneArray(raw, "id", live)
		if err != nil {
			return nil, fmt.Errorf("vector_layers: %w", err)
		}
		obj.Set("vector_layers", kept)
	}
	if raw, ok := obj.Get("tilestats"); ok {
		kept, err := pruneTilestats(raw, live)
		if err != nil {
			return nil, fmt.Errorf("tilestats: %w", err)
		}
		obj.Set("tilestats", kept)
	}
	return json.Marshal(obj)
}

func pruneTilestats(raw json.RawMessage, live func(string) bool) (json.RawMessage, error) {
	stats := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(raw, stats); err != nil {
		return nil, err
	}
	layers, ok := stats.Get("layers")
	if !ok {
		return raw, nil
	}
	kept, n, err := pruneArray(layers, "layer", live)
	if err != nil {
		return nil, err
	}
	stats.Set("layers", kept)
	if _, ok := stats.Get("layerCount"); ok {
		count, _ := json.Marshal(n)
		stats.Set("layerCount", count)
	}
	return json.Marshal(stats)
}

// pruneArray drops the objects whose name field is a dead source-layer.
// Entries without a string name field are kept.
func pruneArray(raw json.RawMessage, field string, live func(string) bool) (json.RawMessage, int, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, 0, err
	}
	kept := entries[:0]
	for _, e := range entries {
		var named map[string]interface{}
		if err := json.Unmarshal(e, &named); err == nil {
			if name, ok := named[field].(string); ok && !live(name) {
				continue
			}
		}
		kept = append(kept, e)
	}
	out, err := json.Marshal(kept)
	return out, len(kept), err
}

// withZoomRange returns a copy of md with the minzoom and maxzoom rows set.
// Rows keep their position; missing rows are appended.
func withZoomRange(md *processing.Metadata, minZoom, maxZoom uint32) *processing.Metadata {
	rows := orderedmap.New[string, string]()
	for pair := md.Rows.Oldest(); pair != nil; pair = pair.Next() {
		rows.Set(pair.Key, pair.Value)
	}
	rows.Set("minzoom", strconv.FormatUint(uint64(minZoom), 10))
	rows.Set("maxzoom", strconv.FormatUint(uint64(maxZoom), 10))
	return processing.NewMetadata(rows)
}
