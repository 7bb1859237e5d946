// Package report writes inspect and optimize results as text or NDJSON.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/pdok/tilesieve/optimize"
	"github.com/pdok/tilesieve/stats"
)

type Format string

const (
	Text   Format = "text"
	NDJSON Format = "ndjson"
)

var Formats = []Format{Text, NDJSON}

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q, expected one of %v", s, Formats)
}

// WriteInspect writes the sections of r that were requested.
func WriteInspect(w io.Writer, format Format, r *stats.Report) error {
	switch format {
	case Text:
		return writeInspectText(w, r)
	case NDJSON:
		return writeInspectNDJSON(w, r)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func WriteOptimize(w io.Writer, format Format, r *optimize.Report) error {
	switch format {
	case Text:
		return writeOptimizeText(w, r)
	case NDJSON:
		return writeOptimizeNDJSON(w, r)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
