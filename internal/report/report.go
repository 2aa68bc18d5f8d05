// Package report renders a pipeline result as sorted text or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/thomhuang/FireZipCodes/internal/pipeline"
	"github.com/thomhuang/FireZipCodes/internal/types"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Document is the JSON shape of a result. The HTTP service answers with
// the same document.
type Document struct {
	RunID       string   `json:"run_id"`
	RadiusKM    float64  `json:"radius_km"`
	Detections  int      `json:"detections"`
	PostalAreas int      `json:"postal_areas"`
	Affected    []string `json:"affected"`
}

// NewDocument flattens res. Affected ZIPs are sorted and never null.
func NewDocument(res *pipeline.Result) Document {
	return Document{
		RunID:       res.RunID,
		RadiusKM:    res.RadiusKM,
		Detections:  res.Detections,
		PostalAreas: res.PostalAreas,
		Affected:    res.Affected.Sorted(),
	}
}

// Write renders res to w. Text output is one ZIP per line in ascending
// order; JSON output is an indented Document.
func Write(w io.Writer, res *pipeline.Result, format string) error {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(NewDocument(res), "", "  ")
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		data = append(data, '\n')
		_, err = w.Write(data)
		return err
	case FormatText, "":
		for _, zip := range res.Affected.Sorted() {
			if _, err := fmt.Fprintln(w, zip); err != nil {
				return err
			}
		}
		return nil
	default:
		return types.NewInvalidArgument(fmt.Sprintf("unknown output format %q", format))
	}
}

// WriteFile renders res into path, replacing any existing file.
func WriteFile(path string, res *pipeline.Result, format string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return Write(f, res, format)
}
