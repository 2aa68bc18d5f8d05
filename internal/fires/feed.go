// Package fires parses the FIRMS active-fire feed and reduces it to the
// detections inside a region of interest.
//
// FIRMS MODIS CSV columns, in order:
//
//	latitude, longitude, brightness, scan, track, acq_date, acq_time,
//	satellite, confidence, version, bright_t31, frp, daynight
package fires

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/thomhuang/FireZipCodes/internal/types"
)

// Column positions in a FIRMS row.
const (
	ColLatitude   = 0
	ColLongitude  = 1
	ColConfidence = 8

	// MinFields is the number of fields a row needs to expose every column
	// the filter reads.
	MinFields = ColConfidence + 1
)

// ParseFeed splits raw FIRMS CSV into rows. The header line and blank lines
// are dropped. Gzip-compressed input is detected and decoded.
func ParseFeed(r io.Reader) ([][]string, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err == nil && bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening gzip feed: %w", err)
		}
		defer zr.Close()
		return readRows(zr)
	}
	return readRows(br)
}

func readRows(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	// field counts vary between FIRMS products; the filter checks what it needs
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	var rows [][]string
	first := true
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if pe := types.RecordError(feedSource, err); pe != nil {
				return nil, pe
			}
			return nil, fmt.Errorf("reading feed: %w", err)
		}
		if first {
			first = false
			if isHeader(record) {
				continue
			}
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func isHeader(record []string) bool {
	return len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "latitude")
}
