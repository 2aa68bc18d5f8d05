package fires

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/thomhuang/FireZipCodes/internal/types"
)

const feedSource = "feed"

// ParseDetection converts one feed row into a DetectionPoint. row is the
// 1-based data row number used in error messages.
func ParseDetection(record []string, row int) (types.DetectionPoint, error) {
	if len(record) < MinFields {
		return types.DetectionPoint{}, &types.ParseError{
			Source: feedSource,
			Row:    row,
			Field:  "record",
			Value:  strings.Join(record, ","),
			Err:    fmt.Errorf("expected at least %d fields, got %d", MinFields, len(record)),
		}
	}

	lat, err := parseFloat(record[ColLatitude])
	if err != nil {
		return types.DetectionPoint{}, &types.ParseError{Source: feedSource, Row: row, Field: "latitude", Value: record[ColLatitude], Err: err}
	}
	lon, err := parseFloat(record[ColLongitude])
	if err != nil {
		return types.DetectionPoint{}, &types.ParseError{Source: feedSource, Row: row, Field: "longitude", Value: record[ColLongitude], Err: err}
	}
	conf, err := parseConfidence(record[ColConfidence])
	if err != nil {
		return types.DetectionPoint{}, &types.ParseError{Source: feedSource, Row: row, Field: "confidence", Value: record[ColConfidence], Err: err}
	}

	return types.DetectionPoint{Latitude: lat, Longitude: lon, Confidence: conf}, nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return v, nil
}

// parseConfidence accepts integers and integral decimals such as "80.0".
func parseConfidence(s string) (int, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := parseFloat(s)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer")
	}
	return int(f), nil
}

// Filter returns the detections in rows that fall strictly inside bounds
// and meet its confidence threshold, in input order. The first malformed
// row aborts the filter with a *types.ParseError.
func Filter(rows [][]string, bounds types.RegionBounds) ([]types.DetectionPoint, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}

	var kept []types.DetectionPoint
	for i, record := range rows {
		d, err := ParseDetection(record, i+1)
		if err != nil {
			return nil, err
		}
		if bounds.Contains(d) {
			kept = append(kept, d)
		}
	}
	return kept, nil
}
