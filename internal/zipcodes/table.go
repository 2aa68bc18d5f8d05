// Package zipcodes loads the postal code reference table into memory as a
// slice of PostalArea values. Sources are delimited files with named
// columns, GeoNames postal dumps and Postgres tables.
package zipcodes

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/thomhuang/FireZipCodes/internal/types"
)

// Accepted header names per column, compared case-insensitively.
var (
	zipColumns = []string{"ZIP", "zipcode", "zip_code", "postal_code", "postalcode", "id"}
	latColumns = []string{"latitude", "lat"}
	lonColumns = []string{"longitude", "lon", "lng", "long"}
)

type columnIndex struct {
	zip, lat, lon int
}

func findColumn(header []string, names []string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}

func indexHeader(header []string) (columnIndex, error) {
	idx := columnIndex{
		zip: findColumn(header, zipColumns),
		lat: findColumn(header, latColumns),
		lon: findColumn(header, lonColumns),
	}
	var missing []string
	if idx.zip < 0 {
		missing = append(missing, "ZIP")
	}
	if idx.lat < 0 {
		missing = append(missing, "latitude")
	}
	if idx.lon < 0 {
		missing = append(missing, "longitude")
	}
	if len(missing) > 0 {
		return idx, types.NewInvalidArgument(fmt.Sprintf("reference table header is missing columns %s", strings.Join(missing, ", ")))
	}
	return idx, nil
}

// ReadCSV parses a comma separated reference table whose first line names
// the columns. source labels parse errors.
func ReadCSV(r io.Reader, source string) ([]types.PostalArea, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		if pe := types.RecordError(source, err); pe != nil {
			return nil, pe
		}
		return nil, fmt.Errorf("reading %s header: %w", source, err)
	}
	// strip a UTF-8 BOM left by spreadsheet exports
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	idx, err := indexHeader(header)
	if err != nil {
		return nil, err
	}

	var areas []types.PostalArea
	for row := 1; ; row++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if pe := types.RecordError(source, err); pe != nil {
				return nil, pe
			}
			return nil, fmt.Errorf("reading %s: %w", source, err)
		}
		area, err := parseArea(source, row, record[idx.zip], record[idx.lat], record[idx.lon])
		if err != nil {
			return nil, err
		}
		areas = append(areas, area)
	}
	return areas, nil
}

func parseArea(source string, row int, zip, lat, lon string) (types.PostalArea, error) {
	zip = strings.TrimSpace(zip)
	if zip == "" {
		return types.PostalArea{}, &types.ParseError{Source: source, Row: row, Field: "ZIP", Value: zip, Err: errors.New("empty identifier")}
	}
	latitude, err := parseCoordinate(lat, 90)
	if err != nil {
		return types.PostalArea{}, &types.ParseError{Source: source, Row: row, Field: "latitude", Value: lat, Err: err}
	}
	longitude, err := parseCoordinate(lon, 180)
	if err != nil {
		return types.PostalArea{}, &types.ParseError{Source: source, Row: row, Field: "longitude", Value: lon, Err: err}
	}
	return types.PostalArea{ZIP: zip, Latitude: latitude, Longitude: longitude}, nil
}

func parseCoordinate(s string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.Abs(v) > limit {
		return 0, fmt.Errorf("out of range [-%v, %v]", limit, limit)
	}
	return v, nil
}
