package zipcodes

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/thomhuang/FireZipCodes/internal/types"
)

// GeoNames postal dumps (https://download.geonames.org/export/zip/) are tab
// separated with twelve columns:
//
//	country code, postal code, place name, admin name1, admin code1,
//	admin name2, admin code2, admin name3, admin code3, latitude,
//	longitude, accuracy
const (
	geonamesFields    = 12
	geonamesPostal    = 1
	geonamesLatitude  = 9
	geonamesLongitude = 10
)

// ReadGeonames parses a GeoNames postal dump such as US.txt.
func ReadGeonames(r io.Reader, source string) ([]types.PostalArea, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = geonamesFields
	// place names contain bare quotes
	cr.LazyQuotes = true

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
		area, err := parseArea(source, row, record[geonamesPostal], record[geonamesLatitude], record[geonamesLongitude])
		if err != nil {
			return nil, err
		}
		areas = append(areas, area)
	}
	return areas, nil
}

// ReadGeonamesArchive extracts the country file from a GeoNames zip archive
// (US.zip holds US.txt next to readme.txt) and parses it.
func ReadGeonamesArchive(data []byte, source string) ([]types.PostalArea, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", source, err)
	}

	for _, f := range zr.File {
		name := path.Base(f.Name)
		if !strings.EqualFold(path.Ext(name), ".txt") || strings.EqualFold(name, "readme.txt") {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s in %s: %w", f.Name, source, err)
		}
		defer rc.Close()

		return ReadGeonames(rc, source+":"+name)
	}

	return nil, types.NewInvalidArgument(fmt.Sprintf("%s contains no postal code file", source))
}
