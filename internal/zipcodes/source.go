package zipcodes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/compress/gzip"

	"github.com/thomhuang/FireZipCodes/internal/types"
)

// Fetcher downloads a remote document.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// connectFunc opens a Querier for a database URL and returns its closer.
type connectFunc func(ctx context.Context, dsn string) (Querier, func(), error)

func connectPool(ctx context.Context, dsn string) (Querier, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return pool, pool.Close, nil
}

// Loader resolves a reference table source string to PostalArea values.
//
// Supported sources:
//   - postgres:// or postgresql:// URLs, read from the configured table
//   - http(s) URLs, downloaded through the Fetcher
//   - local paths
//
// File-like sources are decoded by extension: .zip is a GeoNames archive,
// .txt and .tsv are GeoNames dumps, anything else is a CSV with a header.
// A trailing .gz is decompressed first.
type Loader struct {
	fetcher Fetcher
	table   string
	connect connectFunc
	logger  *slog.Logger
}

// NewLoader builds a Loader. fetcher may be nil when no http source is used.
func NewLoader(fetcher Fetcher, table string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		fetcher: fetcher,
		table:   table,
		connect: connectPool,
		logger:  logger,
	}
}

// Load reads the whole reference table from source.
func (l *Loader) Load(ctx context.Context, source string) ([]types.PostalArea, error) {
	if source == "" {
		return nil, types.NewInvalidArgument("reference table source is empty")
	}

	u, err := url.Parse(source)
	scheme := ""
	if err == nil {
		scheme = strings.ToLower(u.Scheme)
	}

	var areas []types.PostalArea
	switch scheme {
	case "postgres", "postgresql":
		areas, err = l.loadDatabase(ctx, source)
	case "http", "https":
		if l.fetcher == nil {
			return nil, types.NewInvalidArgument("no fetcher configured for remote reference table")
		}
		var data []byte
		data, err = l.fetcher.Fetch(ctx, source)
		if err != nil {
			return nil, err
		}
		areas, err = Decode(path.Base(u.Path), data)
	default:
		var data []byte
		data, err = os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("reading reference table: %w", err)
		}
		areas, err = Decode(source, data)
	}
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "loaded reference table",
		"source", redact(source),
		"postal_areas", len(areas),
	)
	return areas, nil
}

func (l *Loader) loadDatabase(ctx context.Context, dsn string) ([]types.PostalArea, error) {
	q, closeFn, err := l.connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to reference database: %w", err)
	}
	defer closeFn()
	return ReadTable(ctx, q, l.table)
}

// Decode parses an in-memory reference table, choosing the format from the
// extension of name.
func Decode(name string, data []byte) ([]types.PostalArea, error) {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".gz") {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
		defer zr.Close()
		data, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("decompressing %s: %w", name, err)
		}
		lower = strings.TrimSuffix(lower, ".gz")
	}

	source := path.Base(name)
	switch path.Ext(lower) {
	case ".zip":
		return ReadGeonamesArchive(data, source)
	case ".txt", ".tsv":
		return ReadGeonames(bytes.NewReader(data), source)
	default:
		return ReadCSV(bytes.NewReader(data), source)
	}
}

// redact drops credentials from database URLs before logging.
func redact(source string) string {
	u, err := url.Parse(source)
	if err != nil || u.User == nil {
		return source
	}
	return u.Redacted()
}
