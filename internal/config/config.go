// Package config defines the runtime configuration for firezips.
//
// Values are resolved via a priority chain:
//
//	Command line flags (Highest) -> OS Environment -> Dotenv File -> Defaults
//
// Configuration is loaded once at startup and is immutable thereafter.
package config

import (
	"time"

	"github.com/thomhuang/FireZipCodes/internal/proximity"
	"github.com/thomhuang/FireZipCodes/internal/types"
	"github.com/thomhuang/FireZipCodes/internal/upstream"
)

// DefaultFeedURL is the NASA FIRMS MODIS Collection 6 active fire file for
// the contiguous USA and Hawaii, last 24 hours.
const DefaultFeedURL = "https://firms.modaps.eosdis.nasa.gov/data/active_fire/c6/csv/MODIS_C6_USA_contiguous_and_Hawaii_24h.csv"

// Config is the top-level configuration struct.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`

	FeedURL string `envconfig:"FEED_URL" default:"https://firms.modaps.eosdis.nasa.gov/data/active_fire/c6/csv/MODIS_C6_USA_contiguous_and_Hawaii_24h.csv" validate:"required,url"`

	// ZipCodes is a file path, http(s) URL or postgres URL.
	ZipCodes string `envconfig:"ZIP_CODES" validate:"required"`
	ZipTable string `envconfig:"ZIP_TABLE" default:"zipcodes" validate:"required"`

	// RadiusKM is required outside service mode, where each request
	// carries its own radius.
	RadiusKM float64 `envconfig:"RADIUS_KM" validate:"gte=0"`

	Region RegionConfig
	Match  MatchConfig
	Fetch  FetchConfig
	Output OutputConfig

	// ServeAddr switches the binary to HTTP service mode when non-empty.
	ServeAddr string `envconfig:"SERVE_ADDR"`
}

// RegionConfig is the rectangular area of interest. Defaults describe
// California.
type RegionConfig struct {
	LatLow        float64 `envconfig:"REGION_LAT_LOW" default:"32" validate:"gte=-90,lte=90"`
	LatHigh       float64 `envconfig:"REGION_LAT_HIGH" default:"42" validate:"gte=-90,lte=90,gtfield=LatLow"`
	LonLow        float64 `envconfig:"REGION_LON_LOW" default:"-124" validate:"gte=-180,lte=180"`
	LonHigh       float64 `envconfig:"REGION_LON_HIGH" default:"-114" validate:"gte=-180,lte=180,gtfield=LonLow"`
	MinConfidence int     `envconfig:"REGION_MIN_CONFIDENCE" default:"50" validate:"gte=0,lte=100"`
}

// Bounds converts the region into the filter's value type.
func (r RegionConfig) Bounds() types.RegionBounds {
	return types.RegionBounds{
		LatLow:        r.LatLow,
		LatHigh:       r.LatHigh,
		LonLow:        r.LonLow,
		LonHigh:       r.LonHigh,
		MinConfidence: r.MinConfidence,
	}
}

// MatchConfig selects the proximity strategy.
type MatchConfig struct {
	Strategy string `envconfig:"MATCH_STRATEGY" default:"scan" validate:"oneof=scan index parallel"`
	Workers  int    `envconfig:"MATCH_WORKERS" default:"0" validate:"gte=0"`
}

// StrategyName returns the typed strategy.
func (m MatchConfig) StrategyName() proximity.Strategy {
	return proximity.Strategy(m.Strategy)
}

// FetchConfig bounds upstream downloads.
type FetchConfig struct {
	MaxAttempts int           `envconfig:"FETCH_MAX_ATTEMPTS" default:"5" validate:"gte=1,lte=20"`
	MinWait     time.Duration `envconfig:"FETCH_MIN_WAIT" default:"5s" validate:"gte=0"`
	MaxWait     time.Duration `envconfig:"FETCH_MAX_WAIT" default:"1m" validate:"gtefield=MinWait"`
	Timeout     time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s" validate:"gt=0"`
}

// RetryPolicy converts the fetch settings for the upstream client.
func (f FetchConfig) RetryPolicy() upstream.RetryPolicy {
	return upstream.RetryPolicy{
		MaxAttempts: f.MaxAttempts,
		MinWait:     f.MinWait,
		MaxWait:     f.MaxWait,
	}
}

// OutputConfig controls presentation of the affected set.
type OutputConfig struct {
	Format string `envconfig:"OUTPUT_FORMAT" default:"text" validate:"oneof=text json"`
	File   string `envconfig:"OUTPUT_FILE"`
}
