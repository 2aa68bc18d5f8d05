package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrUsage indicates invalid command line arguments.
	ErrUsage ConfigErrorType = "USAGE"
	// ErrParsing indicates a failure when parsing environment variable values.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
)

// ConfigError is returned by Load to aid debugging.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load builds the configuration from a .env file (if present), the process
// environment and the command line arguments (without the program name),
// then validates it. Usage and flag errors are written to output.
//
// A help request returns flag.ErrHelp unwrapped.
func Load(args []string, output io.Writer) (*Config, error) {
	return load(args, output, nil)
}

func load(args []string, output io.Writer, dotenvFiles []string) (*Config, error) {
	// missing .env is fine; existing environment variables win
	_ = godotenv.Load(dotenvFiles...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	if err := applyFlags(&cfg, args, output); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, &ConfigError{Type: ErrUsage, Message: "invalid arguments", Err: err}
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the rules tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	if cfg.ServeAddr == "" && cfg.RadiusKM <= 0 {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "a positive radius (-r or RADIUS_KM) is required",
		}
	}
	return nil
}

// applyFlags parses args into a FlagSet seeded with the environment values,
// so flags override the environment only when given.
func applyFlags(cfg *Config, args []string, output io.Writer) error {
	fs := flag.NewFlagSet("firezips", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintf(output, "Usage: firezips -z <zip codes> -r <radius km> [options]\n\n")
		fs.PrintDefaults()
	}

	zipHelp := "file location of zip codes, long, lat table (path, http(s) URL or postgres URL)"
	fs.StringVar(&cfg.ZipCodes, "z", cfg.ZipCodes, zipHelp)
	fs.StringVar(&cfg.ZipCodes, "zip-codes", cfg.ZipCodes, zipHelp)

	radius := radiusValue{v: &cfg.RadiusKM}
	fs.Var(radius, "r", "radius in km for affected area")
	fs.Var(radius, "radius", "radius in km for affected area")

	fs.StringVar(&cfg.FeedURL, "feed", cfg.FeedURL, "FIRMS active fire CSV URL")
	fs.StringVar(&cfg.Match.Strategy, "strategy", cfg.Match.Strategy, "matching strategy: scan, index or parallel")
	fs.IntVar(&cfg.Match.Workers, "workers", cfg.Match.Workers, "workers for the parallel strategy (0 = NumCPU)")
	fs.StringVar(&cfg.Output.Format, "format", cfg.Output.Format, "output format: text or json")
	fs.StringVar(&cfg.Output.File, "o", cfg.Output.File, "write results to this file instead of stdout")
	fs.StringVar(&cfg.ServeAddr, "serve", cfg.ServeAddr, "serve the HTTP API on this address instead of running once")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments %v", fs.Args())
	}
	return nil
}

// radiusValue is a flag.Value writing into the Config radius.
type radiusValue struct {
	v *float64
}

func (r radiusValue) String() string {
	if r.v == nil || *r.v == 0 {
		return ""
	}
	return strconv.FormatFloat(*r.v, 'f', -1, 64)
}

func (r radiusValue) Set(s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("radius %q is not a number", s)
	}
	*r.v = f
	return nil
}
