// Package pipeline runs one snapshot end to end: download the active fire
// feed, keep the detections inside the region of interest and match them
// against the postal reference table.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/thomhuang/FireZipCodes/internal/fires"
	"github.com/thomhuang/FireZipCodes/internal/observability"
	"github.com/thomhuang/FireZipCodes/internal/proximity"
	"github.com/thomhuang/FireZipCodes/internal/types"
)

// Fetcher downloads a remote document. *upstream.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Matcher computes the affected set for a batch of detections.
// *proximity.Matcher satisfies it.
type Matcher interface {
	Match(detections []types.DetectionPoint, radiusKM float64) (types.AffectedAreaSet, error)
	Areas() int
}

// Result is the outcome of one run.
type Result struct {
	RunID       string
	RadiusKM    float64
	Detections  int
	PostalAreas int
	Affected    types.AffectedAreaSet
	Duration    time.Duration
}

// Runner holds the collaborators shared by every run. The reference table
// behind the matcher is loaded once and never mutated, so a Runner is safe
// for concurrent use.
type Runner struct {
	fetcher Fetcher
	matcher Matcher
	feedURL string
	bounds  types.RegionBounds
	metrics *observability.Collector
	logger  *slog.Logger
	now     func() time.Time
}

// NewRunner builds a Runner. metrics may be nil; a nil logger falls back to
// slog.Default().
func NewRunner(fetcher Fetcher, matcher Matcher, feedURL string, bounds types.RegionBounds, metrics *observability.Collector, logger *slog.Logger) (*Runner, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		fetcher: fetcher,
		matcher: matcher,
		feedURL: feedURL,
		bounds:  bounds,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Run executes one snapshot with the given radius. The radius is checked
// before the feed is downloaded.
func (r *Runner) Run(ctx context.Context, radiusKM float64) (*Result, error) {
	start := r.now()
	res := &Result{
		RunID:       uuid.NewString(),
		RadiusKM:    radiusKM,
		PostalAreas: r.matcher.Areas(),
	}
	logger := r.logger.With("run_id", res.RunID)

	err := r.run(ctx, logger, res)
	res.Duration = r.now().Sub(start)

	outcome := outcomeOf(err)
	affected := 0
	if res.Affected != nil {
		affected = len(res.Affected)
	}
	r.metrics.ObserveRun(outcome, res.Duration, res.Detections, affected)

	if err != nil {
		logger.ErrorContext(ctx, "run failed",
			"outcome", outcome,
			"duration", res.Duration,
			"error", err,
		)
		return nil, err
	}
	logger.InfoContext(ctx, "run finished",
		"radius_km", radiusKM,
		"detections", res.Detections,
		"postal_areas", res.PostalAreas,
		"affected", affected,
		"duration", res.Duration,
	)
	return res, nil
}

func (r *Runner) run(ctx context.Context, logger *slog.Logger, res *Result) error {
	if err := proximity.ValidateRadius(res.RadiusKM); err != nil {
		return err
	}

	body, err := r.fetcher.Fetch(ctx, r.feedURL)
	if err != nil {
		return fmt.Errorf("downloading fire feed: %w", err)
	}
	rows, err := fires.ParseFeed(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("reading fire feed: %w", err)
	}

	detections, err := fires.Filter(rows, r.bounds)
	if err != nil {
		return err
	}
	res.Detections = len(detections)
	logger.DebugContext(ctx, "feed filtered",
		"rows", len(rows),
		"kept", len(detections),
	)

	affected, err := r.matcher.Match(detections, res.RadiusKM)
	if err != nil {
		return err
	}
	res.Affected = affected
	return nil
}

func outcomeOf(err error) string {
	switch types.CodeOf(err) {
	case "":
		return observability.OutcomeOK
	case types.ErrCodeInvalidArgument:
		return observability.OutcomeInvalid
	case types.ErrCodeParse:
		return observability.OutcomeParse
	case types.ErrCodeUpstreamUnavailable:
		return observability.OutcomeUpstream
	default:
		return observability.OutcomeUnexpected
	}
}
