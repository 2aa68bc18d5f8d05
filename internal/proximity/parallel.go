package proximity

import (
	"golang.org/x/sync/errgroup"

	"github.com/thomhuang/FireZipCodes/internal/types"
)

// matchParallel splits areas into one contiguous chunk per worker. Each
// worker scans every detection against its own chunk into a private set;
// the sets are unioned after all workers finish.
func matchParallel(detections []types.DetectionPoint, areas []types.PostalArea, radiusKM float64, workers int) (types.AffectedAreaSet, error) {
	if len(detections) == 0 || len(areas) == 0 {
		return types.NewAffectedAreaSet(), nil
	}
	if workers > len(areas) {
		workers = len(areas)
	}
	chunkSize := (len(areas) + workers - 1) / workers

	partials := make([]types.AffectedAreaSet, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		start := i * chunkSize
		end := min(start+chunkSize, len(areas))
		if start >= end {
			partials[i] = types.NewAffectedAreaSet()
			continue
		}
		i := i
		g.Go(func() error {
			partials[i] = scan(detections, areas[start:end], radiusKM)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	affected := types.NewAffectedAreaSet()
	for _, p := range partials {
		affected.Union(p)
	}
	return affected, nil
}
