package pagination

import (
	"fmt"

	"github.com/Sternrassler/bioactivity-dump/pkg/client"
)

// Remaining returns the limit of the next page request: the page ceiling,
// clamped to the rows left before totalRows. It returns 0 exactly when
// offset >= totalRows, which ends the worker's loop.
func Remaining(totalRows, offset, pageLimit int) int {
	n := totalRows - offset
	if n > pageLimit {
		n = pageLimit
	}
	if n < 0 {
		return 0
	}
	return n
}

// Plan is the immutable work assignment of one worker.
type Plan struct {
	WorkerID    int
	StartOffset int
	Stride      int
	TotalRows   int
	PageLimit   int
}

// NewPlans partitions [0, totalRows) between workers. Worker i starts at
// i*pageLimit; all workers share the stride pageLimit*workers.
func NewPlans(totalRows, pageLimit, workers int) ([]Plan, error) {
	if pageLimit <= 0 {
		return nil, fmt.Errorf("page limit must be > 0 (got %d)", pageLimit)
	}
	if workers <= 0 {
		return nil, fmt.Errorf("workers must be > 0 (got %d)", workers)
	}
	if totalRows < 0 {
		return nil, fmt.Errorf("total rows must be >= 0 (got %d)", totalRows)
	}

	stride := pageLimit * workers
	plans := make([]Plan, workers)
	for i := range plans {
		plans[i] = Plan{
			WorkerID:    i,
			StartOffset: i * pageLimit,
			Stride:      stride,
			TotalRows:   totalRows,
			PageLimit:   pageLimit,
		}
	}
	return plans, nil
}

// Pages lists the requests the plan issues when every fetch succeeds.
func (p Plan) Pages() []client.PageRequest {
	var pages []client.PageRequest
	if p.Stride <= 0 {
		return pages
	}
	for offset := p.StartOffset; ; offset += p.Stride {
		limit := Remaining(p.TotalRows, offset, p.PageLimit)
		if limit <= 0 {
			break
		}
		pages = append(pages, client.PageRequest{Offset: offset, Limit: limit})
	}
	return pages
}
