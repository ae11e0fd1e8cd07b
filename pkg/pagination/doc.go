// Package pagination extracts a paginated collection with a fixed number of
// concurrent workers partitioned by offset stride.
//
// Worker i starts at offset i*PageLimit and advances by PageLimit*Workers
// after every page, so the workers tile [0, TotalRows) without overlap. Each
// worker runs strictly sequentially: compute the page budget, fetch, shape,
// load, advance. A page whose fetch fails after retries is logged and
// skipped; the worker moves on to its next offset and the page's rows are
// absent for this run.
//
// Example usage:
//
//	config := pagination.DefaultConfig()
//	extractor, err := pagination.NewExtractor(apiClient, tableLoader, config)
//	coordinator := pagination.NewCoordinator(apiClient, extractor, config)
//	summary, err := coordinator.Run(ctx)
//
// The coordinator:
//   - Resolves the total row count (configured, or from API metadata)
//   - Builds one immutable Plan per worker
//   - Runs every worker in its own goroutine and waits for all of them
//   - Merges per-worker results into a Summary after the join
//
// Workers share no mutable state. Results are merged only after every
// worker returned.
package pagination
