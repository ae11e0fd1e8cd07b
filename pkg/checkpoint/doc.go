// Package checkpoint records which pages of a run were loaded, so a run that
// is invoked again with the same run ID can skip them.
//
// Entries live in Redis under deterministic keys and expire after a TTL:
//
//	bioactivity:checkpoint:<run_id>:offset=<offset>:limit=<limit>
//
// Only pages that were fetched and committed are recorded. Pages skipped
// after exhausted retries are never marked, so a second invocation fetches
// them again.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := checkpoint.NewStore(redisClient, "2024-05-01", 24*time.Hour)
//
//	done, err := store.Done(ctx, 500, 500)
//	if err == nil && done {
//		// already loaded by an earlier invocation
//	}
//
//	// after the page was committed
//	_ = store.Mark(ctx, 500, 500, 500)
//
// Store errors are meant to be logged by the caller and otherwise ignored:
// loading a page twice is harmless because the loader upserts.
package checkpoint
