package checkpoint

import (
	"fmt"
	"strings"
)

// KeyPrefix is the namespace of all checkpoint keys.
const KeyPrefix = "bioactivity:checkpoint"

// Key identifies one page of one run.
type Key struct {
	RunID  string
	Offset int
	Limit  int
}

// String generates a deterministic key string.
// Format: bioactivity:checkpoint:run:offset=500:limit=500
func (k Key) String() string {
	return strings.Join([]string{
		KeyPrefix,
		runSegment(k.RunID),
		fmt.Sprintf("offset=%d", k.Offset),
		fmt.Sprintf("limit=%d", k.Limit),
	}, ":")
}

// RunPattern returns a SCAN pattern matching every key of runID.
func RunPattern(runID string) string {
	return KeyPrefix + ":" + runSegment(runID) + ":*"
}

// runSegment keeps run IDs from introducing extra separators or glob
// characters into the key space.
func runSegment(runID string) string {
	if runID == "" {
		return "default"
	}
	return strings.NewReplacer(":", "_", "*", "_", "?", "_", "[", "_", "]", "_").Replace(runID)
}
