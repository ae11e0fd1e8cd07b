package checkpoint

import "time"

// Entry is the value stored for a loaded page.
type Entry struct {
	// Offset and Limit identify the page.
	Offset int `json:"offset"`
	Limit  int `json:"limit"`

	// Rows is the number of rows committed for the page.
	Rows int `json:"rows"`

	// LoadedAt is when the page was committed.
	LoadedAt time.Time `json:"loaded_at"`
}
