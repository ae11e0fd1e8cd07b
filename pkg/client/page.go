package client

import (
	"net/url"
	"strconv"
)

// DefaultFormat is the response format requested from the API.
const DefaultFormat = "json"

// PageRequest identifies one page of the bioactivity collection.
type PageRequest struct {
	Offset int
	Limit  int
	Format string
}

// Values encodes the request as query parameters.
func (r PageRequest) Values() url.Values {
	format := r.Format
	if format == "" {
		format = DefaultFormat
	}
	v := url.Values{}
	v.Set("offset", strconv.Itoa(r.Offset))
	v.Set("limit", strconv.Itoa(r.Limit))
	v.Set("format", format)
	return v
}

// Meta is the pagination metadata attached to every page. The API sends
// total_count as a JSON integer.
type Meta struct {
	TotalCount int `json:"total_count"`
	Limit      int `json:"limit,omitempty"`
	Offset     int `json:"offset,omitempty"`
}

// Page is one decoded response body. Records keep their loose JSON shape;
// numbers are decoded as json.Number.
type Page struct {
	Bioactivities []map[string]any `json:"bioactivities"`
	Meta          Meta             `json:"meta"`
}
