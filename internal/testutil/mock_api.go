// Package testutil provides testing utilities for the bioactivity dump.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"time"
)

// RecordFunc builds the record served at a given collection index.
type RecordFunc func(index int) map[string]any

// Failure makes the mock answer StatusCode for a page offset. Times limits
// how many requests fail before the offset recovers; 0 means always.
type Failure struct {
	StatusCode int
	Times      int
}

// MockAPI is a configurable mock of the bioactivity API.
type MockAPI struct {
	server *httptest.Server

	mu         sync.Mutex
	total      int
	record     RecordFunc
	failures   map[int]*Failure
	delay      time.Duration
	body       map[int]string
	requests   []Request
	attempts   map[int]int
	requestCnt int
}

// Request is one request observed by the mock.
type Request struct {
	Offset int
	Limit  int
	Format string
	Status int
}

// NewMockAPI creates a mock serving total synthetic records.
func NewMockAPI(total int) *MockAPI {
	m := &MockAPI{
		total:    total,
		record:   DefaultRecord,
		failures: make(map[int]*Failure),
		body:     make(map[int]string),
		attempts: make(map[int]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// DefaultRecord returns a record carrying every projected field.
func DefaultRecord(index int) map[string]any {
	return map[string]any{
		"compound_name":    fmt.Sprintf("COMPOUND-%d", index),
		"pubmed_id":        10000000 + index,
		"authors":          fmt.Sprintf("Author %d et al.", index),
		"target_organism":  "Homo sapiens",
		"target_pref_name": fmt.Sprintf("Target %d", index%17),
		"gene_name":        fmt.Sprintf("GENE%d", index%31),
		"resource_uri":     ResourceURI(index),
		"standard_value":   float64(index) / 10,
	}
}

// ResourceURI is the unique key DefaultRecord assigns to index.
func ResourceURI(index int) string {
	return fmt.Sprintf("/api/data/bioactivity/%d/", index)
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// SetRecordFunc replaces the record generator.
func (m *MockAPI) SetRecordFunc(fn RecordFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = fn
}

// SetTotal changes the collection size reported and served.
func (m *MockAPI) SetTotal(total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = total
}

// FailOffset makes requests for offset answer with the given failure.
func (m *MockAPI) FailOffset(offset int, f Failure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[offset] = &f
}

// SetRawBody makes requests for offset answer 200 with body verbatim.
func (m *MockAPI) SetRawBody(offset int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.body[offset] = body
}

// SetDelay delays every response.
func (m *MockAPI) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// RequestCount returns the number of requests served.
func (m *MockAPI) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCnt
}

// AttemptsFor returns how many requests hit offset.
func (m *MockAPI) AttemptsFor(offset int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[offset]
}

// Requests returns the observed requests ordered by offset, then arrival.
func (m *MockAPI) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

func (m *MockAPI) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil {
		limit = 20
	}
	format := q.Get("format")

	m.mu.Lock()
	m.requestCnt++
	m.attempts[offset]++
	attempt := m.attempts[offset]
	delay := m.delay
	total := m.total
	recordFn := m.record
	raw, hasRaw := m.body[offset]

	status := http.StatusOK
	if f, ok := m.failures[offset]; ok && (f.Times == 0 || attempt <= f.Times) {
		status = f.StatusCode
	}
	m.requests = append(m.requests, Request{Offset: offset, Limit: limit, Format: format, Status: status})
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error": "upstream unavailable"}`))
		return
	}

	if hasRaw {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(raw))
		return
	}

	records := make([]map[string]any, 0, limit)
	for i := offset; i < offset+limit && i < total; i++ {
		records = append(records, recordFn(i))
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"bioactivities": records,
		"meta": map[string]any{
			"limit":       limit,
			"offset":      offset,
			"total_count": total,
		},
	})
}
