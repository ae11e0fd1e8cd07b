package pagination

import (
	"testing"
)

func TestRemaining(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		offset   int
		limit    int
		expected int
	}{
		{"full page", 1000, 0, 500, 500},
		{"last full page", 1000, 500, 500, 500},
		{"partial page", 1200, 1000, 500, 200},
		{"exactly at end", 1000, 1000, 500, 0},
		{"past end", 1000, 1500, 500, 0},
		{"far past end", 10, 10000, 500, 0},
		{"empty collection", 0, 0, 500, 0},
		{"single row", 1, 0, 500, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Remaining(tt.total, tt.offset, tt.limit)
			if got != tt.expected {
				t.Errorf("Remaining(%d, %d, %d) = %d, want %d", tt.total, tt.offset, tt.limit, got, tt.expected)
			}
		})
	}
}

func TestNewPlans(t *testing.T) {
	plans, err := NewPlans(1000, 500, 2)
	if err != nil {
		t.Fatalf("NewPlans() error = %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("Expected 2 plans, got %d", len(plans))
	}

	for i, p := range plans {
		if p.WorkerID != i {
			t.Errorf("plan %d: WorkerID = %d", i, p.WorkerID)
		}
		if p.StartOffset != i*500 {
			t.Errorf("plan %d: StartOffset = %d, want %d", i, p.StartOffset, i*500)
		}
		if p.Stride != 1000 {
			t.Errorf("plan %d: Stride = %d, want 1000", i, p.Stride)
		}
	}
}

func TestNewPlans_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		total   int
		limit   int
		workers int
	}{
		{"zero limit", 100, 0, 2},
		{"negative limit", 100, -5, 2},
		{"zero workers", 100, 10, 0},
		{"negative total", -1, 10, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPlans(tt.total, tt.limit, tt.workers); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestPlanPages_Sequence(t *testing.T) {
	plans, err := NewPlans(1200, 500, 2)
	if err != nil {
		t.Fatalf("NewPlans() error = %v", err)
	}

	w0 := plans[0].Pages()
	if len(w0) != 2 || w0[0].Offset != 0 || w0[0].Limit != 500 || w0[1].Offset != 1000 || w0[1].Limit != 200 {
		t.Errorf("worker 0 pages = %+v", w0)
	}

	w1 := plans[1].Pages()
	if len(w1) != 1 || w1[0].Offset != 500 || w1[0].Limit != 500 {
		t.Errorf("worker 1 pages = %+v", w1)
	}
}

func TestPlanPages_WorkerBeyondTotal(t *testing.T) {
	plans, err := NewPlans(300, 500, 4)
	if err != nil {
		t.Fatalf("NewPlans() error = %v", err)
	}

	if got := plans[0].Pages(); len(got) != 1 || got[0].Limit != 300 {
		t.Errorf("worker 0 pages = %+v", got)
	}
	for _, p := range plans[1:] {
		if got := p.Pages(); len(got) != 0 {
			t.Errorf("worker %d should issue no requests, got %+v", p.WorkerID, got)
		}
	}
}

// Every row in [0, total) is covered by exactly one page of exactly one
// worker, and no page exceeds the ceiling.
func TestPlans_PartitionCoverage(t *testing.T) {
	cases := []struct{ total, limit, workers int }{
		{0, 500, 5},
		{1, 500, 5},
		{1000, 500, 2},
		{1001, 500, 2},
		{1200, 500, 2},
		{2500, 500, 5},
		{2501, 500, 5},
		{97, 7, 3},
		{100, 1, 4},
		{10, 3, 16},
	}

	for _, c := range cases {
		plans, err := NewPlans(c.total, c.limit, c.workers)
		if err != nil {
			t.Fatalf("NewPlans(%d, %d, %d) error = %v", c.total, c.limit, c.workers, err)
		}

		seen := make([]int, c.total)
		for _, p := range plans {
			for _, req := range p.Pages() {
				if req.Limit <= 0 || req.Limit > c.limit {
					t.Errorf("%+v: page limit %d out of range", c, req.Limit)
				}
				if req.Offset+req.Limit > c.total {
					t.Errorf("%+v: page [%d, %d) overruns total", c, req.Offset, req.Offset+req.Limit)
				}
				for i := req.Offset; i < req.Offset+req.Limit && i < c.total; i++ {
					seen[i]++
				}
			}
		}

		for i, n := range seen {
			if n != 1 {
				t.Errorf("%+v: row %d covered %d times", c, i, n)
				break
			}
		}
	}
}
