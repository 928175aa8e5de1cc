package crmsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// fakeClock backs the client's time source. Sleeps advance the clock
// instead of blocking and are recorded for assertions.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 10, 3, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func testClient(baseURL string, clock *fakeClock) *crmClient {
	cfg := testCrmConfig(baseURL)
	cfg.RequestInterval = 1100 * time.Millisecond
	cfg.MaxAttempts = 3
	c := newCrmClient(cfg)
	c.now = clock.Now
	c.sleep = clock.Sleep
	return c
}

func TestThrottleEnforcesMinimumGap(t *testing.T) {
	clock := newFakeClock()
	c := testClient("http://crm.test", clock)

	if err := c.throttle(context.Background()); err != nil {
		t.Fatalf("first throttle: %v", err)
	}
	if len(clock.sleeps) != 0 {
		t.Fatalf("first request should not wait, slept %v", clock.sleeps)
	}

	// back to back: full interval expected
	if err := c.throttle(context.Background()); err != nil {
		t.Fatalf("second throttle: %v", err)
	}
	if len(clock.sleeps) != 1 || clock.sleeps[0] != 1100*time.Millisecond {
		t.Fatalf("expected one 1.1s wait, got %v", clock.sleeps)
	}

	// partial elapse: only the remainder
	clock.now = clock.now.Add(600 * time.Millisecond)
	if err := c.throttle(context.Background()); err != nil {
		t.Fatalf("third throttle: %v", err)
	}
	if len(clock.sleeps) != 2 || clock.sleeps[1] != 500*time.Millisecond {
		t.Fatalf("expected a 500ms wait, got %v", clock.sleeps)
	}

	// interval already passed: no wait
	clock.now = clock.now.Add(2 * time.Second)
	if err := c.throttle(context.Background()); err != nil {
		t.Fatalf("fourth throttle: %v", err)
	}
	if len(clock.sleeps) != 2 {
		t.Fatalf("expected no extra wait, got %v", clock.sleeps)
	}
}

func TestRequestRetriesAfterRateLimit(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if r.Header.Get("X-API-KEY") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("missing bearer header")
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"ok": true},
		})
	}))
	defer srv.Close()

	clock := newFakeClock()
	c := testClient(srv.URL, clock)

	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.request(context.Background(), "/students-list", map[string]interface{}{"page": 1}, &out); err != nil {
		t.Fatalf("request: %v", err)
	}
	if !out.OK {
		t.Fatal("data not decoded")
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
	// 429 after attempt 1 waits 2^1 * 2s
	if len(clock.sleeps) != 1 || clock.sleeps[0] != 4*time.Second {
		t.Fatalf("expected one 4s backoff, got %v", clock.sleeps)
	}
}

func TestRetryAttemptsKeepMinimumGapToNextCall(t *testing.T) {
	clock := newFakeClock()
	var arrivals []time.Time
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the handler runs synchronously inside the client goroutine,
		// so reading the fake clock here is race free
		arrivals = append(arrivals, clock.Now())
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{},
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL, clock)

	// call A is rate limited once and succeeds on its retry
	if err := c.request(context.Background(), "/students-list", map[string]interface{}{"page": 1}, nil); err != nil {
		t.Fatalf("call A: %v", err)
	}
	// call B follows immediately
	if err := c.request(context.Background(), "/students-list", map[string]interface{}{"page": 1}, nil); err != nil {
		t.Fatalf("call B: %v", err)
	}

	if len(arrivals) != 3 {
		t.Fatalf("expected 3 dispatches, got %d", len(arrivals))
	}
	// B must measure its gap from A's retry, not from A's first attempt
	for i := 1; i < len(arrivals); i++ {
		if gap := arrivals[i].Sub(arrivals[i-1]); gap < c.minInterval {
			t.Fatalf("dispatch %d only %v after the previous one, need >= %v", i, gap, c.minInterval)
		}
	}
}

func TestRequestGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	clock := newFakeClock()
	c := testClient(srv.URL, clock)

	err := c.request(context.Background(), "/groups-list", map[string]interface{}{"page": 1}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "giving up after 3 attempts") {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(err.Error(), "/groups-list") {
		t.Fatalf("error should name the endpoint: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	// transient failures back off 2^1*1s then 2^2*1s
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(clock.sleeps) != 2 || clock.sleeps[0] != want[0] || clock.sleeps[1] != want[1] {
		t.Fatalf("expected backoffs %v, got %v", want, clock.sleeps)
	}
}

func TestRequestTreatsEnvelopeFailureAsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"message": "invalid api key",
		})
	}))
	defer srv.Close()

	clock := newFakeClock()
	c := testClient(srv.URL, clock)
	c.maxAttempts = 1

	err := c.request(context.Background(), "/teachers-list", map[string]interface{}{"page": 1}, nil)
	if err == nil || !strings.Contains(err.Error(), "invalid api key") {
		t.Fatalf("expected envelope rejection, got %v", err)
	}
}

func TestFetchAllPagesWalksPaginationMetadata(t *testing.T) {
	pageSizes := []int{5, 5, 2}
	var requestedPages []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Page    int `json:"page"`
			PerPage int `json:"per_page"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		requestedPages = append(requestedPages, body.Page)

		students := make([]CrmStudent, pageSizes[body.Page-1])
		for i := range students {
			students[i] = CrmStudent{ID: int64(body.Page*100 + i)}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"students": students,
				"pagination": CrmPagination{
					Total: 12, CurrentPage: body.Page, PerPage: body.PerPage, TotalPages: 3,
				},
			},
		})
	}))
	defer srv.Close()

	clock := newFakeClock()
	c := testClient(srv.URL, clock)
	c.pageSize = 5

	students, err := c.FetchAllStudents(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchAllStudents: %v", err)
	}
	if len(students) != 12 {
		t.Fatalf("expected 12 students, got %d", len(students))
	}
	if len(requestedPages) != 3 || requestedPages[0] != 1 || requestedPages[2] != 3 {
		t.Fatalf("unexpected page walk: %v", requestedPages)
	}
}

func TestFetchAllPagesReturnsPartialItemsOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Page int `json:"page"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Page > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"students": []CrmStudent{{ID: 1}, {ID: 2}},
				"pagination": CrmPagination{
					Total: 4, CurrentPage: 1, PerPage: 2, TotalPages: 2,
				},
			},
		})
	}))
	defer srv.Close()

	clock := newFakeClock()
	c := testClient(srv.URL, clock)
	c.maxAttempts = 1
	c.pageSize = 2

	students, err := c.FetchAllStudents(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error from page 2")
	}
	if len(students) != 2 {
		t.Fatalf("expected the 2 items from page 1 to survive, got %d", len(students))
	}
}
