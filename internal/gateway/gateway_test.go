package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meetpatell07/GBC-EventBooking/internal/breaker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry() *breaker.Registry {
	return breaker.NewRegistry(breaker.Config{
		Window:           4,
		FailureThreshold: 0.5,
		Cooldown:         time.Minute,
		ProbeSuccesses:   1,
	})
}

func TestRoutesToUpstreams(t *testing.T) {
	var bookingHits, approvalHits atomic.Int32

	bookingSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bookingHits.Add(1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"booking_id":"b-1"}`))
	}))
	defer bookingSrv.Close()
	approvalSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		approvalHits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer approvalSrv.Close()

	router, err := NewRouter(bookingSrv.URL, approvalSrv.URL, testRegistry(), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	edge := httptest.NewServer(router)
	defer edge.Close()

	resp, err := http.Get(edge.URL + "/bookings/b-1")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if string(body) != `{"booking_id":"b-1"}` {
		t.Fatalf("body = %q, upstream response must pass through", body)
	}

	resp, err = http.Get(edge.URL + "/approvals/b-1")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if bookingHits.Load() != 1 || approvalHits.Load() != 1 {
		t.Fatalf("hits = booking %d, approval %d", bookingHits.Load(), approvalHits.Load())
	}
}

func TestUpstreamFailuresOpenBreaker(t *testing.T) {
	var hits atomic.Int32

	bookingSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bookingSrv.Close()
	approvalSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer approvalSrv.Close()

	router, err := NewRouter(bookingSrv.URL, approvalSrv.URL, testRegistry(), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	edge := httptest.NewServer(router)
	defer edge.Close()

	// Fill the window with failures to trip the booking breaker.
	for i := 0; i < 4; i++ {
		resp, err := http.Get(edge.URL + "/bookings/b-1")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusInternalServerError {
			t.Fatalf("status = %d, want upstream 500 passed through", resp.StatusCode)
		}
	}

	resp, err := http.Get(edge.URL + "/bookings/b-1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 once the breaker is open", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "service_degraded" {
		t.Fatalf("error = %q, want service_degraded", body["error"])
	}
	if hits.Load() != 4 {
		t.Fatalf("upstream hits = %d, the short-circuited request must not reach it", hits.Load())
	}

	// The approval target has its own breaker and stays reachable.
	resp, err = http.Get(edge.URL + "/approvals/b-1")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approval status = %d, want 200", resp.StatusCode)
	}
}

func TestUnreachableUpstreamIsBadGateway(t *testing.T) {
	// A server that is already closed gives a connect error.
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	approvalSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer approvalSrv.Close()

	router, err := NewRouter(deadURL, approvalSrv.URL, testRegistry(), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	edge := httptest.NewServer(router)
	defer edge.Close()

	resp, err := http.Get(edge.URL + "/bookings")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "bad_gateway" {
		t.Fatalf("error = %q, want bad_gateway", body["error"])
	}
}

func TestBadUpstreamURLRejected(t *testing.T) {
	if _, err := NewRouter("://not-a-url", "http://localhost:1", testRegistry(), testLogger()); err == nil {
		t.Fatal("expected error for malformed upstream url")
	}
}
