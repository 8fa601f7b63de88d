package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	ChiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/meetpatell07/GBC-EventBooking/internal/breaker"
)

var (
	proxiedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "The total number of requests proxied per upstream target",
	}, []string{"target"})
	shortCircuits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_short_circuits_total",
		Help: "The total number of requests rejected while a target's breaker was open",
	}, []string{"target"})
)

// target is one upstream service behind its own circuit breaker. A 5xx
// or transport error counts as a failure; anything the upstream answered
// below 500 counts as a success.
type target struct {
	name  string
	proxy *httputil.ReverseProxy
	brk   *breaker.Breaker
	log   *slog.Logger
}

func newTarget(name, rawURL string, reg *breaker.Registry, log *slog.Logger) (*target, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s url: %w", name, err)
	}

	t := &target{
		name:  name,
		proxy: httputil.NewSingleHostReverseProxy(u),
		brk:   reg.Get(name),
		log:   log,
	}

	t.proxy.ModifyResponse = func(resp *http.Response) error {
		if resp.StatusCode >= http.StatusInternalServerError {
			t.brk.Failure()
		} else {
			t.brk.Success()
		}
		return nil
	}
	t.proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		t.brk.Failure()
		t.log.Error("upstream call failed", "target", t.name, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":   "bad_gateway",
			"message": fmt.Sprintf("%s did not respond", t.name),
		})
	}

	return t, nil
}

func (t *target) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := t.brk.Allow(); err != nil {
		shortCircuits.WithLabelValues(t.name).Inc()
		t.log.Warn("request short-circuited", "target", t.name, "path", r.URL.Path)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":   "service_degraded",
			"message": fmt.Sprintf("%s is temporarily unavailable, retry later", t.name),
		})
		return
	}

	proxiedRequests.WithLabelValues(t.name).Inc()
	t.proxy.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// NewRouter builds the public edge: booking writes and reads go to the
// booking service, decision reads go to the approval service, each behind
// its own breaker so one degraded upstream does not darken the other.
func NewRouter(bookingURL, approvalURL string, reg *breaker.Registry, log *slog.Logger) (http.Handler, error) {
	bookings, err := newTarget("booking-service", bookingURL, reg, log)
	if err != nil {
		return nil, err
	}
	approvals, err := newTarget("approval-service", approvalURL, reg, log)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(ChiMiddleware.Logger)
	r.Use(ChiMiddleware.Recoverer)
	r.Use(ChiMiddleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Handle("/bookings", bookings)
	r.Handle("/bookings/*", bookings)
	r.Handle("/approvals/*", approvals)

	return r, nil
}
