package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := Register(Config{Registry: reg, Gatherer: reg})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	RecordLogin("google", "success")
	RecordTokenRejected("expired")
	RecordReconcile("created")
	ObserveProviderCall("github", "exchange", 120*time.Millisecond, errors.New("boom"))

	if got := testutil.ToFloat64(loginAttemptsTotal.WithLabelValues("google", "success")); got != 1 {
		t.Fatalf("login_attempts_total = %v", got)
	}
	if got := testutil.ToFloat64(tokenRejectionsTotal.WithLabelValues("expired")); got != 1 {
		t.Fatalf("access_token_rejections_total = %v", got)
	}

	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/42", nil))

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/users/{id}", "418")); got != 1 {
		t.Fatalf("http_requests_total by route pattern = %v", got)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "identity_reconcile_total") {
		t.Fatalf("metrics output missing reconcile counter")
	}
}
