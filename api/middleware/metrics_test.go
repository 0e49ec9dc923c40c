package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type recordingObserver struct {
	method string
	route  string
	status int
}

func (o *recordingObserver) Observe(method, route string, status int, _ time.Duration) {
	o.method, o.route, o.status = method, route, status
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	observer := &recordingObserver{}
	r := chi.NewRouter()
	r.Use(Metrics(observer))
	r.Post("/api/v1/orders/{code}/confirm-received", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/OD123/confirm-received", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if observer.route != "/api/v1/orders/{code}/confirm-received" {
		t.Fatalf("expected route pattern label, got %s", observer.route)
	}
	if observer.status != http.StatusConflict || observer.method != http.MethodPost {
		t.Fatalf("unexpected observation %+v", observer)
	}
}
