package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

type stubOutbox struct {
	reason    *enums.OutboxDLQErrorReason
	limit     int
	entry     *models.OutboxDLQ
	aggregate uuid.UUID
}

func (s *stubOutbox) List(ctx context.Context, reason *enums.OutboxDLQErrorReason, limit int) ([]models.OutboxDLQ, error) {
	s.reason, s.limit = reason, limit
	return nil, nil
}

func (s *stubOutbox) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	return s.entry, nil
}

func (s *stubOutbox) ListForAggregate(ctx context.Context, aggregateID uuid.UUID) ([]models.OutboxEvent, error) {
	s.aggregate = aggregateID
	return nil, nil
}

func serveOutbox(pattern, target string, handler http.HandlerFunc) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Get(pattern, handler)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, target, nil))
	return resp
}

func TestOutboxDeadLettersFiltersByReason(t *testing.T) {
	store := &stubOutbox{}
	resp := serveOutbox("/dead-letters", "/dead-letters?reason=max_attempts&limit=10", OutboxDeadLetters(store, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if store.reason == nil || *store.reason != enums.OutboxDLQReasonMaxAttempts || store.limit != 10 {
		t.Fatalf("unexpected filter reason=%v limit=%d", store.reason, store.limit)
	}
	if !strings.Contains(resp.Body.String(), `"data":[]`) {
		t.Fatalf("expected empty array: %s", resp.Body.String())
	}
}

func TestOutboxDeadLettersRejectsUnknownReason(t *testing.T) {
	resp := serveOutbox("/dead-letters", "/dead-letters?reason=timeout", OutboxDeadLetters(&stubOutbox{}, nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	resp = serveOutbox("/dead-letters", "/dead-letters?limit=5000", OutboxDeadLetters(&stubOutbox{}, nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized limit got %d", resp.Code)
	}
}

func TestOutboxDeadLetterNotFound(t *testing.T) {
	resp := serveOutbox("/dead-letters/{eventId}", "/dead-letters/"+uuid.NewString(), OutboxDeadLetter(&stubOutbox{}, nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}

	eventID := uuid.New()
	store := &stubOutbox{entry: &models.OutboxDLQ{EventID: eventID, ErrorReason: enums.OutboxDLQReasonUnroutable}}
	resp = serveOutbox("/dead-letters/{eventId}", "/dead-letters/"+eventID.String(), OutboxDeadLetter(store, nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"unroutable"`) {
		t.Fatalf("unexpected response %d: %s", resp.Code, resp.Body.String())
	}
}

func TestOutboxAggregateEventsParsesID(t *testing.T) {
	store := &stubOutbox{}
	resp := serveOutbox("/aggregates/{id}/events", "/aggregates/not-a-uuid/events", OutboxAggregateEvents(store, nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}

	id := uuid.New()
	resp = serveOutbox("/aggregates/{id}/events", "/aggregates/"+id.String()+"/events", OutboxAggregateEvents(store, nil))
	if resp.Code != http.StatusOK || store.aggregate != id {
		t.Fatalf("unexpected response %d aggregate=%s", resp.Code, store.aggregate)
	}
}
