package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/api/controllers/actorctx"
	"github.com/angelmondragon/orderflow-backend/api/responses"
	"github.com/angelmondragon/orderflow-backend/api/validators"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

const maxDeadLettersListed = 200

// DeadLetterReader is the read side of the outbox DLQ.
type DeadLetterReader interface {
	List(ctx context.Context, reason *enums.OutboxDLQErrorReason, limit int) ([]models.OutboxDLQ, error)
	FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error)
}

// OutboxEventReader lists the outbox history of one aggregate.
type OutboxEventReader interface {
	ListForAggregate(ctx context.Context, aggregateID uuid.UUID) ([]models.OutboxEvent, error)
}

// OutboxDeadLetters lists the newest dead letters. ?reason narrows to one
// outbox_dlq_error_reason_enum value.
func OutboxDeadLetters(store DeadLetterReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, maxDeadLettersListed)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var reason *enums.OutboxDLQErrorReason
		if raw := strings.TrimSpace(r.URL.Query().Get("reason")); raw != "" {
			parsed, err := enums.ParseOutboxDLQErrorReason(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reason"))
				return
			}
			reason = &parsed
		}
		rows, err := store.List(r.Context(), reason, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if rows == nil {
			rows = []models.OutboxDLQ{}
		}
		responses.WriteSuccess(w, rows)
	}
}

func OutboxDeadLetter(store DeadLetterReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := actorctx.PathUUID(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entry, err := store.FindByEventID(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if entry == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found"))
			return
		}
		responses.WriteSuccess(w, entry)
	}
}

// OutboxAggregateEvents shows every outbox row written for one aggregate,
// oldest first, published or not.
func OutboxAggregateEvents(store OutboxEventReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		aggregateID, err := actorctx.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := store.ListForAggregate(r.Context(), aggregateID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if rows == nil {
			rows = []models.OutboxEvent{}
		}
		responses.WriteSuccess(w, rows)
	}
}
