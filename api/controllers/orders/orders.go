package orders

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/orderflow-backend/api/controllers/actorctx"
	"github.com/angelmondragon/orderflow-backend/api/responses"
	"github.com/angelmondragon/orderflow-backend/api/validators"
	internalorders "github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

// OrderReader serves the order views shared by every role. Visibility is
// decided by the scoped actor.
type OrderReader interface {
	actorctx.Scoper
	List(ctx context.Context, actor internalorders.Actor, by internalorders.StatusFilter, params pagination.Params) (internalorders.List, error)
	Get(ctx context.Context, code string, actor internalorders.Actor) (internalorders.Detail, error)
	Tracking(ctx context.Context, code string, actor internalorders.Actor) (internalorders.Tracking, error)
	Invoice(ctx context.Context, code string, actor internalorders.Actor) (internalorders.Invoice, error)
}

type orderAction func(r *http.Request, code string, actor internalorders.Actor) (any, error)

// onOrder resolves the actor and the order code before running fn.
func onOrder(scoper actorctx.Scoper, logg *logger.Logger, status int, fn orderAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorctx.ResolveActor(r, scoper)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		code, err := actorctx.OrderCode(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := fn(r, code, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, out)
	}
}

// List returns the caller's orders newest first, optionally filtered by status.
func List(svc OrderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := actorctx.ResolveActor(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		by, err := parseStatusFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.List(r.Context(), actor, by, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func Detail(svc OrderReader, logg *logger.Logger) http.HandlerFunc {
	return onOrder(svc, logg, http.StatusOK, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		return svc.Get(r.Context(), code, actor)
	})
}

func Tracking(svc OrderReader, logg *logger.Logger) http.HandlerFunc {
	return onOrder(svc, logg, http.StatusOK, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		return svc.Tracking(r.Context(), code, actor)
	})
}

func Invoice(svc OrderReader, logg *logger.Logger) http.HandlerFunc {
	return onOrder(svc, logg, http.StatusOK, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		return svc.Invoice(r.Context(), code, actor)
	})
}

// parseStatusFilter reads ?status= and ?countable=true.
func parseStatusFilter(r *http.Request) (internalorders.StatusFilter, error) {
	var by internalorders.StatusFilter
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("countable")); raw != "" {
		countable, err := strconv.ParseBool(raw)
		if err != nil {
			return by, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid countable filter")
		}
		by.Countable = countable
	}
	raw := strings.TrimSpace(query.Get("status"))
	if raw == "" {
		return by, nil
	}
	status, err := enums.ParseOrderStatus(strings.ToUpper(raw))
	if err != nil {
		return by, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
	}
	by.Status = &status
	return by, nil
}
