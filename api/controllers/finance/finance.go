package finance

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/api/controllers/actorctx"
	"github.com/angelmondragon/orderflow-backend/api/responses"
	"github.com/angelmondragon/orderflow-backend/api/validators"
	internalfinance "github.com/angelmondragon/orderflow-backend/internal/finance"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

// Service is the slice of the finance service exposed over HTTP.
type Service interface {
	Summary(ctx context.Context, shopID uuid.UUID, from, to time.Time) (internalfinance.Summary, error)
	GetPayoutAccount(ctx context.Context, shopID uuid.UUID) (*models.PayoutAccount, error)
	UpsertPayoutAccount(ctx context.Context, shopID uuid.UUID, in internalfinance.AccountInput) (*models.PayoutAccount, error)
	RequestPayout(ctx context.Context, shopID uuid.UUID, amount int64, key string) (internalfinance.PayoutResult, error)
	MarkPayoutPaid(ctx context.Context, id, adminID uuid.UUID, note string) (*models.Payout, error)
	RejectPayout(ctx context.Context, id, adminID uuid.UUID, note string) (*models.Payout, error)
	ListPayouts(ctx context.Context, shopID *uuid.UUID, status *enums.PayoutStatus, params pagination.Params) (pagination.Page[models.Payout], error)
}

type payoutRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type decisionRequest struct {
	Note string `json:"note,omitempty" validate:"omitempty,max=1000"`
}

// Summary reports the shop's revenue, refunds and payout balance for a window.
func Summary(scoper actorctx.Scoper, svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := resolveShop(r, scoper)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		from, err := validators.ParseQueryTime(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryTime(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summary(r.Context(), shopID, from, to)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

func GetPayoutAccount(scoper actorctx.Scoper, svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := resolveShop(r, scoper)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		account, err := svc.GetPayoutAccount(r.Context(), shopID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, account)
	}
}

func UpsertPayoutAccount(scoper actorctx.Scoper, svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := resolveShop(r, scoper)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var in internalfinance.AccountInput
		if err := validators.DecodeJSONBody(r, &in); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		account, err := svc.UpsertPayoutAccount(r.Context(), shopID, in)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, account)
	}
}

// RequestPayout reserves part of the available balance. The Idempotency-Key
// header is mandatory and is persisted by the finance service.
func RequestPayout(scoper actorctx.Scoper, svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := resolveShop(r, scoper)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if key == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
			return
		}
		var req payoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.RequestPayout(r.Context(), shopID, req.Amount, key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.Replayed {
			w.Header().Set("X-Idempotent-Replay", "true")
			responses.WriteSuccess(w, result)
			return
		}
		responses.WriteCreated(w, result)
	}
}

// ListPayouts pages payouts. Sellers see their shop only; staff may filter by
// shop_id or see every shop.
func ListPayouts(scoper actorctx.Scoper, svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorctx.ResolveActor(r, scoper)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shopID := actor.ShopID
		if actor.Role.IsStaff() {
			if shopID, err = validators.ParseQueryUUID(r, "shop_id"); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		} else if shopID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "shop context required"))
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var status *enums.PayoutStatus
		if raw := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))); raw != "" {
			parsed := enums.PayoutStatus(raw)
			if !parsed.IsValid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid payout status"))
				return
			}
			status = &parsed
		}
		page, err := svc.ListPayouts(r.Context(), shopID, status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func MarkPayoutPaid(svc Service, logg *logger.Logger) http.HandlerFunc {
	return decide(logg, func(ctx context.Context, id, adminID uuid.UUID, note string) (*models.Payout, error) {
		return svc.MarkPayoutPaid(ctx, id, adminID, note)
	})
}

func RejectPayout(svc Service, logg *logger.Logger) http.HandlerFunc {
	return decide(logg, func(ctx context.Context, id, adminID uuid.UUID, note string) (*models.Payout, error) {
		return svc.RejectPayout(ctx, id, adminID, note)
	})
}

func decide(logg *logger.Logger, fn func(ctx context.Context, id, adminID uuid.UUID, note string) (*models.Payout, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := actorctx.ResolveUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := actorctx.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req decisionRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payout, err := fn(r.Context(), id, adminID, validators.SanitizeString(req.Note, 1000))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payout)
	}
}

func resolveShop(r *http.Request, scoper actorctx.Scoper) (uuid.UUID, error) {
	actor, err := actorctx.ResolveActor(r, scoper)
	if err != nil {
		return uuid.Nil, err
	}
	if actor.ShopID != nil {
		return *actor.ShopID, nil
	}
	if !actor.Role.IsStaff() {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "shop context required")
	}
	shopID, err := validators.ParseQueryUUID(r, "shop_id")
	if err != nil {
		return uuid.Nil, err
	}
	if shopID == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "shop_id is required for staff").WithDetails(map[string]any{"field": "shop_id"})
	}
	return *shopID, nil
}
