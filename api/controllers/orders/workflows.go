package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/api/controllers/actorctx"
	"github.com/angelmondragon/orderflow-backend/api/responses"
	"github.com/angelmondragon/orderflow-backend/api/validators"
	"github.com/angelmondragon/orderflow-backend/internal/disputes"
	internalorders "github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/refunds"
	"github.com/angelmondragon/orderflow-backend/internal/returns"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

type ReturnService interface {
	Request(ctx context.Context, code string, actor internalorders.Actor, input returns.RequestInput) (internalorders.Result, error)
	Approve(ctx context.Context, code string, actor internalorders.Actor, input returns.ApproveInput) (internalorders.Result, error)
	Reject(ctx context.Context, code string, actor internalorders.Actor, reason string) (internalorders.Result, error)
	Received(ctx context.Context, code string, actor internalorders.Actor) (internalorders.Result, error)
	ListForShop(ctx context.Context, actor internalorders.Actor, status string, params pagination.Params) (pagination.Page[returns.View], error)
}

type RefundService interface {
	Request(ctx context.Context, code string, actor internalorders.Actor, reason string) (internalorders.Result, error)
	Approve(ctx context.Context, code string, actor internalorders.Actor, note string) (internalorders.Result, error)
	Reject(ctx context.Context, code string, actor internalorders.Actor, note string) (internalorders.Result, error)
	Manual(ctx context.Context, code string, actor internalorders.Actor, ref, note string) (internalorders.Result, error)
	ListForShop(ctx context.Context, actor internalorders.Actor, status string, params pagination.Params) (pagination.Page[refunds.View], error)
	ListAll(ctx context.Context, actor internalorders.Actor, status string, params pagination.Params) (pagination.Page[refunds.View], error)
}

type DisputeService interface {
	Open(ctx context.Context, code string, actor internalorders.Actor, input disputes.OpenInput) (internalorders.Result, error)
	Respond(ctx context.Context, code string, actor internalorders.Actor, response string) (disputes.View, error)
	Review(ctx context.Context, id uuid.UUID, actor internalorders.Actor) (disputes.View, error)
	Resolve(ctx context.Context, id uuid.UUID, actor internalorders.Actor, input disputes.ResolveInput) (disputes.View, error)
	RequestRevision(ctx context.Context, code string, actor internalorders.Actor, message string) (disputes.View, error)
	ListForShop(ctx context.Context, actor internalorders.Actor, status string, params pagination.Params) (pagination.Page[disputes.View], error)
	ListAll(ctx context.Context, actor internalorders.Actor, status string, params pagination.Params) (pagination.Page[disputes.View], error)
}

// ReturnRequest lets the buyer ask to send a delivered order back.
func ReturnRequest(scoper actorctx.Scoper, svc ReturnService, logg *logger.Logger) http.HandlerFunc {
	return onOrder(scoper, logg, http.StatusCreated, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		var req returnRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Request(r.Context(), code, actor, returns.RequestInput{
			Reason:       validators.SanitizeString(req.Reason, freeTextLimit),
			EvidenceURLs: req.EvidenceURLs,
		})
	})
}

func ReturnApprove(scoper actorctx.Scoper, svc ReturnService, logg *logger.Logger) http.HandlerFunc {
	return onOrder(scoper, logg, http.StatusOK, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		var req returnApproveRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Approve(r.Context(), code, actor, returns.ApproveInput{
			Resolution:    enums.ReturnResolution(strings.ToUpper(strings.TrimSpace(req.Resolution))),
			ShippingPayer: enums.ShippingPayer(strings.ToUpper(strings.TrimSpace(req.ShippingPayer))),
			RestockingFee: req.RestockingFee,
			RefundAmount:  req.RefundAmount,
			Note:          validators.SanitizeString(req.Note, freeTextLimit),
		})
	})
}

func ReturnReject(scoper actorctx.Scoper, svc ReturnService, logg *logger.Logger) http.HandlerFunc {
	return onOrder(scoper, logg, http.StatusOK, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		var req reasonRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Reject(r.Context(), code, actor, req.text())
	})
}

// ReturnReceived confirms the goods are back and settles the refund.
func ReturnReceived(scoper actorctx.Scoper, svc ReturnService, logg *logger.Logger) http.HandlerFunc {
	return onOrder(scoper, logg, http.StatusOK, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		return svc.Received(r.Context(), code, actor)
	})
}

func ReturnList(scoper actorctx.Scoper, svc ReturnService, logg *logger.Logger) http.HandlerFunc {
	return listWorkflow(scoper, logg, func(r *http.Request, actor internalorders.Actor, status string, params pagination.Params) (any, error) {
		return svc.ListForShop(r.Context(), actor, status, params)
	})
}

// RefundRequest opens a refund-only request without returning goods.
func RefundRequest(scoper actorctx.Scoper, svc RefundService, logg *logger.Logger) http.HandlerFunc {
	return onOrder(scoper, logg, http.StatusCreated, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		var req reasonRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Request(r.Context(), code, actor, req.text())
	})
}

func RefundApprove(scoper actorctx.Scoper, svc RefundService, logg *logger.Logger) http.HandlerFunc {
	return onOrder(scoper, logg, http.StatusOK, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		var req noteRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Approve(r.Context(), code, actor, req.text())
	})
}

func RefundReject(scoper actorctx.Scoper, svc RefundService, logg *logger.Logger) http.HandlerFunc {
	return onOrder(scoper, logg, http.StatusOK, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		var req noteRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Reject(r.Context(), code, actor, req.text())
	})
}

// RefundManual records a refund settled outside the payment ledger.
func RefundManual(scoper actorctx.Scoper, svc RefundService, logg *logger.Logger) http.HandlerFunc {
	return onOrder(scoper, logg, http.StatusOK, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		var req manualRefundRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Manual(r.Context(), code, actor, strings.TrimSpace(req.Ref), validators.SanitizeString(req.Note, freeTextLimit))
	})
}

func RefundListForShop(scoper actorctx.Scoper, svc RefundService, logg *logger.Logger) http.HandlerFunc {
	return listWorkflow(scoper, logg, func(r *http.Request, actor internalorders.Actor, status string, params pagination.Params) (any, error) {
		return svc.ListForShop(r.Context(), actor, status, params)
	})
}

func RefundListAll(scoper actorctx.Scoper, svc RefundService, logg *logger.Logger) http.HandlerFunc {
	return listWorkflow(scoper, logg, func(r *http.Request, actor internalorders.Actor, status string, params pagination.Params) (any, error) {
		return svc.ListAll(r.Context(), actor, status, params)
	})
}

func DisputeOpen(scoper actorctx.Scoper, svc DisputeService, logg *logger.Logger) http.HandlerFunc {
	return onOrder(scoper, logg, http.StatusCreated, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		var req disputeOpenRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Open(r.Context(), code, actor, disputes.OpenInput{Type: req.Type, Message: req.Message})
	})
}

func DisputeRespond(scoper actorctx.Scoper, svc DisputeService, logg *logger.Logger) http.HandlerFunc {
	return onOrder(scoper, logg, http.StatusOK, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		var req disputeRespondRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Respond(r.Context(), code, actor, req.Response)
	})
}

// DisputeRevision asks the buyer's dispute to be reopened after a response.
func DisputeRevision(scoper actorctx.Scoper, svc DisputeService, logg *logger.Logger) http.HandlerFunc {
	return onOrder(scoper, logg, http.StatusOK, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		var req disputeRevisionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.RequestRevision(r.Context(), code, actor, req.Message)
	})
}

func DisputeReview(scoper actorctx.Scoper, svc DisputeService, logg *logger.Logger) http.HandlerFunc {
	return onDispute(scoper, logg, func(r *http.Request, id uuid.UUID, actor internalorders.Actor) (any, error) {
		return svc.Review(r.Context(), id, actor)
	})
}

func DisputeResolve(scoper actorctx.Scoper, svc DisputeService, logg *logger.Logger) http.HandlerFunc {
	return onDispute(scoper, logg, func(r *http.Request, id uuid.UUID, actor internalorders.Actor) (any, error) {
		var req disputeResolveRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Resolve(r.Context(), id, actor, disputes.ResolveInput{
			Decision:      enums.DisputeStatus(strings.ToUpper(strings.TrimSpace(req.Decision))),
			Resolution:    req.Resolution,
			ApproveRefund: req.ApproveRefund,
		})
	})
}

func DisputeListForShop(scoper actorctx.Scoper, svc DisputeService, logg *logger.Logger) http.HandlerFunc {
	return listWorkflow(scoper, logg, func(r *http.Request, actor internalorders.Actor, status string, params pagination.Params) (any, error) {
		return svc.ListForShop(r.Context(), actor, status, params)
	})
}

func DisputeListAll(scoper actorctx.Scoper, svc DisputeService, logg *logger.Logger) http.HandlerFunc {
	return listWorkflow(scoper, logg, func(r *http.Request, actor internalorders.Actor, status string, params pagination.Params) (any, error) {
		return svc.ListAll(r.Context(), actor, status, params)
	})
}

func onDispute(scoper actorctx.Scoper, logg *logger.Logger, fn func(r *http.Request, id uuid.UUID, actor internalorders.Actor) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorctx.ResolveActor(r, scoper)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := actorctx.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := fn(r, id, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

type workflowLister func(r *http.Request, actor internalorders.Actor, status string, params pagination.Params) (any, error)

func listWorkflow(scoper actorctx.Scoper, logg *logger.Logger, fn workflowLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorctx.ResolveActor(r, scoper)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))
		page, err := fn(r, actor, status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
