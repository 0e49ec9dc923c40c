package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/orderflow-backend/api/controllers/actorctx"
	"github.com/angelmondragon/orderflow-backend/api/validators"
	internalorders "github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

// Lifecycle drives the order through the state machine.
type Lifecycle interface {
	actorctx.Scoper
	Confirm(ctx context.Context, code string, actor internalorders.Actor) (internalorders.Result, error)
	Pack(ctx context.Context, code string, actor internalorders.Actor) (internalorders.Result, error)
	ConfirmReceived(ctx context.Context, code string, actor internalorders.Actor) (internalorders.Result, error)
	CreateShipment(ctx context.Context, code string, actor internalorders.Actor, carrier string) (internalorders.Result, error)
	UpdateShipment(ctx context.Context, code string, actor internalorders.Actor, update internalorders.ShipmentUpdate, override bool) (internalorders.Result, error)
	CancelRequest(ctx context.Context, code string, actor internalorders.Actor, reason string) (internalorders.Result, error)
	CancelApprove(ctx context.Context, code string, actor internalorders.Actor, note string) (internalorders.Result, error)
	CancelReject(ctx context.Context, code string, actor internalorders.Actor, note string) (internalorders.Result, error)
	Cancel(ctx context.Context, code string, actor internalorders.Actor, reason string) (internalorders.Result, error)
	ForceCancel(ctx context.Context, code string, actor internalorders.Actor, reason string) (internalorders.Result, error)
}

func Confirm(svc Lifecycle, logg *logger.Logger) http.HandlerFunc {
	return onOrder(svc, logg, http.StatusOK, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		return svc.Confirm(r.Context(), code, actor)
	})
}

func Pack(svc Lifecycle, logg *logger.Logger) http.HandlerFunc {
	return onOrder(svc, logg, http.StatusOK, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		return svc.Pack(r.Context(), code, actor)
	})
}

// ConfirmReceived completes a delivered order on the buyer's word.
func ConfirmReceived(svc Lifecycle, logg *logger.Logger) http.HandlerFunc {
	return onOrder(svc, logg, http.StatusOK, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		return svc.ConfirmReceived(r.Context(), code, actor)
	})
}

// CreateShipment books the carrier and moves the order to SHIPPED.
func CreateShipment(svc Lifecycle, logg *logger.Logger) http.HandlerFunc {
	return onOrder(svc, logg, http.StatusCreated, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		var req createShipmentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.CreateShipment(r.Context(), code, actor, strings.TrimSpace(req.Carrier))
	})
}

// UpdateShipment records a tracking event. override is only honoured for staff.
func UpdateShipment(svc Lifecycle, logg *logger.Logger, override bool) http.HandlerFunc {
	return onOrder(svc, logg, http.StatusOK, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		var req updateShipmentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		status, err := enums.ParseShipmentStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipment status")
		}
		update := internalorders.ShipmentUpdate{Status: status, Message: validators.SanitizeString(req.Message, 500)}
		return svc.UpdateShipment(r.Context(), code, actor, update, override)
	})
}

func CancelRequest(svc Lifecycle, logg *logger.Logger) http.HandlerFunc {
	return onOrder(svc, logg, http.StatusOK, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		var req reasonRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.CancelRequest(r.Context(), code, actor, req.text())
	})
}

func CancelApprove(svc Lifecycle, logg *logger.Logger) http.HandlerFunc {
	return onOrder(svc, logg, http.StatusOK, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		var req noteRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.CancelApprove(r.Context(), code, actor, req.text())
	})
}

func CancelReject(svc Lifecycle, logg *logger.Logger) http.HandlerFunc {
	return onOrder(svc, logg, http.StatusOK, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		var req noteRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.CancelReject(r.Context(), code, actor, req.text())
	})
}

// Cancel is the seller's direct cancellation before shipping.
func Cancel(svc Lifecycle, logg *logger.Logger) http.HandlerFunc {
	return onOrder(svc, logg, http.StatusOK, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		var req reasonRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.Cancel(r.Context(), code, actor, req.text())
	})
}

func ForceCancel(svc Lifecycle, logg *logger.Logger) http.HandlerFunc {
	return onOrder(svc, logg, http.StatusOK, func(r *http.Request, code string, actor internalorders.Actor) (any, error) {
		var req reasonRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		return svc.ForceCancel(r.Context(), code, actor, req.text())
	})
}
