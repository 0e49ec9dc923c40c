package orders

import (
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// Action names an actor's intent against an order.
type Action string

const (
	ActionConfirm         Action = "confirm"
	ActionPack            Action = "pack"
	ActionShip            Action = "create_shipment"
	ActionDeliver         Action = "deliver"
	ActionConfirmReceived Action = "confirm_received"
	ActionCancelRequest   Action = "cancel_request"
	ActionCancelApprove   Action = "cancel_approve"
	ActionCancelReject    Action = "cancel_reject"
	ActionCancel          Action = "cancel"
	ActionForceCancel     Action = "force_cancel"
	ActionReturnRequest   Action = "return_request"
	ActionReturnApprove   Action = "return_approve"
	ActionReturnReject    Action = "return_reject"
	ActionReturnReceive   Action = "return_receive"
	ActionRefundRequest   Action = "refund_request"
	ActionRefundApprove   Action = "refund_approve"
	ActionRefundReject    Action = "refund_reject"
	ActionRefundManual    Action = "refund_manual"
	ActionDisputeOpen     Action = "dispute_open"
	ActionDisputeRefund   Action = "dispute_refund"
	ActionDisputeClose    Action = "dispute_close"
)

// Effect is a side effect the engine performs before moving the status.
type Effect uint8

const (
	EffectCaptureCOD Effect = 1 << iota
	EffectRefund
	EffectRestock
)

func (e Effect) Has(flag Effect) bool {
	return e&flag != 0
}

// Transition is one row of the state machine. Revert transitions move to a
// status stored on the side workflow row instead of a fixed To.
type Transition struct {
	From          []enums.OrderStatus
	Roles         []enums.Role
	Action        Action
	To            enums.OrderStatus
	Revert        bool
	Effects       Effect
	StayOnFailure bool
}

var (
	sellerSide = []enums.Role{enums.RoleSeller, enums.RoleAdmin}
	buyerSide  = []enums.Role{enums.RoleCustomer}
	staffOnly  = []enums.Role{enums.RoleAdmin}

	preShipment = []enums.OrderStatus{
		enums.OrderStatusPlaced,
		enums.OrderStatusPendingPayment,
		enums.OrderStatusConfirmed,
		enums.OrderStatusPacking,
	}
)

// transitions is the single source of truth for order status changes.
var transitions = []Transition{
	{Action: ActionConfirm, Roles: sellerSide, From: []enums.OrderStatus{enums.OrderStatusPlaced, enums.OrderStatusPendingPayment}, To: enums.OrderStatusConfirmed},
	{Action: ActionPack, Roles: sellerSide, From: []enums.OrderStatus{enums.OrderStatusConfirmed}, To: enums.OrderStatusPacking},
	{Action: ActionShip, Roles: sellerSide, From: []enums.OrderStatus{enums.OrderStatusPacking}, To: enums.OrderStatusShipped},
	{Action: ActionDeliver, Roles: sellerSide, From: []enums.OrderStatus{enums.OrderStatusShipped}, To: enums.OrderStatusDelivered, Effects: EffectCaptureCOD},
	{Action: ActionConfirmReceived, Roles: buyerSide, From: []enums.OrderStatus{enums.OrderStatusShipped, enums.OrderStatusDelivered}, To: enums.OrderStatusCompleted, Effects: EffectCaptureCOD},

	{Action: ActionCancelRequest, Roles: buyerSide, From: preShipment, To: enums.OrderStatusCancelRequested},
	{Action: ActionCancelApprove, Roles: sellerSide, From: []enums.OrderStatus{enums.OrderStatusCancelRequested}, To: enums.OrderStatusCancelled, Effects: EffectRefund | EffectRestock},
	{Action: ActionCancelReject, Roles: sellerSide, From: []enums.OrderStatus{enums.OrderStatusCancelRequested}, Revert: true},
	{Action: ActionCancel, Roles: []enums.Role{enums.RoleSeller}, From: preShipment, To: enums.OrderStatusCancelled, Effects: EffectRefund | EffectRestock},
	{Action: ActionForceCancel, Roles: staffOnly, From: append(append([]enums.OrderStatus{}, preShipment...), enums.OrderStatusCancelRequested, enums.OrderStatusShipped), To: enums.OrderStatusCancelled, Effects: EffectRefund | EffectRestock},

	{Action: ActionReturnRequest, Roles: buyerSide, From: []enums.OrderStatus{enums.OrderStatusDelivered}, To: enums.OrderStatusReturnRequested},
	{Action: ActionReturnApprove, Roles: sellerSide, From: []enums.OrderStatus{enums.OrderStatusReturnRequested}, To: enums.OrderStatusReturnApproved},
	{Action: ActionReturnReject, Roles: sellerSide, From: []enums.OrderStatus{enums.OrderStatusReturnRequested}, To: enums.OrderStatusReturnRejected},
	{Action: ActionReturnReceive, Roles: sellerSide, From: []enums.OrderStatus{enums.OrderStatusReturnApproved}, To: enums.OrderStatusReturnReceived, Effects: EffectCaptureCOD | EffectRefund | EffectRestock},

	{Action: ActionRefundRequest, Roles: buyerSide, From: []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusReturnRejected, enums.OrderStatusDisputed}, To: enums.OrderStatusRefundRequested},
	{Action: ActionRefundApprove, Roles: sellerSide, From: []enums.OrderStatus{enums.OrderStatusRefundRequested, enums.OrderStatusReturnReceived, enums.OrderStatusDisputed}, To: enums.OrderStatusRefunded, Effects: EffectCaptureCOD | EffectRefund, StayOnFailure: true},
	{Action: ActionRefundReject, Roles: sellerSide, From: []enums.OrderStatus{enums.OrderStatusRefundRequested, enums.OrderStatusDisputed}, Revert: true},
	{Action: ActionRefundManual, Roles: staffOnly, From: []enums.OrderStatus{enums.OrderStatusRefundRequested, enums.OrderStatusReturnReceived, enums.OrderStatusDisputed}, To: enums.OrderStatusRefunded},

	{Action: ActionDisputeOpen, Roles: buyerSide, From: []enums.OrderStatus{enums.OrderStatusShipped, enums.OrderStatusDelivered, enums.OrderStatusReturnRejected, enums.OrderStatusRefundRequested}, To: enums.OrderStatusDisputed},
	{Action: ActionDisputeRefund, Roles: staffOnly, From: []enums.OrderStatus{enums.OrderStatusDisputed, enums.OrderStatusRefundRequested}, To: enums.OrderStatusRefundRequested},
	{Action: ActionDisputeClose, Roles: staffOnly, From: []enums.OrderStatus{enums.OrderStatusDisputed}, Revert: true},
}

type transitionKey struct {
	status enums.OrderStatus
	role   enums.Role
	action Action
}

var (
	table       = map[transitionKey]Transition{}
	roleActions = map[enums.Role]map[Action]bool{}
)

func init() {
	for _, tr := range transitions {
		for _, role := range tr.Roles {
			if roleActions[role] == nil {
				roleActions[role] = map[Action]bool{}
			}
			roleActions[role][tr.Action] = true
			for _, from := range tr.From {
				key := transitionKey{status: from, role: role, action: tr.Action}
				if _, dup := table[key]; dup {
					panic("orders: duplicate transition " + string(from) + "/" + string(role) + "/" + string(tr.Action))
				}
				table[key] = tr
			}
		}
	}
}

// machineRole folds CS into ADMIN.
func machineRole(role enums.Role) enums.Role {
	if role == enums.RoleCS {
		return enums.RoleAdmin
	}
	return role
}

// Resolve looks up the transition for (status, role, action). Terminal
// statuses and disallowed source statuses are state conflicts; a role that
// never performs the action is forbidden.
func Resolve(status enums.OrderStatus, role enums.Role, action Action) (Transition, error) {
	if status.IsTerminal() {
		return Transition{}, pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s and accepts no further actions", status).
			WithDetails(map[string]any{"status": status, "action": action})
	}
	role = machineRole(role)
	if !roleActions[role][action] {
		return Transition{}, pkgerrors.Newf(pkgerrors.CodeForbidden, "role %s cannot %s orders", role, action)
	}
	tr, ok := table[transitionKey{status: status, role: role, action: action}]
	if !ok {
		return Transition{}, pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot %s an order in %s", action, status).
			WithDetails(map[string]any{"status": status, "action": action})
	}
	return tr, nil
}

// Allowed lists the actions the role may take from status.
func Allowed(status enums.OrderStatus, role enums.Role) []Action {
	if status.IsTerminal() {
		return nil
	}
	role = machineRole(role)
	var actions []Action
	for _, tr := range transitions {
		if _, ok := table[transitionKey{status: status, role: role, action: tr.Action}]; ok {
			actions = append(actions, tr.Action)
		}
	}
	return actions
}
