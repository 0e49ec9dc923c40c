package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// Result is returned by every order mutation.
type Result struct {
	Code         string                `json:"code"`
	Status       enums.OrderStatus     `json:"status"`
	PaymentState *enums.PaymentStatus  `json:"payment_status,omitempty"`
	RefundStatus *enums.RefundStatus   `json:"refund_status,omitempty"`
	RefundError  string                `json:"refund_error,omitempty"`
	TrackingCode string                `json:"tracking_code,omitempty"`
	Shipment     *enums.ShipmentStatus `json:"shipment_status,omitempty"`
}

func resultOf(order *models.Order, outcome *Outcome) Result {
	res := Result{Code: order.Code, Status: order.Status}
	if outcome != nil && outcome.Record != nil {
		status := outcome.Record.Status
		res.RefundStatus = &status
		if outcome.Record.FailReason != nil {
			res.RefundError = *outcome.Record.FailReason
		}
	}
	return res
}

// ItemView is one order line.
type ItemView struct {
	ProductID uuid.UUID `json:"product_id"`
	VariantID uuid.UUID `json:"variant_id"`
	Name      string    `json:"name"`
	UnitPrice int64     `json:"unit_price"`
	Qty       int       `json:"qty"`
	LineTotal int64     `json:"line_total"`
}

// Summary is the list representation of an order.
type Summary struct {
	ID            uuid.UUID           `json:"id"`
	Code          string              `json:"code"`
	ShopID        uuid.UUID           `json:"shop_id"`
	UserID        uuid.UUID           `json:"user_id"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Subtotal      int64               `json:"subtotal"`
	ShippingFee   int64               `json:"shipping_fee"`
	Discount      int64               `json:"discount"`
	Total         int64               `json:"total"`
	ItemCount     int                 `json:"item_count"`
	Items         []ItemView          `json:"items"`
	CreatedAt     time.Time           `json:"created_at"`
}

// List is a page of summaries.
type List struct {
	Orders     []Summary `json:"orders"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type PaymentView struct {
	Method      enums.PaymentMethod   `json:"method"`
	Status      enums.PaymentStatus   `json:"status"`
	Amount      int64                 `json:"amount"`
	Provider    enums.PaymentProvider `json:"provider"`
	ProviderRef *string               `json:"provider_ref,omitempty"`
	PaidAt      *time.Time            `json:"paid_at,omitempty"`
	RefundedAt  *time.Time            `json:"refunded_at,omitempty"`
}

type ShipmentEventView struct {
	Status    enums.ShipmentStatus `json:"status"`
	Message   *string              `json:"message,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

type ShipmentView struct {
	Carrier      string               `json:"carrier"`
	TrackingCode string               `json:"tracking_code"`
	Status       enums.ShipmentStatus `json:"status"`
	ShippedAt    *time.Time           `json:"shipped_at,omitempty"`
	DeliveredAt  *time.Time           `json:"delivered_at,omitempty"`
	Events       []ShipmentEventView  `json:"events"`
}

type CancelRequestView struct {
	Reason         string                    `json:"reason"`
	Status         enums.CancelRequestStatus `json:"status"`
	PreviousStatus enums.OrderStatus         `json:"previous_status"`
	DecisionNote   *string                   `json:"decision_note,omitempty"`
	ResolvedAt     *time.Time                `json:"resolved_at,omitempty"`
}

type ReturnRequestView struct {
	Reason        string                    `json:"reason"`
	EvidenceURLs  []string                  `json:"evidence_urls"`
	Status        enums.ReturnRequestStatus `json:"status"`
	Resolution    *enums.ReturnResolution   `json:"resolution,omitempty"`
	ShippingPayer *enums.ShippingPayer      `json:"shipping_payer,omitempty"`
	RestockingFee int64                     `json:"restocking_fee"`
	RefundAmount  *int64                    `json:"refund_amount,omitempty"`
	DecisionNote  *string                   `json:"decision_note,omitempty"`
}

type RefundView struct {
	Amount       int64                  `json:"amount"`
	Reason       *string                `json:"reason,omitempty"`
	Status       enums.RefundStatus     `json:"status"`
	Provider     *enums.PaymentProvider `json:"provider,omitempty"`
	ProviderRef  *string                `json:"provider_ref,omitempty"`
	FailReason   *string                `json:"fail_reason,omitempty"`
	DecisionNote *string                `json:"decision_note,omitempty"`
	ProcessedAt  *time.Time             `json:"processed_at,omitempty"`
}

type DisputeView struct {
	ID             uuid.UUID           `json:"id"`
	Type           enums.DisputeType   `json:"type"`
	Message        string              `json:"message"`
	Status         enums.DisputeStatus `json:"status"`
	SellerResponse *string             `json:"seller_response,omitempty"`
	Resolution     *string             `json:"resolution,omitempty"`
	EditCount      int                 `json:"edit_count"`
}

// Detail is the full single-order representation.
type Detail struct {
	Summary
	Note          *string                 `json:"note,omitempty"`
	VoucherCode   *string                 `json:"voucher_code,omitempty"`
	Shipping      models.ShippingSnapshot `json:"shipping"`
	Payment       *PaymentView            `json:"payment,omitempty"`
	Shipment      *ShipmentView           `json:"shipment,omitempty"`
	CancelRequest *CancelRequestView      `json:"cancel_request,omitempty"`
	ReturnRequest *ReturnRequestView      `json:"return_request,omitempty"`
	Refund        *RefundView             `json:"refund,omitempty"`
	Dispute       *DisputeView            `json:"dispute,omitempty"`
	Actions       []Action                `json:"actions"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// Tracking is the buyer-facing shipment timeline.
type Tracking struct {
	Code     string            `json:"code"`
	Status   enums.OrderStatus `json:"status"`
	Shipment *ShipmentView     `json:"shipment,omitempty"`
}

// Invoice is a printable snapshot of the order.
type Invoice struct {
	Number        string                  `json:"invoice_number"`
	Code          string                  `json:"code"`
	IssuedAt      time.Time               `json:"issued_at"`
	Status        enums.OrderStatus       `json:"status"`
	BillTo        models.ShippingSnapshot `json:"bill_to"`
	Items         []ItemView              `json:"items"`
	Subtotal      int64                   `json:"subtotal"`
	ShippingFee   int64                   `json:"shipping_fee"`
	Discount      int64                   `json:"discount"`
	Total         int64                   `json:"total"`
	PaymentMethod enums.PaymentMethod     `json:"payment_method"`
	PaymentStatus *enums.PaymentStatus    `json:"payment_status,omitempty"`
	Currency      string                  `json:"currency"`
}

func invoiceNumber(code string) string {
	return fmt.Sprintf("INV-%s", code)
}

func summaryOf(order models.Order) Summary {
	items := make([]ItemView, 0, len(order.Items))
	count := 0
	for _, item := range order.Items {
		items = append(items, ItemView{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Qty:       item.Qty,
			LineTotal: item.LineTotal,
		})
		count += item.Qty
	}
	return Summary{
		ID:            order.ID,
		Code:          order.Code,
		ShopID:        order.ShopID,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		Subtotal:      order.Subtotal,
		ShippingFee:   order.ShippingFee,
		Discount:      order.Discount,
		Total:         order.Total,
		ItemCount:     count,
		Items:         items,
		CreatedAt:     order.CreatedAt,
	}
}

func shipmentOf(shipment *models.Shipment) *ShipmentView {
	if shipment == nil {
		return nil
	}
	events := make([]ShipmentEventView, 0, len(shipment.Events))
	for _, event := range shipment.Events {
		events = append(events, ShipmentEventView{Status: event.Status, Message: event.Message, CreatedAt: event.CreatedAt})
	}
	return &ShipmentView{
		Carrier:      shipment.Carrier,
		TrackingCode: shipment.TrackingCode,
		Status:       shipment.Status,
		ShippedAt:    shipment.ShippedAt,
		DeliveredAt:  shipment.DeliveredAt,
		Events:       events,
	}
}

func detailOf(order models.Order, role enums.Role) Detail {
	detail := Detail{
		Summary:     summaryOf(order),
		Note:        order.Note,
		VoucherCode: order.VoucherCode,
		Shipping:    order.Shipping,
		Shipment:    shipmentOf(order.Shipment),
		Actions:     Allowed(order.Status, role),
		UpdatedAt:   order.UpdatedAt,
	}
	if detail.Actions == nil {
		detail.Actions = []Action{}
	}
	if p := order.Payment; p != nil {
		detail.Payment = &PaymentView{
			Method:      p.Method,
			Status:      p.Status,
			Amount:      p.Amount,
			Provider:    p.Provider,
			ProviderRef: p.ProviderRef,
			PaidAt:      p.PaidAt,
			RefundedAt:  p.RefundedAt,
		}
	}
	if c := order.CancelRequest; c != nil {
		detail.CancelRequest = &CancelRequestView{
			Reason:         c.Reason,
			Status:         c.Status,
			PreviousStatus: c.PreviousStatus,
			DecisionNote:   c.DecisionNote,
			ResolvedAt:     c.ResolvedAt,
		}
	}
	if r := order.ReturnRequest; r != nil {
		evidence := r.EvidenceURLs
		if evidence == nil {
			evidence = []string{}
		}
		detail.ReturnRequest = &ReturnRequestView{
			Reason:        r.Reason,
			EvidenceURLs:  evidence,
			Status:        r.Status,
			Resolution:    r.Resolution,
			ShippingPayer: r.ShippingPayer,
			RestockingFee: r.RestockingFee,
			RefundAmount:  r.RefundAmount,
			DecisionNote:  r.DecisionNote,
		}
	}
	if r := order.Refund; r != nil {
		detail.Refund = &RefundView{
			Amount:       r.Amount,
			Reason:       r.Reason,
			Status:       r.Status,
			Provider:     r.Provider,
			ProviderRef:  r.ProviderRef,
			FailReason:   r.FailReason,
			DecisionNote: r.DecisionNote,
			ProcessedAt:  r.ProcessedAt,
		}
	}
	if d := order.Dispute; d != nil {
		detail.Dispute = &DisputeView{
			ID:             d.ID,
			Type:           d.Type,
			Message:        d.Message,
			Status:         d.Status,
			SellerResponse: d.SellerResponse,
			Resolution:     d.Resolution,
			EditCount:      d.EditCount,
		}
	}
	return detail
}
