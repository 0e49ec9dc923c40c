package orders

import "github.com/angelmondragon/orderflow-backend/api/validators"

const freeTextLimit = 1000

type reasonRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

func (r reasonRequest) text() string { return validators.SanitizeString(r.Reason, freeTextLimit) }

type noteRequest struct {
	Note string `json:"note,omitempty" validate:"omitempty,max=1000"`
}

func (r noteRequest) text() string { return validators.SanitizeString(r.Note, freeTextLimit) }

type createShipmentRequest struct {
	Carrier string `json:"carrier" validate:"required,max=64"`
}

type updateShipmentRequest struct {
	Status  string `json:"status" validate:"required"`
	Message string `json:"message,omitempty" validate:"omitempty,max=500"`
}

type returnRequest struct {
	Reason       string   `json:"reason" validate:"required,max=1000"`
	EvidenceURLs []string `json:"evidence_urls,omitempty" validate:"omitempty,max=10,dive,url"`
}

type returnApproveRequest struct {
	Resolution    string `json:"resolution" validate:"required"`
	ShippingPayer string `json:"shipping_payer" validate:"required"`
	RestockingFee int64  `json:"restocking_fee,omitempty" validate:"min=0"`
	RefundAmount  *int64 `json:"refund_amount,omitempty" validate:"omitempty,min=0"`
	Note          string `json:"note,omitempty" validate:"omitempty,max=1000"`
}

type manualRefundRequest struct {
	Ref  string `json:"ref,omitempty" validate:"omitempty,max=64"`
	Note string `json:"note,omitempty" validate:"omitempty,max=1000"`
}

type disputeOpenRequest struct {
	Type    string `json:"type,omitempty" validate:"omitempty,max=32"`
	Message string `json:"message" validate:"required,max=2000"`
}

type disputeRespondRequest struct {
	Response string `json:"response" validate:"required,max=2000"`
}

type disputeRevisionRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

type disputeResolveRequest struct {
	Decision      string `json:"decision" validate:"required"`
	Resolution    string `json:"resolution" validate:"required,max=2000"`
	ApproveRefund bool   `json:"approve_refund,omitempty"`
}
