package enums

import "fmt"

// CancelRequestStatus tracks a buyer's cancellation request.
type CancelRequestStatus string

const (
	CancelRequestRequested CancelRequestStatus = "REQUESTED"
	CancelRequestApproved  CancelRequestStatus = "APPROVED"
	CancelRequestRejected  CancelRequestStatus = "REJECTED"
)

// ReturnRequestStatus tracks a buyer's return request.
type ReturnRequestStatus string

const (
	ReturnRequestRequested ReturnRequestStatus = "REQUESTED"
	ReturnRequestApproved  ReturnRequestStatus = "APPROVED"
	ReturnRequestRejected  ReturnRequestStatus = "REJECTED"
	ReturnRequestReceived  ReturnRequestStatus = "RECEIVED"
)

// ReturnResolution records who is at fault for a return.
type ReturnResolution string

const (
	ReturnResolutionBuyerFault  ReturnResolution = "BUYER_FAULT"
	ReturnResolutionSellerFault ReturnResolution = "SELLER_FAULT"
)

func ParseReturnResolution(value string) (ReturnResolution, error) {
	switch ReturnResolution(value) {
	case ReturnResolutionBuyerFault, ReturnResolutionSellerFault:
		return ReturnResolution(value), nil
	}
	return "", fmt.Errorf("invalid return resolution %q", value)
}

// ShippingPayer records who bears the return shipping cost.
type ShippingPayer string

const (
	ShippingPayerBuyer  ShippingPayer = "BUYER"
	ShippingPayerSeller ShippingPayer = "SELLER"
)

func ParseShippingPayer(value string) (ShippingPayer, error) {
	switch ShippingPayer(value) {
	case ShippingPayerBuyer, ShippingPayerSeller:
		return ShippingPayer(value), nil
	}
	return "", fmt.Errorf("invalid shipping payer %q", value)
}

// RefundStatus tracks a refund record through approval and settlement.
type RefundStatus string

const (
	RefundStatusRequested  RefundStatus = "REQUESTED"
	RefundStatusApproved   RefundStatus = "APPROVED"
	RefundStatusProcessing RefundStatus = "PROCESSING"
	RefundStatusSuccess    RefundStatus = "SUCCESS"
	RefundStatusFailed     RefundStatus = "FAILED"
	RefundStatusRejected   RefundStatus = "REJECTED"
)

// IsOpen reports whether the refund still awaits a decision or settlement.
func (s RefundStatus) IsOpen() bool {
	switch s {
	case RefundStatusRequested, RefundStatusApproved, RefundStatusProcessing, RefundStatusFailed:
		return true
	}
	return false
}

// Settleable reports whether an approve action may (re)attempt settlement.
func (s RefundStatus) Settleable() bool {
	return s == RefundStatusRequested || s == RefundStatusApproved || s == RefundStatusFailed
}

// DisputeStatus tracks a dispute through admin review.
type DisputeStatus string

const (
	DisputeStatusOpen        DisputeStatus = "OPEN"
	DisputeStatusUnderReview DisputeStatus = "UNDER_REVIEW"
	DisputeStatusResolved    DisputeStatus = "RESOLVED"
	DisputeStatusRejected    DisputeStatus = "REJECTED"
)

// IsFinal reports whether an admin decision has been recorded.
func (s DisputeStatus) IsFinal() bool {
	return s == DisputeStatusResolved || s == DisputeStatusRejected
}

// DisputeType classifies the buyer's complaint.
type DisputeType string

const (
	DisputeTypeNotReceived    DisputeType = "NOT_RECEIVED"
	DisputeTypeNotAsDescribed DisputeType = "NOT_AS_DESCRIBED"
	DisputeTypeDamaged        DisputeType = "DAMAGED"
	DisputeTypeOther          DisputeType = "OTHER"
)

func ParseDisputeType(value string) (DisputeType, error) {
	switch DisputeType(value) {
	case DisputeTypeNotReceived, DisputeTypeNotAsDescribed, DisputeTypeDamaged, DisputeTypeOther:
		return DisputeType(value), nil
	}
	return "", fmt.Errorf("invalid dispute type %q", value)
}
