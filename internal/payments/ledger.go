package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

const ReasonNothingToRefund = "nothing to refund"

// RefundResult is the typed outcome of a refund attempt. OK=false never
// mutates the payment.
type RefundResult struct {
	OK          bool
	Reason      string
	ProviderRef string
	PaymentID   uuid.UUID
}

// CaptureResult reports whether a deferred capture happened. Captured=false
// with OK=true means the payment was already collected.
type CaptureResult struct {
	OK        bool
	Captured  bool
	Reason    string
	PaymentID uuid.UUID
}

// Ledger keeps exactly one payment value per order.
type Ledger struct {
	db      *gorm.DB
	gateway Gateway
	logg    *logger.Logger
	now     func() time.Time
}

func NewLedger(db *gorm.DB, gateway Gateway, logg *logger.Logger) *Ledger {
	if gateway == nil {
		gateway = NewMockGateway()
	}
	return &Ledger{db: db, gateway: gateway, logg: logg, now: time.Now}
}

// Create records the order's payment, replacing any previous value. Methods
// that capture at creation go through the gateway; a gateway failure is
// stored as a FAILED payment rather than returned as an error.
func (l *Ledger) Create(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, method enums.PaymentMethod, amount int64) (*models.Payment, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if amount < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be non-negative")
	}

	payment := models.Payment{
		OrderID:  orderID,
		Method:   method,
		Status:   enums.PaymentStatusUnpaid,
		Amount:   amount,
		Provider: providerFor(method),
	}
	if method.CapturesAtCreation() {
		ref, err := l.gateway.Capture(ctx, CaptureRequest{OrderID: orderID, Method: method, Amount: amount})
		if err != nil {
			l.warn(ctx, orderID, "payment capture failed", err)
			payment.Status = enums.PaymentStatusFailed
		} else {
			paidAt := l.now().UTC()
			payment.Status = enums.PaymentStatusCaptured
			payment.ProviderRef = &ref
			payment.PaidAt = &paidAt
		}
	}

	var existing models.Payment
	err := tx.WithContext(ctx).Where("order_id = ?", orderID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
		}
		return &payment, nil
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	payment.ID = existing.ID
	payment.CreatedAt = existing.CreatedAt
	if err := tx.WithContext(ctx).Model(&existing).Updates(map[string]any{
		"method":       payment.Method,
		"status":       payment.Status,
		"amount":       payment.Amount,
		"provider":     payment.Provider,
		"provider_ref": payment.ProviderRef,
		"paid_at":      payment.PaidAt,
		"refunded_at":  nil,
	}).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace payment")
	}
	return &payment, nil
}

// Refund returns up to the captured amount. Without a CAPTURED payment the
// result is {OK:false, Reason:"nothing to refund"} and nothing changes.
func (l *Ledger) Refund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, amount int64) (RefundResult, error) {
	if tx == nil {
		return RefundResult{}, errors.New("transaction required")
	}
	if amount < 0 {
		return RefundResult{}, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be non-negative")
	}
	payment, err := l.find(ctx, tx, orderID)
	if err != nil {
		return RefundResult{}, err
	}
	if payment == nil || payment.Status != enums.PaymentStatusCaptured {
		return RefundResult{OK: false, Reason: ReasonNothingToRefund}, nil
	}
	if amount > payment.Amount {
		return RefundResult{OK: false, Reason: "amount exceeds captured payment", PaymentID: payment.ID}, nil
	}
	if amount == 0 {
		// nothing moves; the payment stays captured
		return RefundResult{OK: true, PaymentID: payment.ID}, nil
	}

	paymentRef := ""
	if payment.ProviderRef != nil {
		paymentRef = *payment.ProviderRef
	}
	ref, gwErr := l.gateway.Refund(ctx, RefundRequest{
		OrderID:     orderID,
		PaymentRef:  paymentRef,
		Amount:      amount,
		CapturedFor: payment.Amount,
	})
	if gwErr != nil {
		l.warn(ctx, orderID, "refund declined by gateway", gwErr)
		return RefundResult{OK: false, Reason: gwErr.Error(), PaymentID: payment.ID}, nil
	}

	refundedAt := l.now().UTC()
	res := tx.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, enums.PaymentStatusCaptured).
		Updates(map[string]any{
			"status":       enums.PaymentStatusRefunded,
			"provider_ref": ref,
			"refunded_at":  refundedAt,
		})
	if res.Error != nil {
		return RefundResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark payment refunded")
	}
	if res.RowsAffected == 0 {
		return RefundResult{OK: false, Reason: ReasonNothingToRefund, PaymentID: payment.ID}, nil
	}
	return RefundResult{OK: true, ProviderRef: ref, PaymentID: payment.ID}, nil
}

// CaptureCODIfNeeded promotes an UNPAID or AUTHORIZED cash-on-delivery
// payment to CAPTURED. Repeated calls are no-ops.
func (l *Ledger) CaptureCODIfNeeded(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (CaptureResult, error) {
	if tx == nil {
		return CaptureResult{}, errors.New("transaction required")
	}
	payment, err := l.find(ctx, tx, orderID)
	if err != nil {
		return CaptureResult{}, err
	}
	if payment == nil {
		return CaptureResult{OK: false, Reason: "no payment recorded"}, nil
	}
	if payment.Method != enums.PaymentMethodCOD {
		return CaptureResult{OK: false, Reason: "not a cash on delivery payment", PaymentID: payment.ID}, nil
	}
	switch payment.Status {
	case enums.PaymentStatusCaptured, enums.PaymentStatusRefunded:
		return CaptureResult{OK: true, Captured: false, PaymentID: payment.ID}, nil
	case enums.PaymentStatusUnpaid, enums.PaymentStatusAuthorized:
	default:
		return CaptureResult{OK: false, Reason: "payment status " + string(payment.Status) + " cannot be captured", PaymentID: payment.ID}, nil
	}

	ref := ""
	if payment.ProviderRef != nil && *payment.ProviderRef != "" {
		ref = *payment.ProviderRef
	} else {
		minted, gwErr := l.gateway.Capture(ctx, CaptureRequest{OrderID: orderID, Method: payment.Method, Amount: payment.Amount})
		if gwErr != nil {
			l.warn(ctx, orderID, "cod capture declined by gateway", gwErr)
			return CaptureResult{OK: false, Reason: gwErr.Error(), PaymentID: payment.ID}, nil
		}
		ref = minted
	}

	res := tx.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status IN ?", payment.ID, []enums.PaymentStatus{enums.PaymentStatusUnpaid, enums.PaymentStatusAuthorized}).
		Updates(map[string]any{
			"status":       enums.PaymentStatusCaptured,
			"provider_ref": ref,
			"paid_at":      l.now().UTC(),
		})
	if res.Error != nil {
		return CaptureResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "capture cod payment")
	}
	return CaptureResult{OK: true, Captured: res.RowsAffected == 1, PaymentID: payment.ID}, nil
}

// RecordManualRefund marks a captured payment as refunded offline, e.g. cash
// handed back for a COD order. It returns false when nothing was captured.
func (l *Ledger) RecordManualRefund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, ref string) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	res := tx.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentStatusCaptured).
		Updates(map[string]any{
			"status":       enums.PaymentStatusRefunded,
			"provider":     enums.PaymentProviderManual,
			"provider_ref": ref,
			"refunded_at":  l.now().UTC(),
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "record manual refund")
	}
	return res.RowsAffected == 1, nil
}

// Latest returns the order's payment or nil when none was recorded.
func (l *Ledger) Latest(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	return l.find(ctx, l.db, orderID)
}

func (l *Ledger) find(ctx context.Context, conn *gorm.DB, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := conn.WithContext(ctx).Where("order_id = ?", orderID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return &payment, nil
}

func (l *Ledger) warn(ctx context.Context, orderID uuid.UUID, msg string, err error) {
	if l.logg == nil {
		return
	}
	logCtx := l.logg.WithFields(ctx, map[string]any{
		"order_id": orderID.String(),
		"reason":   err.Error(),
	})
	l.logg.Warn(logCtx, msg)
}

func providerFor(method enums.PaymentMethod) enums.PaymentProvider {
	if method == enums.PaymentMethodMockGateway {
		return enums.PaymentProviderMock
	}
	return enums.PaymentProviderInternal
}
