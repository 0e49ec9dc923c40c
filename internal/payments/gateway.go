package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
)

// CaptureRequest asks the gateway to collect funds for an order.
type CaptureRequest struct {
	OrderID uuid.UUID
	Method  enums.PaymentMethod
	Amount  int64
}

// RefundRequest asks the gateway to return funds of a captured payment.
type RefundRequest struct {
	OrderID     uuid.UUID
	PaymentRef  string
	Amount      int64
	CapturedFor int64
}

// Gateway moves money. Returned errors are business failures that the ledger
// turns into typed results; they never abort the caller's transaction.
type Gateway interface {
	Capture(ctx context.Context, req CaptureRequest) (string, error)
	Refund(ctx context.Context, req RefundRequest) (string, error)
}

// MockGateway always succeeds and mints opaque provider references.
type MockGateway struct {
	now func() time.Time
}

func NewMockGateway() *MockGateway {
	return &MockGateway{now: time.Now}
}

func (g *MockGateway) Capture(_ context.Context, req CaptureRequest) (string, error) {
	if req.Method == enums.PaymentMethodCOD {
		return g.reference("COD"), nil
	}
	return g.reference("PAY"), nil
}

func (g *MockGateway) Refund(context.Context, RefundRequest) (string, error) {
	return g.reference("REF"), nil
}

func (g *MockGateway) reference(prefix string) string {
	now := time.Now
	if g != nil && g.now != nil {
		now = g.now
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now().UnixMilli(), uuid.NewString()[:6])
}
