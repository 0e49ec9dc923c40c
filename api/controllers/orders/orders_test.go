package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/api/middleware"
	"github.com/angelmondragon/orderflow-backend/internal/disputes"
	internalorders "github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/refunds"
	"github.com/angelmondragon/orderflow-backend/internal/returns"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

type stubOrders struct {
	shopID    uuid.UUID
	calls     []string
	lastCode  string
	lastText  string
	update    internalorders.ShipmentUpdate
	override  bool
	status    *enums.OrderStatus
	countable bool
	params    pagination.Params
	err       error
}

func (s *stubOrders) Scope(ctx context.Context, userID uuid.UUID, role enums.Role) (internalorders.Actor, error) {
	actor := internalorders.Actor{UserID: userID, Role: role}
	if role == enums.RoleSeller {
		shop := s.shopID
		actor.ShopID = &shop
	}
	return actor, nil
}

func (s *stubOrders) record(name, code, text string) (internalorders.Result, error) {
	s.calls = append(s.calls, name)
	s.lastCode = code
	s.lastText = text
	if s.err != nil {
		return internalorders.Result{}, s.err
	}
	return internalorders.Result{Code: code, Status: enums.OrderStatusConfirmed}, nil
}

func (s *stubOrders) Confirm(ctx context.Context, code string, actor internalorders.Actor) (internalorders.Result, error) {
	return s.record("confirm", code, "")
}

func (s *stubOrders) Pack(ctx context.Context, code string, actor internalorders.Actor) (internalorders.Result, error) {
	return s.record("pack", code, "")
}

func (s *stubOrders) ConfirmReceived(ctx context.Context, code string, actor internalorders.Actor) (internalorders.Result, error) {
	return s.record("confirm_received", code, "")
}

func (s *stubOrders) CreateShipment(ctx context.Context, code string, actor internalorders.Actor, carrier string) (internalorders.Result, error) {
	return s.record("create_shipment", code, carrier)
}

func (s *stubOrders) UpdateShipment(ctx context.Context, code string, actor internalorders.Actor, update internalorders.ShipmentUpdate, override bool) (internalorders.Result, error) {
	s.update = update
	s.override = override
	return s.record("update_shipment", code, update.Message)
}

func (s *stubOrders) CancelRequest(ctx context.Context, code string, actor internalorders.Actor, reason string) (internalorders.Result, error) {
	return s.record("cancel_request", code, reason)
}

func (s *stubOrders) CancelApprove(ctx context.Context, code string, actor internalorders.Actor, note string) (internalorders.Result, error) {
	return s.record("cancel_approve", code, note)
}

func (s *stubOrders) CancelReject(ctx context.Context, code string, actor internalorders.Actor, note string) (internalorders.Result, error) {
	return s.record("cancel_reject", code, note)
}

func (s *stubOrders) Cancel(ctx context.Context, code string, actor internalorders.Actor, reason string) (internalorders.Result, error) {
	return s.record("cancel", code, reason)
}

func (s *stubOrders) ForceCancel(ctx context.Context, code string, actor internalorders.Actor, reason string) (internalorders.Result, error) {
	return s.record("force_cancel", code, reason)
}

func (s *stubOrders) List(ctx context.Context, actor internalorders.Actor, by internalorders.StatusFilter, params pagination.Params) (internalorders.List, error) {
	s.status = by.Status
	s.countable = by.Countable
	s.params = params
	return internalorders.List{Orders: []internalorders.Summary{{Code: "OD1"}}}, nil
}

func (s *stubOrders) Get(ctx context.Context, code string, actor internalorders.Actor) (internalorders.Detail, error) {
	return internalorders.Detail{Summary: internalorders.Summary{Code: code}}, nil
}

func (s *stubOrders) Tracking(ctx context.Context, code string, actor internalorders.Actor) (internalorders.Tracking, error) {
	return internalorders.Tracking{Code: code}, nil
}

func (s *stubOrders) Invoice(ctx context.Context, code string, actor internalorders.Actor) (internalorders.Invoice, error) {
	return internalorders.Invoice{Code: code}, nil
}

type stubDisputes struct {
	resolved disputes.ResolveInput
	id       uuid.UUID
	opened   disputes.OpenInput
	status   string
}

func (s *stubDisputes) Open(ctx context.Context, code string, actor internalorders.Actor, input disputes.OpenInput) (internalorders.Result, error) {
	s.opened = input
	return internalorders.Result{Code: code, Status: enums.OrderStatusDisputed}, nil
}

func (s *stubDisputes) Respond(ctx context.Context, code string, actor internalorders.Actor, response string) (disputes.View, error) {
	return disputes.View{}, nil
}

func (s *stubDisputes) Review(ctx context.Context, id uuid.UUID, actor internalorders.Actor) (disputes.View, error) {
	s.id = id
	return disputes.View{}, nil
}

func (s *stubDisputes) Resolve(ctx context.Context, id uuid.UUID, actor internalorders.Actor, input disputes.ResolveInput) (disputes.View, error) {
	s.id = id
	s.resolved = input
	return disputes.View{}, nil
}

func (s *stubDisputes) RequestRevision(ctx context.Context, code string, actor internalorders.Actor, message string) (disputes.View, error) {
	return disputes.View{}, nil
}

func (s *stubDisputes) ListForShop(ctx context.Context, actor internalorders.Actor, status string, params pagination.Params) (pagination.Page[disputes.View], error) {
	s.status = status
	return pagination.Page[disputes.View]{}, nil
}

func (s *stubDisputes) ListAll(ctx context.Context, actor internalorders.Actor, status string, params pagination.Params) (pagination.Page[disputes.View], error) {
	s.status = status
	return pagination.Page[disputes.View]{}, nil
}

type stubRefunds struct {
	note string
	ref  string
}

func (s *stubRefunds) Request(ctx context.Context, code string, actor internalorders.Actor, reason string) (internalorders.Result, error) {
	return internalorders.Result{Code: code, Status: enums.OrderStatusRefundRequested}, nil
}

func (s *stubRefunds) Approve(ctx context.Context, code string, actor internalorders.Actor, note string) (internalorders.Result, error) {
	s.note = note
	return internalorders.Result{Code: code, Status: enums.OrderStatusRefunded}, nil
}

func (s *stubRefunds) Reject(ctx context.Context, code string, actor internalorders.Actor, note string) (internalorders.Result, error) {
	s.note = note
	return internalorders.Result{Code: code, Status: enums.OrderStatusDelivered}, nil
}

func (s *stubRefunds) Manual(ctx context.Context, code string, actor internalorders.Actor, ref, note string) (internalorders.Result, error) {
	s.ref = ref
	s.note = note
	return internalorders.Result{Code: code, Status: enums.OrderStatusRefunded}, nil
}

func (s *stubRefunds) ListForShop(ctx context.Context, actor internalorders.Actor, status string, params pagination.Params) (pagination.Page[refunds.View], error) {
	return pagination.Page[refunds.View]{}, nil
}

func (s *stubRefunds) ListAll(ctx context.Context, actor internalorders.Actor, status string, params pagination.Params) (pagination.Page[refunds.View], error) {
	return pagination.Page[refunds.View]{}, nil
}

type stubReturns struct {
	approved returns.ApproveInput
}

func (s *stubReturns) Request(ctx context.Context, code string, actor internalorders.Actor, input returns.RequestInput) (internalorders.Result, error) {
	return internalorders.Result{Code: code, Status: enums.OrderStatusReturnRequested}, nil
}

func (s *stubReturns) Approve(ctx context.Context, code string, actor internalorders.Actor, input returns.ApproveInput) (internalorders.Result, error) {
	s.approved = input
	return internalorders.Result{Code: code, Status: enums.OrderStatusReturnApproved}, nil
}

func (s *stubReturns) Reject(ctx context.Context, code string, actor internalorders.Actor, reason string) (internalorders.Result, error) {
	return internalorders.Result{Code: code, Status: enums.OrderStatusDelivered}, nil
}

func (s *stubReturns) Received(ctx context.Context, code string, actor internalorders.Actor) (internalorders.Result, error) {
	return internalorders.Result{Code: code, Status: enums.OrderStatusRefunded}, nil
}

func (s *stubReturns) ListForShop(ctx context.Context, actor internalorders.Actor, status string, params pagination.Params) (pagination.Page[returns.View], error) {
	return pagination.Page[returns.View]{}, nil
}

func serve(t *testing.T, method, pattern, target, body string, role enums.Role, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Method(method, pattern, handler)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if role != "" {
		req = req.WithContext(middleware.WithIdentity(req.Context(), uuid.New(), role))
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return envelope.Data
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return envelope.Error.Code
}

func TestConfirmRequiresIdentity(t *testing.T) {
	svc := &stubOrders{}
	resp := serve(t, http.MethodPost, "/orders/{code}/confirm", "/orders/OD1/confirm", "", "", Confirm(svc, nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if len(svc.calls) != 0 {
		t.Fatalf("service should not be called")
	}
}

func TestConfirmPassesOrderCode(t *testing.T) {
	svc := &stubOrders{shopID: uuid.New()}
	resp := serve(t, http.MethodPost, "/orders/{code}/confirm", "/orders/OD123/confirm", "", enums.RoleSeller, Confirm(svc, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastCode != "OD123" {
		t.Fatalf("expected code OD123 got %q", svc.lastCode)
	}
	if data := decodeData(t, resp); data["code"] != "OD123" {
		t.Fatalf("unexpected body %v", data)
	}
}

func TestCancelRequestRequiresReason(t *testing.T) {
	svc := &stubOrders{}
	resp := serve(t, http.MethodPost, "/orders/{code}/cancel-request", "/orders/OD1/cancel-request", `{}`, enums.RoleCustomer, CancelRequest(svc, nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if len(svc.calls) != 0 {
		t.Fatalf("service should not be called")
	}
}

func TestCancelRequestTrimsReason(t *testing.T) {
	svc := &stubOrders{}
	resp := serve(t, http.MethodPost, "/orders/{code}/cancel-request", "/orders/OD1/cancel-request", `{"reason":"  changed my mind  "}`, enums.RoleCustomer, CancelRequest(svc, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastText != "changed my mind" {
		t.Fatalf("unexpected reason %q", svc.lastText)
	}
}

func TestCancelApproveAcceptsEmptyBody(t *testing.T) {
	svc := &stubOrders{}
	resp := serve(t, http.MethodPost, "/orders/{code}/cancel-approve", "/orders/OD1/cancel-approve", "", enums.RoleSeller, CancelApprove(svc, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.calls[0] != "cancel_approve" {
		t.Fatalf("unexpected call %v", svc.calls)
	}
}

func TestUpdateShipmentParsesStatus(t *testing.T) {
	svc := &stubOrders{}
	resp := serve(t, http.MethodPost, "/orders/{code}/shipment-override", "/orders/OD1/shipment-override",
		`{"status":"delivered","message":"left at door"}`, enums.RoleAdmin, UpdateShipment(svc, nil, true))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.update.Status != enums.ShipmentStatusDelivered || !svc.override {
		t.Fatalf("unexpected update %+v override=%v", svc.update, svc.override)
	}

	resp = serve(t, http.MethodPost, "/orders/{code}/update-shipment", "/orders/OD1/update-shipment",
		`{"status":"teleported"}`, enums.RoleSeller, UpdateShipment(svc, nil, false))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	svc := &stubOrders{err: pkgerrors.New(pkgerrors.CodeStateConflict, "order is SHIPPED")}
	resp := serve(t, http.MethodPost, "/orders/{code}/pack", "/orders/OD1/pack", "", enums.RoleSeller, Pack(svc, nil))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeStateConflict) {
		t.Fatalf("unexpected error code %s", code)
	}
}

func TestListParsesFilters(t *testing.T) {
	svc := &stubOrders{}
	resp := serve(t, http.MethodGet, "/orders", "/orders?status=shipped&limit=5", "", enums.RoleCustomer, List(svc, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.status == nil || *svc.status != enums.OrderStatusShipped {
		t.Fatalf("unexpected status filter %v", svc.status)
	}
	if svc.params.Limit != 5 {
		t.Fatalf("expected limit 5 got %d", svc.params.Limit)
	}

	if svc.countable {
		t.Fatal("countable filter should default to off")
	}

	resp = serve(t, http.MethodGet, "/orders", "/orders?countable=true", "", enums.RoleSeller, List(svc, nil))
	if resp.Code != http.StatusOK || !svc.countable || svc.status != nil {
		t.Fatalf("expected countable listing, got %d countable=%v status=%v", resp.Code, svc.countable, svc.status)
	}

	for _, target := range []string{"/orders?status=lost", "/orders?countable=maybe"} {
		resp = serve(t, http.MethodGet, "/orders", target, "", enums.RoleCustomer, List(svc, nil))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", target, resp.Code)
		}
	}
}

func TestReturnApproveNormalisesEnums(t *testing.T) {
	scoper := &stubOrders{shopID: uuid.New()}
	svc := &stubReturns{}
	body := `{"resolution":"refund_only","shipping_payer":"seller","restocking_fee":500}`
	resp := serve(t, http.MethodPost, "/orders/{code}/return-approve", "/orders/OD1/return-approve", body, enums.RoleSeller, ReturnApprove(scoper, svc, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.approved.Resolution != enums.ReturnResolution("REFUND_ONLY") || svc.approved.ShippingPayer != enums.ShippingPayer("SELLER") {
		t.Fatalf("unexpected input %+v", svc.approved)
	}
	if svc.approved.RestockingFee != 500 {
		t.Fatalf("unexpected restocking fee %d", svc.approved.RestockingFee)
	}
}

func TestRefundManualPassesReference(t *testing.T) {
	scoper := &stubOrders{}
	svc := &stubRefunds{}
	resp := serve(t, http.MethodPost, "/refunds/{code}/manual", "/refunds/OD1/manual", `{"ref":"BANK-42","note":"wire sent"}`, enums.RoleAdmin, RefundManual(scoper, svc, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.ref != "BANK-42" || svc.note != "wire sent" {
		t.Fatalf("unexpected manual refund input ref=%q note=%q", svc.ref, svc.note)
	}
}

func TestDisputeOpenCreated(t *testing.T) {
	scoper := &stubOrders{}
	svc := &stubDisputes{}
	resp := serve(t, http.MethodPost, "/orders/{code}/dispute", "/orders/OD1/dispute", `{"type":"damaged","message":"box crushed"}`, enums.RoleCustomer, DisputeOpen(scoper, svc, nil))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.opened.Type != "damaged" || svc.opened.Message != "box crushed" {
		t.Fatalf("unexpected open input %+v", svc.opened)
	}
}

func TestDisputeResolveParsesID(t *testing.T) {
	scoper := &stubOrders{}
	svc := &stubDisputes{}
	id := uuid.New()
	body := `{"decision":"resolved","resolution":"photos confirm damage","approve_refund":true}`
	resp := serve(t, http.MethodPost, "/disputes/{id}/resolve", "/disputes/"+id.String()+"/resolve", body, enums.RoleAdmin, DisputeResolve(scoper, svc, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.id != id || svc.resolved.Decision != enums.DisputeStatusResolved || !svc.resolved.ApproveRefund {
		t.Fatalf("unexpected resolve input id=%s %+v", svc.id, svc.resolved)
	}

	resp = serve(t, http.MethodPost, "/disputes/{id}/resolve", "/disputes/not-a-uuid/resolve", body, enums.RoleAdmin, DisputeResolve(scoper, svc, nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestWorkflowListUppercasesStatus(t *testing.T) {
	scoper := &stubOrders{shopID: uuid.New()}
	svc := &stubDisputes{}
	resp := serve(t, http.MethodGet, "/disputes", "/disputes?status=open", "", enums.RoleSeller, DisputeListForShop(scoper, svc, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.status != "OPEN" {
		t.Fatalf("expected OPEN got %q", svc.status)
	}
}
