package orders

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/api/middleware"
	internalorders "github.com/angelmondragon/marketcore-backend/internal/orders"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
)

type stubOrdersService struct {
	internalorders.Service

	getFn      func(userID, orderID uuid.UUID) (*internalorders.OrderDTO, error)
	cancelFn   func(userID, orderID uuid.UUID) (*internalorders.OrderDTO, error)
	listFn     func(vendorID uuid.UUID, params internalorders.VendorListParams) (*internalorders.VendorItemList, error)
	statusFn   func(actor internalorders.VendorActor, itemID uuid.UUID, to enums.OrderItemStatus) (*internalorders.OrderItemDTO, error)
	trackingFn func(actor internalorders.VendorActor, itemID uuid.UUID, input internalorders.TrackingInput) (*internalorders.OrderItemDTO, error)
}

func (s *stubOrdersService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*internalorders.OrderDTO, error) {
	return s.getFn(userID, orderID)
}

func (s *stubOrdersService) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*internalorders.OrderDTO, error) {
	return s.cancelFn(userID, orderID)
}

func (s *stubOrdersService) ListVendorOrders(ctx context.Context, vendorID uuid.UUID, params internalorders.VendorListParams) (*internalorders.VendorItemList, error) {
	return s.listFn(vendorID, params)
}

func (s *stubOrdersService) UpdateItemStatus(ctx context.Context, actor internalorders.VendorActor, itemID uuid.UUID, to enums.OrderItemStatus) (*internalorders.OrderItemDTO, error) {
	return s.statusFn(actor, itemID, to)
}

func (s *stubOrdersService) AddTracking(ctx context.Context, actor internalorders.VendorActor, itemID uuid.UUID, input internalorders.TrackingInput) (*internalorders.OrderItemDTO, error) {
	return s.trackingFn(actor, itemID, input)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newRequest(method, target, body string, params map[string]string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	routeCtx := chi.NewRouteContext()
	for k, v := range params {
		routeCtx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func asCustomer(req *http.Request, userID uuid.UUID) *http.Request {
	ctx := middleware.WithUserID(req.Context(), userID)
	ctx = middleware.WithRole(ctx, enums.UserRoleCustomer)
	return req.WithContext(ctx)
}

func asVendor(req *http.Request, userID, vendorID uuid.UUID) *http.Request {
	ctx := middleware.WithUserID(req.Context(), userID)
	ctx = middleware.WithRole(ctx, enums.UserRoleVendor)
	ctx = middleware.WithVendorID(ctx, vendorID)
	return req.WithContext(ctx)
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

func TestDetailScopesToCaller(t *testing.T) {
	userID, orderID := uuid.New(), uuid.New()
	svc := &stubOrdersService{getFn: func(uid, oid uuid.UUID) (*internalorders.OrderDTO, error) {
		if uid != userID || oid != orderID {
			t.Fatalf("unexpected ids %s %s", uid, oid)
		}
		return &internalorders.OrderDTO{ID: oid, OrderNumber: "MC-1", Status: enums.OrderStatusPending}, nil
	}}

	req := asCustomer(newRequest(http.MethodGet, "/api/v1/orders/"+orderID.String(), "", map[string]string{"orderId": orderID.String()}), userID)
	resp := httptest.NewRecorder()
	Detail(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data internalorders.OrderDTO `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.ID != orderID || envelope.Data.OrderNumber != "MC-1" {
		t.Fatalf("unexpected order %+v", envelope.Data)
	}
}

func TestDetailNotFound(t *testing.T) {
	svc := &stubOrdersService{getFn: func(uuid.UUID, uuid.UUID) (*internalorders.OrderDTO, error) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}}
	orderID := uuid.NewString()
	req := asCustomer(newRequest(http.MethodGet, "/api/v1/orders/"+orderID, "", map[string]string{"orderId": orderID}), uuid.New())
	resp := httptest.NewRecorder()
	Detail(svc, testLogger())(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestUpdateCancel(t *testing.T) {
	userID, orderID := uuid.New(), uuid.New()
	cancelled := false
	svc := &stubOrdersService{cancelFn: func(uid, oid uuid.UUID) (*internalorders.OrderDTO, error) {
		cancelled = true
		now := time.Now()
		return &internalorders.OrderDTO{ID: oid, Status: enums.OrderStatusCancelled, CancelledAt: &now}, nil
	}}

	req := asCustomer(newRequest(http.MethodPatch, "/api/v1/orders/"+orderID.String(), `{"action":"cancel"}`, map[string]string{"orderId": orderID.String()}), userID)
	resp := httptest.NewRecorder()
	Update(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !cancelled {
		t.Fatal("expected cancel to be called")
	}
}

func TestUpdateRejectsUnknownAction(t *testing.T) {
	svc := &stubOrdersService{cancelFn: func(uuid.UUID, uuid.UUID) (*internalorders.OrderDTO, error) {
		t.Fatal("cancel must not run")
		return nil, nil
	}}
	orderID := uuid.NewString()
	for _, body := range []string{`{"action":"refund"}`, `{}`} {
		req := asCustomer(newRequest(http.MethodPatch, "/api/v1/orders/"+orderID, body, map[string]string{"orderId": orderID}), uuid.New())
		resp := httptest.NewRecorder()
		Update(svc, testLogger())(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", body, resp.Code)
		}
	}
}

func TestUpdateCancelConflict(t *testing.T) {
	svc := &stubOrdersService{cancelFn: func(uuid.UUID, uuid.UUID) (*internalorders.OrderDTO, error) {
		return nil, pkgerrors.New(pkgerrors.CodeIllegalTransition, "order can no longer be cancelled")
	}}
	orderID := uuid.NewString()
	req := asCustomer(newRequest(http.MethodPatch, "/api/v1/orders/"+orderID, `{"action":"cancel"}`, map[string]string{"orderId": orderID}), uuid.New())
	resp := httptest.NewRecorder()
	Update(svc, testLogger())(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeIllegalTransition) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestVendorListUsesVendorContext(t *testing.T) {
	userID, vendorID := uuid.New(), uuid.New()
	var got internalorders.VendorListParams
	svc := &stubOrdersService{listFn: func(vid uuid.UUID, params internalorders.VendorListParams) (*internalorders.VendorItemList, error) {
		if vid != vendorID {
			t.Fatalf("unexpected vendor %s", vid)
		}
		got = params
		return &internalorders.VendorItemList{NextCursor: "c2"}, nil
	}}

	cursor := pagination.EncodeCursor(pagination.Cursor{CreatedAt: time.Now(), ID: uuid.New()})
	req := asVendor(newRequest(http.MethodGet, "/api/v1/vendor/orders?status=processing&limit=5&cursor="+cursor, "", nil), userID, vendorID)
	resp := httptest.NewRecorder()
	VendorList(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got.Status != "processing" || got.Limit != 5 || got.Cursor != cursor {
		t.Fatalf("unexpected params %+v", got)
	}
}

func TestVendorListRequiresVendor(t *testing.T) {
	req := asCustomer(newRequest(http.MethodGet, "/api/v1/vendor/orders", "", nil), uuid.New())
	resp := httptest.NewRecorder()
	VendorList(&stubOrdersService{}, testLogger())(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestVendorUpdateStatus(t *testing.T) {
	userID, vendorID, itemID := uuid.New(), uuid.New(), uuid.New()
	svc := &stubOrdersService{statusFn: func(actor internalorders.VendorActor, iid uuid.UUID, to enums.OrderItemStatus) (*internalorders.OrderItemDTO, error) {
		if actor.UserID != userID || actor.VendorID != vendorID || iid != itemID {
			t.Fatalf("unexpected actor %+v item %s", actor, iid)
		}
		if to != enums.OrderItemStatusProcessing {
			t.Fatalf("unexpected target %s", to)
		}
		return &internalorders.OrderItemDTO{ID: iid, Status: to}, nil
	}}

	req := asVendor(newRequest(http.MethodPatch, "/api/v1/vendor/orders/"+itemID.String(), `{"status":"processing"}`, map[string]string{"itemId": itemID.String()}), userID, vendorID)
	resp := httptest.NewRecorder()
	VendorUpdateStatus(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestVendorUpdateStatusErrors(t *testing.T) {
	itemID := uuid.NewString()
	illegal := &stubOrdersService{statusFn: func(internalorders.VendorActor, uuid.UUID, enums.OrderItemStatus) (*internalorders.OrderItemDTO, error) {
		return nil, pkgerrors.New(pkgerrors.CodeIllegalTransition, "illegal transition").WithDetails(map[string]any{
			"from": "pending", "to": "delivered", "allowed": []string{"processing"},
		})
	}}

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"unknown status", `{"status":"teleported"}`, http.StatusBadRequest},
		{"missing status", `{}`, http.StatusBadRequest},
		{"illegal transition", `{"status":"delivered"}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		req := asVendor(newRequest(http.MethodPatch, "/api/v1/vendor/orders/"+itemID, tc.body, map[string]string{"itemId": itemID}), uuid.New(), uuid.New())
		resp := httptest.NewRecorder()
		VendorUpdateStatus(illegal, testLogger())(resp, req)
		if resp.Code != tc.status {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.status, resp.Code)
		}
	}
}

func TestVendorAddTracking(t *testing.T) {
	itemID := uuid.New()
	var got internalorders.TrackingInput
	svc := &stubOrdersService{trackingFn: func(actor internalorders.VendorActor, iid uuid.UUID, input internalorders.TrackingInput) (*internalorders.OrderItemDTO, error) {
		got = input
		return &internalorders.OrderItemDTO{ID: iid, Status: enums.OrderItemStatusShipped}, nil
	}}

	body := `{"carrier":"  UPS ","tracking_number":"1Z999","tracking_url":"https://ups.example/track/1Z999"}`
	req := asVendor(newRequest(http.MethodPost, "/api/v1/vendor/orders/"+itemID.String()+"/tracking", body, map[string]string{"itemId": itemID.String()}), uuid.New(), uuid.New())
	resp := httptest.NewRecorder()
	VendorAddTracking(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.Carrier != "UPS" || got.TrackingNumber != "1Z999" || got.TrackingURL != "https://ups.example/track/1Z999" {
		t.Fatalf("unexpected tracking input %+v", got)
	}
}

func TestVendorAddTrackingValidation(t *testing.T) {
	itemID := uuid.NewString()
	svc := &stubOrdersService{trackingFn: func(internalorders.VendorActor, uuid.UUID, internalorders.TrackingInput) (*internalorders.OrderItemDTO, error) {
		t.Fatal("service must not run")
		return nil, nil
	}}
	for _, body := range []string{`{"carrier":"UPS"}`, `{"carrier":"UPS","tracking_number":"1Z","tracking_url":"not a url"}`} {
		req := asVendor(newRequest(http.MethodPost, "/api/v1/vendor/orders/"+itemID+"/tracking", body, map[string]string{"itemId": itemID}), uuid.New(), uuid.New())
		resp := httptest.NewRecorder()
		VendorAddTracking(svc, testLogger())(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", body, resp.Code)
		}
	}
}
