package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/api/middleware"
	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
)

type inboxStub struct {
	list    func(notifications.ListParams) (*notifications.ListResult, error)
	read    func(userID, notificationID uuid.UUID) error
	readAll func(userID uuid.UUID) (int64, error)
}

func (s *inboxStub) List(_ context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	if s.list == nil {
		return &notifications.ListResult{}, nil
	}
	return s.list(params)
}

func (s *inboxStub) MarkRead(_ context.Context, userID, notificationID uuid.UUID) error {
	if s.read == nil {
		return nil
	}
	return s.read(userID, notificationID)
}

func (s *inboxStub) MarkAllRead(_ context.Context, userID uuid.UUID) (int64, error) {
	if s.readAll == nil {
		return 0, nil
	}
	return s.readAll(userID)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func asUser(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestMarkNotificationRead(t *testing.T) {
	userID, notificationID := uuid.New(), uuid.New()
	var gotUser, gotID uuid.UUID
	svc := &inboxStub{read: func(uid, nid uuid.UUID) error {
		gotUser, gotID = uid, nid
		return nil
	}}

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+notificationID.String()+"/read", nil), userID)
	req = addRouteParam(req, "notificationId", notificationID.String())
	resp := httptest.NewRecorder()
	MarkNotificationRead(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if gotUser != userID || gotID != notificationID {
		t.Fatalf("service got user=%s id=%s", gotUser, gotID)
	}
	var envelope struct {
		Data map[string]bool `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !envelope.Data["read"] {
		t.Fatal("response missing read flag")
	}
}

func TestMarkNotificationReadFailures(t *testing.T) {
	notFound := &inboxStub{read: func(uuid.UUID, uuid.UUID) error {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}}
	cases := []struct {
		name   string
		svc    notifications.Service
		user   uuid.UUID
		param  string
		status int
	}{
		{"anonymous", &inboxStub{}, uuid.Nil, uuid.NewString(), http.StatusUnauthorized},
		{"bad id", &inboxStub{}, uuid.New(), "invalid", http.StatusBadRequest},
		{"missing", notFound, uuid.New(), uuid.NewString(), http.StatusNotFound},
		{"no service", nil, uuid.New(), uuid.NewString(), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications/x/read", nil)
			if tc.user != uuid.Nil {
				req = asUser(req, tc.user)
			}
			req = addRouteParam(req, "notificationId", tc.param)
			resp := httptest.NewRecorder()
			MarkNotificationRead(tc.svc, testLogger())(resp, req)
			if resp.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, resp.Code)
			}
		})
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	userID := uuid.New()
	svc := &inboxStub{readAll: func(uid uuid.UUID) (int64, error) {
		if uid != userID {
			t.Fatalf("unexpected user %s", uid)
		}
		return 3, nil
	}}

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/notifications/read-all", nil), userID)
	resp := httptest.NewRecorder()
	MarkAllNotificationsRead(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data map[string]int64 `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data["updated"] != 3 {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestListNotificationsPassesQuery(t *testing.T) {
	userID := uuid.New()
	var got notifications.ListParams
	svc := &inboxStub{list: func(params notifications.ListParams) (*notifications.ListResult, error) {
		got = params
		return &notifications.ListResult{Cursor: "next", Unread: 2}, nil
	}}

	cursor := pagination.EncodeCursor(pagination.Cursor{CreatedAt: time.Now(), ID: uuid.New()})
	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit=10&cursor="+cursor+"&unreadOnly=true", nil), userID)
	resp := httptest.NewRecorder()
	ListNotifications(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if got.UserID != userID || got.Limit != 10 || got.Cursor != cursor || !got.UnreadOnly {
		t.Fatalf("unexpected params %+v", got)
	}
}

func TestListNotificationsRejectsBadQuery(t *testing.T) {
	for _, query := range []string{"limit=0", "limit=500", "limit=abc", "unreadOnly=maybe", "cursor=notacursor"} {
		req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/notifications?"+query, nil), uuid.New())
		resp := httptest.NewRecorder()
		ListNotifications(&inboxStub{}, testLogger())(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", query, resp.Code)
		}
	}
}
