package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

func TestRequestIDPropagatesOrReplaces(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	tests := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{name: "caller id kept", inbound: "edge-1234.abc", keep: true},
		{name: "missing id minted", inbound: ""},
		{name: "header injection replaced", inbound: "abc\r\nX-Evil: 1"},
		{name: "oversized id replaced", inbound: strings.Repeat("a", maxRequestIDLength+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := RequestID(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = logger.RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.inbound != "" {
				req.Header[requestIDHeader] = []string{tt.inbound}
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			got := rec.Header().Get(requestIDHeader)
			if got == "" || got != seen {
				t.Fatalf("header %q and context %q should match", got, seen)
			}
			if tt.keep != (got == tt.inbound) {
				t.Fatalf("inbound %q, got %q, keep=%v", tt.inbound, got, tt.keep)
			}
		})
	}
}
