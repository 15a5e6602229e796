package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		origins    []string
		origin     string
		preflight  bool
		wantCode   int
		wantOrigin string
	}{
		{name: "allowed origin", origins: []string{"http://localhost:5678"}, origin: "http://localhost:5678", wantCode: http.StatusOK, wantOrigin: "http://localhost:5678"},
		{name: "unknown origin", origins: []string{"http://localhost:5678"}, origin: "http://evil.test", wantCode: http.StatusOK},
		{name: "wildcard", origins: []string{"*"}, origin: "http://inspector.local", wantCode: http.StatusOK, wantOrigin: "http://inspector.local"},
		{name: "preflight", origins: []string{"*"}, origin: "http://inspector.local", preflight: true, wantCode: http.StatusNoContent, wantOrigin: "http://inspector.local"},
		{name: "no origins configured", origin: "http://localhost:5678", wantCode: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			method := http.MethodPost
			if tc.preflight {
				method = http.MethodOptions
			}
			req := httptest.NewRequest(method, "/mcp", nil)
			req.Header.Set("Origin", tc.origin)
			if tc.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			CORS(tc.origins)(next).ServeHTTP(rec, req)

			if rec.Code != tc.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tc.wantCode)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Fatalf("allow origin = %q, want %q", got, tc.wantOrigin)
			}
		})
	}
}
