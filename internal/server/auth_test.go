package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name       string
		apiKey     string
		header     string
		wantStatus int
		wantDetail string
		wantError  bool
	}{
		{name: "disabled", apiKey: "", header: "", wantStatus: http.StatusNoContent},
		{name: "missing header", apiKey: "secret", header: "", wantStatus: http.StatusUnauthorized, wantDetail: "Authorization required."},
		{name: "wrong token", apiKey: "secret", header: "Bearer nope", wantStatus: http.StatusUnauthorized, wantDetail: "Invalid token.", wantError: true},
		{name: "prefix of key", apiKey: "secret", header: "Bearer secre", wantStatus: http.StatusUnauthorized, wantDetail: "Invalid token.", wantError: true},
		{name: "basic scheme", apiKey: "secret", header: "Basic c2VjcmV0", wantStatus: http.StatusUnauthorized, wantDetail: "Authorization required."},
		{name: "correct", apiKey: "secret", header: "Bearer secret", wantStatus: http.StatusNoContent},
		{name: "lowercase scheme", apiKey: "secret", header: "bearer secret", wantStatus: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/chat_history?user_id=alice", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			authMiddleware(tc.apiKey, ok).ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if tc.wantStatus != http.StatusUnauthorized {
				return
			}
			if got := decode[errorResponse](t, w.Body).Detail; got != tc.wantDetail {
				t.Errorf("detail = %q, want %q", got, tc.wantDetail)
			}
			challenge := w.Header().Get("WWW-Authenticate")
			want := `Bearer realm="pharmabot"`
			if tc.wantError {
				want = `Bearer realm="pharmabot" error="invalid_token"`
			}
			if challenge != want {
				t.Errorf("WWW-Authenticate = %q, want %q", challenge, want)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":               "",
		"Bearer abc":     "abc",
		"BEARER  abc ":   "abc",
		"Bearer":         "",
		"Token abc":      "",
		"Bearer abc def": "abc def",
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		if got := bearerToken(req); got != want {
			t.Errorf("bearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
