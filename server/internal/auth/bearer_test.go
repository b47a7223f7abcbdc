package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func call(t *testing.T, h http.Handler, authz string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/locations", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestBearer_NoSecret_PassesThrough(t *testing.T) {
	if rr := call(t, Bearer("", ok), ""); rr.Code != http.StatusNoContent {
		t.Errorf("status: got %d, want 204", rr.Code)
	}
}

func TestBearer(t *testing.T) {
	h := Bearer("supersecret", ok)
	cases := []struct {
		name  string
		authz string
		want  int
	}{
		{"correct", "Bearer supersecret", http.StatusNoContent},
		{"lowercase scheme", "bearer supersecret", http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"prefix of token", "Bearer super", http.StatusUnauthorized},
		{"basic scheme", "Basic c3VwZXJzZWNyZXQ=", http.StatusUnauthorized},
		{"no token", "Bearer ", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := call(t, h, tc.authz)
			if rr.Code != tc.want {
				t.Errorf("status: got %d, want %d", rr.Code, tc.want)
			}
			if tc.want == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate challenge")
			}
		})
	}
}
