package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClientDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"UNAUTHORIZED","message":"invalid API key"}}`))
			return
		}
		switch r.URL.Path {
		case "/api/v1/stats":
			_, _ = w.Write([]byte(`{"success":true,"skipped":3,"sped_up":2,"badge":"5"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`404 page not found`))
		}
	}))
	defer srv.Close()

	c := &client{http: &http.Client{Timeout: time.Second}, apiURL: srv.URL, apiKey: "k"}
	ctx := context.Background()

	var st statsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &st); err != nil {
		t.Fatalf("do: %v", err)
	}
	if st.Skipped != 3 || st.SpedUp != 2 || st.Badge != "5" {
		t.Errorf("stats: %+v", st)
	}

	if err := c.do(ctx, http.MethodGet, "/api/v1/nope", nil, nil); err == nil {
		t.Error("non-JSON 404 accepted")
	}

	c.apiKey = "wrong"
	err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &st)
	if err == nil || !strings.Contains(err.Error(), "[UNAUTHORIZED]") {
		t.Errorf("auth error: %v", err)
	}
}

func TestFormatSession(t *testing.T) {
	tests := []struct {
		s    sessionInfo
		want string
	}{
		{sessionInfo{ID: "a", Enabled: true}, "idle"},
		{sessionInfo{ID: "a", Enabled: true, InterventionActive: true}, "ad playing"},
		{sessionInfo{ID: "a", InterventionActive: true}, "disabled"},
	}
	for _, tt := range tests {
		if got := formatSession(tt.s); !strings.Contains(got, tt.want) {
			t.Errorf("formatSession(%+v) = %q, want %q in it", tt.s, got, tt.want)
		}
	}
}
