package ops

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sellerbot/internal/marketplace"
	logx "sellerbot/pkg/logx"
)

func newService(ingest func(context.Context, marketplace.Event) error) *Service {
	return New(Config{Enabled: true, Addr: "127.0.0.1:0", Token: "s3cret"}, Deps{
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "sellerbot_up 1\n") }),
		Ingest:  ingest,
		Health:  func() map[string]any { return map[string]any{"dedup_keys": 3} },
	}, logx.Nop())
}

func do(h http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	s := newService(nil)
	h := s.Handler(s.cfg)

	rec := do(h, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
	require.EqualValues(t, 3, body["dedup_keys"])

	rec = do(h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, "sellerbot_up 1\n", rec.Body.String())

	// Ingest is nil, so the route does not exist.
	rec = do(h, http.MethodPost, "/events", `{}`, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestEvents(t *testing.T) {
	var got []marketplace.Event
	var fail error
	s := newService(func(_ context.Context, ev marketplace.Event) error {
		if fail != nil {
			return fail
		}
		got = append(got, ev)
		return nil
	})
	h := s.Handler(s.cfg)
	auth := map[string]string{"Authorization": "Bearer s3cret"}

	rec := do(h, http.MethodPost, "/events", `{"type":"new_order","payload":{"id":"o1"}}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, http.MethodPost, "/events", `{"type":"new_order","payload":{"id":"o1"}}`, auth)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, got, 1)
	require.Equal(t, marketplace.KindOrder, got[0].Kind)
	require.NotEmpty(t, got[0].Trace)
	require.Contains(t, rec.Body.String(), got[0].Trace)

	rec = do(h, http.MethodPost, "/events?token=s3cret", `{"type":"order_status_changed"}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, got, 1)

	rec = do(h, http.MethodPost, "/events", `not json`, auth)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	fail = ErrQueueFull
	rec = do(h, http.MethodPost, "/events", `{"type":"review","payload":{"id":"r"}}`, auth)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	fail = errors.New("closed")
	rec = do(h, http.MethodPost, "/events", `{"type":"review","payload":{"id":"r"}}`, auth)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = do(h, http.MethodGet, "/events", ``, auth)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPprofRoutes(t *testing.T) {
	s := newService(nil)
	cfg := s.cfg
	require.Equal(t, http.StatusNotFound, do(s.Handler(cfg), http.MethodGet, "/debug/pprof/", "", nil).Code)

	cfg.Pprof = true
	h := s.Handler(cfg)
	require.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/debug/pprof/", "", nil).Code)
	rec := do(h, http.MethodGet, "/debug/pprof/cmdline?token=s3cret", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStartServesAndStops(t *testing.T) {
	s := newService(nil)
	ctx := context.Background()
	s.Start(ctx)

	var addr string
	require.Eventually(t, func() bool {
		addr = s.Addr()
		return addr != ""
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	require.Equal(t, "", s.Addr())

	s.Reconfigure(ctx, Config{Enabled: false})
	require.False(t, s.Enabled())
}

func TestIsLoopbackAddr(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:8089": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":8089":          false,
		"0.0.0.0:8089":   false,
		"10.0.0.5:80":    false,
		"garbage":        false,
	} {
		require.Equal(t, want, isLoopbackAddr(addr), addr)
	}
}

func TestAuthRejectsNearMissTokens(t *testing.T) {
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }
	h := withAuth("s3cret", ok)
	cases := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"bearer", "/x", "Bearer s3cret", http.StatusNoContent},
		{"query", "/x?token=s3cret", "", http.StatusNoContent},
		{"prefix", "/x", "Bearer s3cre", http.StatusUnauthorized},
		{"longer", "/x", "Bearer s3cret!", http.StatusUnauthorized},
		{"query prefix", "/x?token=s3", "", http.StatusUnauthorized},
		{"bad query beats good header", "/x?token=nope", "Bearer s3cret", http.StatusUnauthorized},
		{"no scheme", "/x", "s3cret", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}
