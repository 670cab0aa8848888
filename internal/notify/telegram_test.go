package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingHandler struct {
	mu       sync.Mutex
	requests []string
	status   int
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	h.mu.Lock()
	h.requests = append(h.requests, r.FormValue("text"))
	h.mu.Unlock()
	status := h.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func (h *recordingHandler) texts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.requests...)
}

func newTestTelegram(t *testing.T, handler http.Handler) (*Telegram, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tg := NewTelegram("token", "chat", 0, zap.NewNop())
	tg.apiBase = srv.URL
	tg.client = srv.Client()
	return tg, srv
}

func TestTelegram_SendsTaggedMessage(t *testing.T) {
	t.Parallel()
	h := &recordingHandler{}
	tg, _ := newTestTelegram(t, h)

	tg.Notify(context.Background(), "cycle complete", "acct1")

	texts := h.texts()
	require.Len(t, texts, 1)
	require.Equal(t, "[acct1] cycle complete", texts[0])
}

func TestTelegram_NoTagWhenAccountEmpty(t *testing.T) {
	t.Parallel()
	h := &recordingHandler{}
	tg, _ := newTestTelegram(t, h)

	tg.Notify(context.Background(), "fleet empty", "")

	texts := h.texts()
	require.Len(t, texts, 1)
	require.Equal(t, "fleet empty", texts[0])
}

func TestTelegram_ServerErrorIsSwallowed(t *testing.T) {
	t.Parallel()
	h := &recordingHandler{status: http.StatusBadGateway}
	tg, _ := newTestTelegram(t, h)

	// Must not panic or propagate anything.
	tg.Notify(context.Background(), "boom", "acct1")
	require.Len(t, h.texts(), 1)
}

func TestTelegram_UnconfiguredSkipsNetwork(t *testing.T) {
	t.Parallel()
	h := &recordingHandler{}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	tg := NewTelegram("", "", 0, zap.NewNop())
	tg.apiBase = srv.URL
	tg.Notify(context.Background(), "ignored", "acct1")
	require.Empty(t, h.texts())
}

func TestTelegram_RateLimitDropsExcess(t *testing.T) {
	t.Parallel()
	h := &recordingHandler{}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	// Burst of 1 per minute: the second send in the same instant is dropped.
	tg := NewTelegram("token", "chat", 1, zap.NewNop())
	tg.apiBase = srv.URL
	tg.client = srv.Client()

	tg.Notify(context.Background(), "first", "")
	tg.Notify(context.Background(), "second", "")
	require.Len(t, h.texts(), 1)
}
