package ops

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/reelrunner/internal/metrics"
	"github.com/JakeFAU/reelrunner/internal/runner"
)

func init() {
	metrics.Init()
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeHeartbeat struct {
	at  time.Time
	err error
}

func (h fakeHeartbeat) Read() (time.Time, error) { return h.at, h.err }

type fakeContinuation struct {
	rec *runner.ContinuationRecord
	err error
}

func (c fakeContinuation) Load() (*runner.ContinuationRecord, error) { return c.rec, c.err }

func (c fakeContinuation) Save(lastAccount string, at time.Time) error { return nil }

func newTestServer(hb fakeHeartbeat, cont fakeContinuation, now time.Time) *httptest.Server {
	s := NewServer(hb, cont, fakeClock{now: now}, 10*time.Minute, zap.NewNop())
	return httptest.NewServer(s.Handler())
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealthz_FreshBeat(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ts := newTestServer(fakeHeartbeat{at: now.Add(-time.Minute)}, fakeContinuation{}, now)
	defer ts.Close()

	var body map[string]string
	code := getJSON(t, ts.URL+"/healthz", &body)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body["status"])
}

func TestHealthz_StaleBeat(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ts := newTestServer(fakeHeartbeat{at: now.Add(-time.Hour)}, fakeContinuation{}, now)
	defer ts.Close()

	var body map[string]string
	code := getJSON(t, ts.URL+"/healthz", &body)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "heartbeat stale", body["reason"])
}

func TestHealthz_NoBeatRecorded(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ts := newTestServer(fakeHeartbeat{err: errors.New("no such file")}, fakeContinuation{}, now)
	defer ts.Close()

	var body map[string]string
	code := getJSON(t, ts.URL+"/healthz", &body)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "no heartbeat recorded", body["reason"])
}

func TestStatus_ReportsRotationPosition(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &runner.ContinuationRecord{LastAccount: "acct2", Timestamp: now.Add(-5 * time.Minute)}
	ts := newTestServer(fakeHeartbeat{at: now}, fakeContinuation{rec: rec}, now)
	defer ts.Close()

	var body runner.ContinuationRecord
	code := getJSON(t, ts.URL+"/status", &body)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "acct2", body.LastAccount)
}

func TestStatus_NoRecordYet(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ts := newTestServer(fakeHeartbeat{at: now}, fakeContinuation{}, now)
	defer ts.Close()

	var body map[string]string
	code := getJSON(t, ts.URL+"/status", &body)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "no cycles completed yet", body["note"])
}

func TestMetricsEndpoint(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ts := newTestServer(fakeHeartbeat{at: now}, fakeContinuation{}, now)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
