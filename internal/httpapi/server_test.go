package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/scbot/internal/domain"
)

type stubChannels struct{ views []domain.ChannelReputationView }

func (s stubChannels) ListChannels() []domain.ChannelReputationView { return s.views }

type stubSignals struct{ got domain.SignalFilter }

func (s *stubSignals) ListSignals(filter domain.SignalFilter) []domain.SignalView {
	s.got = filter
	return []domain.SignalView{{Version: 1, ID: "abc", ChannelID: filter.ChannelID, Status: domain.StatusInProgress}}
}

func newTestServer(t *testing.T, ch ChannelLister, sig SignalLister) *Server {
	t.Helper()
	return New("127.0.0.1:0", ch, sig, prometheus.NewRegistry())
}

func TestListChannels_SuppressedScoreOmitted(t *testing.T) {
	rep := domain.NewChannelReputation("C1")
	rep.Total = 3
	rep.ScoreSuppressed = true
	rep.UpdatedAt = time.Now().UTC()

	s := newTestServer(t, stubChannels{views: []domain.ChannelReputationView{domain.NewChannelReputationView(rep)}}, &stubSignals{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/channels", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, true, got[0]["suppressed"])
	_, hasScore := got[0]["composite_score"]
	assert.False(t, hasScore)
}

func TestListSignals_FilterParsing(t *testing.T) {
	sig := &stubSignals{}
	s := newTestServer(t, stubChannels{}, sig)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/signals?channel_id=C1&status=in_progress&limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "C1", sig.got.ChannelID)
	assert.Equal(t, domain.StatusInProgress, sig.got.Status)
	assert.Equal(t, 10, sig.got.Limit)
}

func TestListSignals_InvalidStatusRejected(t *testing.T) {
	s := newTestServer(t, stubChannels{}, &stubSignals{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/signals?status=nonsense", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, stubChannels{}, &stubSignals{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
