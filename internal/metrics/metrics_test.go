package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.MessageAppended("text")
	m.MessageAppended("text")
	m.Upload("ok")
	m.Rating("upvote")
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.ChannelsExpired(3)
	m.ChannelsExpired(0)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, line := range []string{
		`consult_messages_appended_total{kind="text"} 2`,
		`consult_uploads_total{result="ok"} 1`,
		`consult_ratings_total{outcome="upvote"} 1`,
		`consult_ws_connections_live 1`,
		`consult_channels_expired_total 3`,
	} {
		assert.True(t, strings.Contains(body, line), line)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MessageAppended("text")
		m.Upload("ok")
		m.Rating("downvote")
		m.ConnectionOpened()
		m.ConnectionClosed()
		m.PresenceJoin()
		m.ChannelsExpired(1)
	})
}
