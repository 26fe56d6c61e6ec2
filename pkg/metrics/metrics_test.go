package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrument(t *testing.T) {
	m := New()
	h := m.Instrument("users", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	for _, method := range []string{http.MethodGet, http.MethodGet, http.MethodPost} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, "/api/users/", nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("users", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("users", "POST", "201")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.HTTPDuration))
}

func TestCounters(t *testing.T) {
	m := New()
	m.EmailResult(nil)
	m.EmailResult(errors.New("smtp down"))
	m.EmailResult(nil)
	m.UserCreated("api")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmailsSent.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsSent.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UsersCreated.WithLabelValues("api")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.EmailResult(nil)
	m.UserCreated("api")

	called := false
	h := m.Instrument("x", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestHandler(t *testing.T) {
	m := New()
	m.UserCreated("role_based")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `labelforge_users_created_total{source="role_based"} 1`)
}
