package httpx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/parking/pkg/httpx"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func nodeRequest(ip, node string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/nodes/"+node, nil)
	req.RemoteAddr = ip + ":40000"
	req.SetPathValue("id", node)
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestKeyExtractors(t *testing.T) {
	t.Run("ip prefers first forwarded hop", func(t *testing.T) {
		req := nodeRequest("10.0.0.1", "n1")
		require.Equal(t, "10.0.0.1", httpx.IPKeyExtractor(req))

		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "203.0.113.2", httpx.IPKeyExtractor(req))

		req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")
		require.Equal(t, "203.0.113.1", httpx.IPKeyExtractor(req))
	})

	t.Run("composite skips empty parts", func(t *testing.T) {
		key := httpx.CompositeKeyExtractor(":", httpx.IPKeyExtractor, httpx.PathValueKeyExtractor("id"))
		require.Equal(t, "10.0.0.1:n1", key(nodeRequest("10.0.0.1", "n1")))

		bare := httptest.NewRequest(http.MethodGet, "/livez", nil)
		bare.RemoteAddr = "10.0.0.1:40000"
		require.Equal(t, "10.0.0.1", key(bare))
	})
}

func TestRateLimitByIPAndPathValue(t *testing.T) {
	h := httpx.RateLimitByIPAndPathValue(httpx.Tier{Requests: 2, Window: time.Minute, Burst: 2}, "id")(okHandler)

	for i := range 2 {
		require.Equal(t, http.StatusOK, serve(h, nodeRequest("10.0.0.1", "n1")).Code, "request %d", i+1)
	}

	rec := serve(h, nodeRequest("10.0.0.1", "n1"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "30", rec.Header().Get("Retry-After"))
	require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	require.Contains(t, rec.Body.String(), `"status":"rate_limited"`)

	t.Run("other node keeps its budget", func(t *testing.T) {
		require.Equal(t, http.StatusOK, serve(h, nodeRequest("10.0.0.1", "n2")).Code)
	})

	t.Run("other client keeps its budget", func(t *testing.T) {
		require.Equal(t, http.StatusOK, serve(h, nodeRequest("10.0.0.2", "n1")).Code)
	})
}

func TestRateLimitByUser(t *testing.T) {
	h := httpx.RateLimitByUser(httpx.Tier{Requests: 1, Window: time.Minute, Burst: 1})(okHandler)

	asUser := func(uid string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/nodes", nil)
		req.RemoteAddr = "10.0.0.1:40000"
		return req.WithContext(context.WithValue(req.Context(), httpx.CtxKeyUserID, uid))
	}

	require.Equal(t, http.StatusOK, serve(h, asUser("alice")).Code)
	require.Equal(t, http.StatusTooManyRequests, serve(h, asUser("alice")).Code)

	// Same address, different account.
	require.Equal(t, http.StatusOK, serve(h, asUser("bob")).Code)
}

func TestRateLimitSkipsEmptyKey(t *testing.T) {
	none := func(*http.Request) string { return "" }
	h := httpx.RateLimit(httpx.Tier{Requests: 1, Window: time.Minute, Burst: 1}, none)(okHandler)

	for range 3 {
		require.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}
}

func TestRateLimitsValidate(t *testing.T) {
	require.NoError(t, httpx.DefaultRateLimits().Validate())

	limits := httpx.DefaultRateLimits()
	limits.Moderate.Window = 0
	err := limits.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "moderate")
}
