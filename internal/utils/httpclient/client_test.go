// internal/utils/httpclient/client_test.go
package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/launch-sniper/internal/utils/retry"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond, NetworkDelay: time.Millisecond}
}

func TestGetJSON_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/thing", r.URL.Path)
		assert.Equal(t, "x", r.URL.Query().Get("q"))
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "ok"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/", Retry: fastPolicy(), Headers: map[string]string{"x-api-key": "secret"}}, zaptest.NewLogger(t))

	var out struct{ Name string }
	require.NoError(t, c.GetJSON(context.Background(), "/v1/thing", url.Values{"q": {"x"}}, &out))
	assert.Equal(t, "ok", out.Name)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPostJSON_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "v", in["k"])
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Retry: fastPolicy()}, zaptest.NewLogger(t))
	err := c.PostJSON(context.Background(), "/x", map[string]string{"k": "v"}, nil)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode())
	assert.Contains(t, se.Body, "bad")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetJSON_GatewayErrorRetriedUntilCap(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Retry: fastPolicy()}, zaptest.NewLogger(t))
	err := c.GetJSON(context.Background(), "/", nil, nil)
	assert.Equal(t, retry.ClassNetwork, retry.Classify(err))
	assert.Equal(t, int32(4), calls.Load())
}
