package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_Admit(t *testing.T) {
	now := time.Now()

	t.Run("concurrency cap", func(t *testing.T) {
		l := &limiter{limits: RateLimits{RequestsPerMinute: 100, MaxConcurrent: 2}}

		r1, rej := l.admit(now)
		require.Nil(t, rej)
		_, rej = l.admit(now)
		require.Nil(t, rej)

		_, rej = l.admit(now)
		require.NotNil(t, rej)
		assert.Equal(t, TooManyConcurrent, rej.Code)
		assert.Equal(t, reasonTooManyConcurrent, rej.Message)

		r1()
		r1()
		_, active := l.stats(now)
		assert.Equal(t, 1, active, "release is idempotent")

		_, rej = l.admit(now)
		assert.Nil(t, rej)
	})

	t.Run("window cap", func(t *testing.T) {
		l := &limiter{limits: RateLimits{RequestsPerMinute: 3, MaxConcurrent: 10}}
		for i := 0; i < 3; i++ {
			release, rej := l.admit(now)
			require.Nil(t, rej)
			release()
		}

		_, rej := l.admit(now)
		require.NotNil(t, rej)
		assert.Equal(t, RateLimitExceeded, rej.Code)

		_, rej = l.admit(now.Add(rateWindow + time.Second))
		assert.Nil(t, rej, "starts older than the window no longer count")
	})
}

func TestLimiter_Prune(t *testing.T) {
	now := time.Now()
	l := &limiter{limits: DefaultRateLimits()}
	l.starts = []time.Time{now.Add(-2 * time.Minute), now.Add(-90 * time.Second), now.Add(-time.Second)}

	recent, active := l.stats(now)
	assert.Equal(t, 1, recent)
	assert.Equal(t, 0, active)
}

func TestRateLimits_WithDefaults(t *testing.T) {
	assert.Equal(t, DefaultRateLimits(), RateLimits{}.withDefaults())
	assert.Equal(t, RateLimits{RequestsPerMinute: 5, MaxConcurrent: 10}, RateLimits{RequestsPerMinute: 5, MaxConcurrent: -1}.withDefaults())
}

func TestSessionLimits_SharedPerIdentity(t *testing.T) {
	s := newSessionLimits(RateLimits{RequestsPerMinute: 100, MaxConcurrent: 1})

	release, rej := s.admit("editor")
	require.Nil(t, rej)

	_, rej = s.admit("editor")
	assert.NotNil(t, rej, "second call from the same session waits its turn")

	otherRelease, rej := s.admit("viewer")
	require.Nil(t, rej, "sessions have separate budgets")
	otherRelease()

	anonRelease, rej := s.admit("")
	require.Nil(t, rej)
	_, rej = s.admit("anonymous")
	assert.NotNil(t, rej, "callers without a session share the anonymous budget")
	anonRelease()

	s.forget("editor")
	assert.Equal(t, 3, s.tracked(), "busy sessions are kept")

	release()
	s.forget("editor")
	assert.Equal(t, 2, s.tracked())
}

func TestServer_RPCRateLimited(t *testing.T) {
	g := setupTestGateway(t, "")
	g.server.limits = newSessionLimits(RateLimits{RequestsPerMinute: 2, MaxConcurrent: 5})

	list := RPCRequest{JSONRPC: "2.0", ID: "1", Method: "operations.list"}
	for i := 0; i < 2; i++ {
		resp := g.rpc(t, "s1", list)
		require.Nil(t, resp.Error)
	}

	body, err := json.Marshal(list)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, g.http.URL+"/rpc", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(SessionHeader, "s1")

	httpResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer httpResp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, httpResp.StatusCode)

	var resp RPCResponse
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, RateLimitExceeded, resp.Error.Code)

	other := g.rpc(t, "s2", list)
	assert.Nil(t, other.Error)
}
