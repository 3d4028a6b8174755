package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type body struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func serve(t *testing.T, fn http.HandlerFunc) (int, body) {
	t.Helper()
	w := httptest.NewRecorder()
	fn(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var b body
	require.NoError(t, json.NewDecoder(w.Body).Decode(&b))
	return w.Code, b
}

func ok(context.Context) error { return nil }

func fail(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func TestLiveEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		runs       int
		threshold  int
		wantStatus int
		wantChecks map[string]string
	}{
		{name: "healthy before first run", runs: 0, wantStatus: http.StatusOK},
		{name: "failures below threshold", runs: 2, wantStatus: http.StatusOK},
		{
			name:       "failures reach threshold",
			runs:       3,
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"postgres": "connection refused"},
		},
		{
			name:       "custom threshold",
			runs:       1,
			threshold:  1,
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"postgres": "connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			var opts []CheckOption
			if tt.threshold > 0 {
				opts = append(opts, WithThresholds(tt.threshold, 1))
			}
			h.AddLivenessCheck("postgres", time.Second, fail("connection refused"), opts...)
			for range tt.runs {
				h.liveness[0].run(context.Background())
			}

			code, b := serve(t, h.LiveEndpoint)
			assert.Equal(t, tt.wantStatus, code)
			assert.Equal(t, tt.wantChecks, b.Checks)
		})
	}
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("redis", time.Second, ok)

	code, b := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "service is not ready", b.Checks["_readiness"])
	assert.False(t, h.IsReady())

	h.SetReady(true)
	code, b = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", b.Status)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	code, _ = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadyEndpoint_OneFailingCheck(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, ok)
	h.AddReadinessCheck("discount-filter", time.Second, ReadyFunc("discount filter", func() bool { return false }),
		WithThresholds(1, 1))
	h.SetReady(true)
	for _, p := range h.readiness {
		p.run(context.Background())
	}

	code, b := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"discount-filter": "discount filter not ready"}, b.Checks)
	assert.False(t, h.IsReady())
}

func TestProbe_Recovers(t *testing.T) {
	var down bool
	p := newProbe("flaky", time.Second, func(context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	}, []CheckOption{WithThresholds(2, 2)})

	assert.Nil(t, p.err())

	down = true
	p.run(context.Background())
	assert.True(t, p.healthy.Load())
	p.run(context.Background())
	assert.False(t, p.healthy.Load())
	assert.EqualError(t, p.err(), "down")

	down = false
	p.run(context.Background())
	assert.False(t, p.healthy.Load(), "one pass is below the success threshold")
	p.run(context.Background())
	assert.True(t, p.healthy.Load())
}

func TestStartStop_Concurrent(t *testing.T) {
	h := New()
	h.AddLivenessCheck("failing", time.Second, fail("err"))
	h.AddReadinessCheck("passing", time.Second, ok)
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()
	h.Stop()
	h.Stop()
}

func TestCheckers(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	assert.ErrorContains(t, GoroutineCountCheck(0)(context.Background()), "exceeds threshold")

	assert.NoError(t, PingCheck(pingerFunc(ok))(context.Background()))
	assert.Error(t, PingCheck(pingerFunc(fail("no route")))(context.Background()))
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestRedisCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	check := RedisCheck(rdb)
	require.NoError(t, check(context.Background()))

	mr.Close()
	assert.ErrorContains(t, check(context.Background()), "redis ping")
}
