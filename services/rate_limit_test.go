package services

import (
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter() *RateLimitService {
	return &RateLimitService{
		windows: []RateWindow{
			{Name: WindowBurst, Horizon: 10 * time.Second, Limit: 10},
			{Name: WindowMinute, Horizon: time.Minute, Limit: 60},
			{Name: WindowHour, Horizon: time.Hour, Limit: 1000},
		},
		clients: make(map[string]*clientWindows),
	}
}

func TestRateLimitAllowsUnderBurstLimit(t *testing.T) {
	svc := newTestLimiter()
	now := time.Now()

	for i := 0; i < 10; i++ {
		info := svc.CheckAt("1.2.3.4", now)
		require.True(t, info.Allowed, "request %d should be allowed", i+1)
		svc.RecordAt("1.2.3.4", now)
		now = now.Add(100 * time.Millisecond)
	}
}

func TestRateLimitDeniesCitingBurstWindow(t *testing.T) {
	svc := newTestLimiter()
	now := time.Now()

	// 10 requests inside 5 seconds fill the burst window.
	for i := 0; i < 10; i++ {
		svc.RecordAt("1.2.3.4", now.Add(time.Duration(i)*500*time.Millisecond))
	}

	info := svc.CheckAt("1.2.3.4", now.Add(5*time.Second))
	assert.False(t, info.Allowed)
	assert.Equal(t, WindowBurst, info.Window)
	assert.Greater(t, info.RetryAfter, 0)
	assert.NotNil(t, info.ResetTime)
}

func TestRateLimitDeniesCitingTightestWindow(t *testing.T) {
	svc := newTestLimiter()
	now := time.Now()

	// 60 requests spread over the minute exceed the minute window while
	// the burst window has drained.
	for i := 0; i < 60; i++ {
		svc.RecordAt("1.2.3.4", now.Add(time.Duration(i)*900*time.Millisecond))
	}

	info := svc.CheckAt("1.2.3.4", now.Add(56*time.Second))
	assert.False(t, info.Allowed)
	assert.Equal(t, WindowMinute, info.Window)
}

func TestRateLimitRecoversAfterHorizon(t *testing.T) {
	svc := newTestLimiter()
	now := time.Now()

	for i := 0; i < 10; i++ {
		svc.RecordAt("1.2.3.4", now)
	}
	require.False(t, svc.CheckAt("1.2.3.4", now).Allowed)

	// Past the burst horizon the same client is admitted again.
	info := svc.CheckAt("1.2.3.4", now.Add(11*time.Second))
	assert.True(t, info.Allowed)
}

func TestRateLimitCheckIsIdempotent(t *testing.T) {
	svc := newTestLimiter()
	now := time.Now()

	for i := 0; i < 10; i++ {
		svc.RecordAt("1.2.3.4", now)
	}

	first := svc.CheckAt("1.2.3.4", now)
	second := svc.CheckAt("1.2.3.4", now)
	assert.Equal(t, first.Allowed, second.Allowed)
	assert.Equal(t, first.Window, second.Window)
}

func TestRateLimitClientsAreIndependent(t *testing.T) {
	svc := newTestLimiter()
	now := time.Now()

	for i := 0; i < 10; i++ {
		svc.RecordAt("1.2.3.4", now)
	}

	assert.False(t, svc.CheckAt("1.2.3.4", now).Allowed)
	assert.True(t, svc.CheckAt("5.6.7.8", now).Allowed)
}

func TestRateLimitHourWindow(t *testing.T) {
	svc := newTestLimiter()
	svc.windows[2].Limit = 100 // keep the test fast
	now := time.Now()

	// Trickle slow enough that burst and minute never trip.
	for i := 0; i < 100; i++ {
		svc.RecordAt("1.2.3.4", now.Add(time.Duration(i)*20*time.Second))
	}

	info := svc.CheckAt("1.2.3.4", now.Add(100*20*time.Second))
	assert.False(t, info.Allowed)
	assert.Equal(t, WindowHour, info.Window)
}

func TestRateLimitRemainingCounts(t *testing.T) {
	svc := newTestLimiter()
	now := time.Now()

	info := svc.CheckAt("1.2.3.4", now)
	assert.Equal(t, 10, info.Remaining)

	svc.RecordAt("1.2.3.4", now)
	info = svc.CheckAt("1.2.3.4", now)
	assert.Equal(t, 9, info.Remaining)
}

func TestPruneWindow(t *testing.T) {
	now := time.Now()
	stamps := []time.Time{
		now.Add(-15 * time.Second),
		now.Add(-12 * time.Second),
		now.Add(-5 * time.Second),
		now.Add(-1 * time.Second),
	}

	pruned := pruneWindow(stamps, now, 10*time.Second)
	require.Len(t, pruned, 2)
	assert.Equal(t, stamps[2], pruned[0])

	// Pruning again is a no-op.
	again := pruneWindow(pruned, now, 10*time.Second)
	assert.Equal(t, pruned, again)
}

func TestPruneWindowEmpty(t *testing.T) {
	assert.Empty(t, pruneWindow(nil, time.Now(), time.Minute))
}

func TestRateLimitResetClient(t *testing.T) {
	svc := newTestLimiter()
	now := time.Now()

	for i := 0; i < 10; i++ {
		svc.RecordAt("1.2.3.4", now)
	}
	require.False(t, svc.CheckAt("1.2.3.4", now).Allowed)

	svc.ResetClient("1.2.3.4")
	assert.True(t, svc.CheckAt("1.2.3.4", now).Allowed)
}

func TestGetClientIPHeaderChain(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(GetClientIP(c))
	})

	fetch := func(headers map[string]string) string {
		req := httptest.NewRequest("GET", "/", nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	// First forwarded hop wins.
	assert.Equal(t, "9.9.9.9", fetch(map[string]string{"X-Forwarded-For": "9.9.9.9, 10.0.0.1"}))
	assert.Equal(t, "8.8.8.8", fetch(map[string]string{"X-Real-IP": "8.8.8.8"}))
	assert.NotEmpty(t, fetch(nil))
}

func TestRateLimitLazyPruneBounds(t *testing.T) {
	svc := newTestLimiter()
	now := time.Now()

	// Saturate, advance beyond every horizon, then confirm state shrinks
	// on the next touch instead of growing without bound.
	for i := 0; i < 10; i++ {
		svc.RecordAt("1.2.3.4", now)
	}
	later := now.Add(2 * time.Hour)
	svc.RecordAt("1.2.3.4", later)

	svc.mutex.Lock()
	cw := svc.clients["1.2.3.4"]
	for i := range cw.stamps {
		assert.Len(t, cw.stamps[i], 1, fmt.Sprintf("window %d should hold only the fresh stamp", i))
	}
	svc.mutex.Unlock()
}
