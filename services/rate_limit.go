package services

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/datashield-labs/warden_api/dto"
	"github.com/datashield-labs/warden_api/shared"
)

const (
	WindowBurst  = "burst"
	WindowMinute = "minute"
	WindowHour   = "hour"
)

// RateWindow is one sliding admission window: a horizon and the number of
// requests allowed inside it.
type RateWindow struct {
	Name    string
	Horizon time.Duration
	Limit   int
}

type clientWindows struct {
	stamps [][]time.Time
}

// RateLimitService applies three independent sliding windows per client
// identity, checked tightest first. State is per process; when Redis is
// configured the counters are mirrored there so all instances converge on
// one shared limit. The limiter fails open: it must never become an
// outage vector.
type RateLimitService struct {
	appContext.DefaultService

	windows []RateWindow
	clients map[string]*clientWindows
	mutex   sync.Mutex

	redisSvc *RedisService
}

const RATE_LIMIT_SVC = "rate_limit_svc"

func (svc RateLimitService) Id() string {
	return RATE_LIMIT_SVC
}

func (svc *RateLimitService) Configure(ctx *appContext.Context) error {
	burst, minute, hour := 10, 60, 1000
	if os.Getenv("ENVIRONMENT") == shared.EnvStaging {
		burst, minute, hour = 20, 120, 2000
	}

	if v, err := strconv.Atoi(os.Getenv("RATE_BURST_LIMIT")); err == nil && v > 0 {
		burst = v
	}
	if v, err := strconv.Atoi(os.Getenv("RATE_MINUTE_LIMIT")); err == nil && v > 0 {
		minute = v
	}
	if v, err := strconv.Atoi(os.Getenv("RATE_HOUR_LIMIT")); err == nil && v > 0 {
		hour = v
	}

	// Ascending horizon order so the tightest window produces the
	// rejection reason.
	svc.windows = []RateWindow{
		{Name: WindowBurst, Horizon: 10 * time.Second, Limit: burst},
		{Name: WindowMinute, Horizon: time.Minute, Limit: minute},
		{Name: WindowHour, Horizon: time.Hour, Limit: hour},
	}
	svc.clients = make(map[string]*clientWindows)

	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitService) Start() error {
	if redisSvc, ok := svc.Service(REDIS_SVC).(*RedisService); ok {
		svc.redisSvc = redisSvc
	}
	return nil
}

func (svc *RateLimitService) Windows() []RateWindow {
	return svc.windows
}

// ==================== CORE SLIDING-WINDOW LOGIC ====================

// CheckAt prunes every window and compares the remaining counts against
// the limits. Deny cites the first (tightest) exceeded window.
func (svc *RateLimitService) CheckAt(clientID string, now time.Time) *dto.RateLimitInfo {
	mirrored := svc.sharedCounts(clientID)

	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	cw := svc.clients[clientID]
	if cw == nil {
		cw = &clientWindows{stamps: make([][]time.Time, len(svc.windows))}
		svc.clients[clientID] = cw
	}

	remaining := -1
	for i, w := range svc.windows {
		cw.stamps[i] = pruneWindow(cw.stamps[i], now, w.Horizon)

		count := len(cw.stamps[i])
		if mirrored != nil && mirrored[i] > int64(count) {
			count = int(mirrored[i])
		}

		if count >= w.Limit {
			retryAfter := int(w.Horizon.Seconds())
			if len(cw.stamps[i]) > 0 {
				reset := cw.stamps[i][0].Add(w.Horizon)
				if secs := int(reset.Sub(now).Seconds()) + 1; secs > 0 {
					retryAfter = secs
				}
			}
			reset := now.Add(time.Duration(retryAfter) * time.Second)
			return &dto.RateLimitInfo{
				Allowed:    false,
				Window:     w.Name,
				Remaining:  0,
				RetryAfter: retryAfter,
				ResetTime:  &reset,
			}
		}

		if left := w.Limit - count; remaining < 0 || left < remaining {
			remaining = left
		}
	}

	return &dto.RateLimitInfo{Allowed: true, Remaining: remaining}
}

// RecordAt appends the timestamp to all three windows. Recording happens
// on denied requests too: repeated probing keeps the client saturated
// instead of letting near-misses reset the limit.
func (svc *RateLimitService) RecordAt(clientID string, now time.Time) {
	svc.mutex.Lock()
	cw := svc.clients[clientID]
	if cw == nil {
		cw = &clientWindows{stamps: make([][]time.Time, len(svc.windows))}
		svc.clients[clientID] = cw
	}
	for i, w := range svc.windows {
		cw.stamps[i] = append(pruneWindow(cw.stamps[i], now, w.Horizon), now)
	}
	svc.mutex.Unlock()

	svc.mirrorToShared(clientID)
}

func (svc *RateLimitService) Check(clientID string) *dto.RateLimitInfo {
	return svc.CheckAt(clientID, time.Now())
}

func (svc *RateLimitService) Record(clientID string) {
	svc.RecordAt(clientID, time.Now())
}

// pruneWindow drops timestamps older than the horizon. Entries are kept
// in append order, so the cutoff is a prefix.
func pruneWindow(stamps []time.Time, now time.Time, horizon time.Duration) []time.Time {
	cutoff := now.Add(-horizon)
	i := 0
	for ; i < len(stamps); i++ {
		if stamps[i].After(cutoff) {
			break
		}
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0:0], stamps[i:]...)
}

// ==================== SHARED COUNTERS (REDIS L2) ====================

func (svc *RateLimitService) sharedCounts(clientID string) []int64 {
	if svc.redisSvc == nil || !svc.redisSvc.Enabled() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	counts := make([]int64, len(svc.windows))
	for i, w := range svc.windows {
		n, err := svc.redisSvc.WindowCount(ctx, clientID, w.Name)
		if err != nil {
			// Shared counters are advisory; local state decides.
			log.WithError(err).Debug("Shared rate-limit counter unavailable")
			return nil
		}
		counts[i] = n
	}
	return counts
}

func (svc *RateLimitService) mirrorToShared(clientID string) {
	if svc.redisSvc == nil || !svc.redisSvc.Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	for _, w := range svc.windows {
		if _, err := svc.redisSvc.IncrWindow(ctx, clientID, w.Name, w.Horizon); err != nil {
			log.WithError(err).Debug("Failed to mirror rate-limit counter")
			return
		}
	}
}

// ==================== MIDDLEWARE ====================

// IPRateLimit admits or rejects every inbound request by client identity.
// Limiter failures fail open: a broken limiter must never block traffic.
func (svc *RateLimitService) IPRateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := GetClientIP(c)
		c.Locals(shared.ClientIP, clientID)
		c.Locals(shared.UserAgent, c.Get(fiber.HeaderUserAgent))

		info := func() (info *dto.RateLimitInfo) {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("panic", r).Error("Rate limiter failure, failing open")
					info = &dto.RateLimitInfo{Allowed: true, Remaining: -1}
				}
			}()
			info = svc.CheckAt(clientID, time.Now())
			svc.RecordAt(clientID, time.Now())
			return info
		}()

		svc.addRateLimitHeaders(c, info)

		if !info.Allowed {
			log.WithFields(log.Fields{
				"client_ip": clientID,
				"window":    info.Window,
				"path":      c.Path(),
			}).Warn("Rate limit exceeded")
			rateLimitDeniedTotal.WithLabelValues(info.Window).Inc()

			return shared.NewRateLimitError(
				fmt.Sprintf("Too many requests (%s limit). Please try again later.", info.Window),
				info.RetryAfter,
			)
		}

		return c.Next()
	}
}

func (svc *RateLimitService) addRateLimitHeaders(c *fiber.Ctx, info *dto.RateLimitInfo) {
	if info == nil {
		return
	}

	if info.Remaining >= 0 {
		c.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	}
	if info.ResetTime != nil {
		c.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
	if info.RetryAfter > 0 {
		c.Set("Retry-After", strconv.Itoa(info.RetryAfter))
	}
}

// ==================== ADMIN FUNCTIONS ====================

func (svc *RateLimitService) ActiveClients() int {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()
	return len(svc.clients)
}

func (svc *RateLimitService) ResetClient(clientID string) {
	svc.mutex.Lock()
	delete(svc.clients, clientID)
	svc.mutex.Unlock()

	if svc.redisSvc != nil && svc.redisSvc.Enabled() {
		names := make([]string, len(svc.windows))
		for i, w := range svc.windows {
			names[i] = w.Name
		}
		ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		defer cancel()
		_ = svc.redisSvc.ResetWindows(ctx, clientID, names)
	}
}

// ==================== UTILITY FUNCTIONS ====================

// GetClientIP resolves the client identity: first proxy header wins, then
// the transport peer address. The value is not authenticated; it is used
// only for rate limiting and anomaly detection.
func GetClientIP(c *fiber.Ctx) string {
	forwarded := c.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			if ip := strings.TrimSpace(ips[0]); ip != "" {
				return ip
			}
		}
	}

	if realIP := c.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	ip, _, err := net.SplitHostPort(c.Context().RemoteAddr().String())
	if err != nil {
		return c.Context().RemoteAddr().String()
	}
	return ip
}
