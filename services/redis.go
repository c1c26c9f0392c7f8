package services

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/redis/go-redis/v9"
)

// RedisService backs the cross-instance rate-limit counters. Each process
// keeps its own in-memory windows as the authority; Redis lets the
// independently scaled instances converge on one shared limit.
type RedisService struct {
	appContext.DefaultService
	redis *redis.Client

	enabled bool
}

const REDIS_SVC = "redis_svc"

func (svc RedisService) Id() string {
	return REDIS_SVC
}

func (svc *RedisService) Configure(ctx *appContext.Context) error {
	svc.enabled = os.Getenv("REDIS_ADDR") != ""
	if svc.enabled {
		svc.initRedisClient()
	}
	return svc.DefaultService.Configure(ctx)
}

func (svc *RedisService) Start() error {
	if svc.redis != nil {
		ctx := context.Background()
		if _, err := svc.redis.Ping(ctx).Result(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
	}
	return nil
}

func (svc *RedisService) Shutdown() {
	if svc.redis != nil {
		_ = svc.redis.Close()
	}
}

func (svc *RedisService) initRedisClient() {
	redisAddr := os.Getenv("REDIS_ADDR")
	redisPassword := os.Getenv("REDIS_PASSWORD")

	redisDB := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			redisDB = db
		}
	}

	svc.redis = redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})
}

func (svc *RedisService) Enabled() bool {
	return svc.enabled && svc.redis != nil
}

func (svc *RedisService) GetClient() *redis.Client {
	return svc.redis
}

// IncrWindow bumps the shared counter for one client/window pair. The key
// expires with the window horizon so idle clients cost nothing.
func (svc *RedisService) IncrWindow(ctx context.Context, clientID, window string, horizon time.Duration) (int64, error) {
	if !svc.Enabled() {
		return 0, nil
	}

	key := fmt.Sprintf("ratelimit:%s:%s", window, clientID)

	pipe := svc.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, horizon)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	return incr.Val(), nil
}

func (svc *RedisService) WindowCount(ctx context.Context, clientID, window string) (int64, error) {
	if !svc.Enabled() {
		return 0, nil
	}

	key := fmt.Sprintf("ratelimit:%s:%s", window, clientID)
	val, err := svc.redis.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

func (svc *RedisService) ResetWindows(ctx context.Context, clientID string, windows []string) error {
	if !svc.Enabled() {
		return nil
	}

	keys := make([]string, 0, len(windows))
	for _, w := range windows {
		keys = append(keys, fmt.Sprintf("ratelimit:%s:%s", w, clientID))
	}
	return svc.redis.Del(ctx, keys...).Err()
}
