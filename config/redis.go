package config

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yoockh/yooproctor/internal/cache"
)

var RedisClient *redis.Client

func redisAddr() string {
	for _, k := range []string{"REDIS_ADDR", "REDIS_URI", "REDIS_URL"} {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// RedisConfigured reports whether any Redis address variable is set.
func RedisConfigured() bool {
	return redisAddr() != ""
}

// InitRedis connects the client used for session markers and the recording
// chunk stream. REDIS_ADDR may be host:port or a redis:// URL.
func InitRedis() error {
	val := redisAddr()
	if val == "" {
		return errors.New("REDIS_ADDR (or REDIS_URI/REDIS_URL) environment variable is not set")
	}

	if strings.HasPrefix(val, "redis://") || strings.HasPrefix(val, "rediss://") {
		opt, err := redis.ParseURL(val)
		if err != nil {
			return err
		}
		RedisClient = redis.NewClient(opt)
	} else {
		RedisClient = redis.NewClient(&redis.Options{Addr: val})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := RedisClient.Ping(ctx).Result()
	return err
}

// InitCache returns the marker cache. Without a Redis client, markers live in
// process memory and only survive reconnects to the same instance.
func InitCache() cache.Cache {
	if RedisClient == nil {
		return cache.NewMemoryCache()
	}
	return cache.NewRedisCache(RedisClient)
}
