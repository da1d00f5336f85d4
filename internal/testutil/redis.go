package testutil

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/config"
	"github.com/redis/go-redis/v9"
)

// SetupTestRedis connects to the configured redis on a separate logical
// database (REDIS_TEST_DB, default 15). Tests are skipped when redis is not
// reachable.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	if os.Getenv("SKIP_REDIS_TESTS") != "" {
		t.Skip("SKIP_REDIS_TESTS set")
	}
	loadDotEnv()

	rc := config.RedisConfig{Host: "127.0.0.1", Port: 6379}
	if cfg, err := config.Load(); err == nil && cfg.Redis.Host != "" {
		rc = cfg.Redis
	}
	db := 15
	if v, err := strconv.Atoi(os.Getenv("REDIS_TEST_DB")); err == nil {
		db = v
	}

	rdb := redis.NewClient(&redis.Options{Addr: rc.Addr(), Password: rc.Password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}
