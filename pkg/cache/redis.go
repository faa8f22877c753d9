package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/course-admin-api/pkg/config"
)

// NewRedis returns a configured Redis client after a ping with a short deadline.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	return client, nil
}

// CourseKey is the cache key for a course detail payload.
func CourseKey(courseID string) string {
	return "course:" + courseID
}

// CoursePattern matches every cached course entry.
const CoursePattern = "course:*"

// DashboardKey holds the admin overview payload.
const DashboardKey = "dashboard:summary"
