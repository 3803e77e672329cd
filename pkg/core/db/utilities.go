package db

import (
	"context"
	"strconv"
	"time"
)

// toKey converts an int64 ID into a cache key.
func toKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Ctx creates a new context with a default timeout of 5 seconds.
func Ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
