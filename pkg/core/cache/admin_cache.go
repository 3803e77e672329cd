package cache

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Laky-64/gologging"
)

// MemberLister fetches the admin user ids of a chat from the platform.
type MemberLister interface {
	ChatAdmins(ctx context.Context, chatID int64) ([]int64, error)
}

// failedLookupTTL keeps a failed fetch from being retried on every command.
const failedLookupTTL = time.Minute

// AdminCache keeps per-chat admin lists for a bounded time.
type AdminCache struct {
	lister MemberLister
	cache  *Cache[[]int64]
}

// NewAdminCache returns a cache that asks lister on a miss and trusts the answer for ttl.
func NewAdminCache(lister MemberLister, ttl time.Duration) *AdminCache {
	return &AdminCache{lister: lister, cache: NewCache[[]int64](ttl)}
}

func adminKey(chatID int64) string {
	return fmt.Sprintf("admins:%d", chatID)
}

// Admins returns the admin ids of chatID, from the cache unless forceReload is set.
func (a *AdminCache) Admins(ctx context.Context, chatID int64, forceReload bool) ([]int64, error) {
	key := adminKey(chatID)
	if !forceReload {
		if ids, ok := a.cache.Get(key); ok {
			return ids, nil
		}
	}

	ids, err := a.lister.ChatAdmins(ctx, chatID)
	if err != nil {
		gologging.WarnF("[AdminCache] fetch for chat %d failed: %v", chatID, err)
		a.cache.SetWithTTL(key, []int64{}, failedLookupTTL)
		return nil, err
	}

	a.cache.Set(key, ids)
	return ids, nil
}

// IsAdmin reports whether userID administers chatID.
func (a *AdminCache) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	ids, err := a.Admins(ctx, chatID, false)
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, userID), nil
}

// Invalidate drops the cached list for chatID, or every list when chatID is 0.
func (a *AdminCache) Invalidate(chatID int64) {
	if chatID == 0 {
		a.cache.Clear()
		return
	}
	a.cache.Delete(adminKey(chatID))
}
