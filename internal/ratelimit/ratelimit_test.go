package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_AdmitsUpToLimitThenRejects(t *testing.T) {
	l := New(Config{Limit: 3, Window: time.Minute})

	assert.True(t, l.Allow("tenant-a"))
	assert.True(t, l.Allow("tenant-a"))
	assert.True(t, l.Allow("tenant-a"))
	assert.False(t, l.Allow("tenant-a"))
}

func TestLimiter_IsolatesBucketsByKey(t *testing.T) {
	l := New(Config{Limit: 1, Window: time.Minute})

	assert.True(t, l.Allow("tenant-a"))
	assert.False(t, l.Allow("tenant-a"))

	assert.True(t, l.Allow("tenant-b"), "exhausting tenant-a's budget must never block tenant-b")
}

func TestLimiter_SlidesWindowForward(t *testing.T) {
	current := time.Now()
	l := New(Config{Limit: 1, Window: time.Second})
	l.now = func() time.Time { return current }

	assert.True(t, l.Allow("tenant-a"))
	assert.False(t, l.Allow("tenant-a"))

	current = current.Add(2 * time.Second)
	assert.True(t, l.Allow("tenant-a"), "requests older than the window must be dropped before counting")
}

func TestLimiter_ConcurrentAccessAcrossTenantsIsRaceFree(t *testing.T) {
	l := New(Config{Limit: 1000, Window: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := "tenant"
			if n%2 == 0 {
				key = "tenant-other"
			}
			for j := 0; j < 20; j++ {
				l.Allow(key)
			}
		}(i)
	}
	wg.Wait()
}

func TestLimiter_EvictIdleRemovesOnlyIdleBuckets(t *testing.T) {
	current := time.Now()
	l := New(Config{Limit: 10, Window: time.Minute})
	l.now = func() time.Time { return current }

	l.Allow("idle-tenant")
	current = current.Add(time.Hour)
	l.Allow("active-tenant")

	l.EvictIdle(30 * time.Minute)

	l.mu.Lock()
	_, idleStillPresent := l.buckets["idle-tenant"]
	_, activeStillPresent := l.buckets["active-tenant"]
	l.mu.Unlock()

	assert.False(t, idleStillPresent)
	assert.True(t, activeStillPresent)
}
