// Package ratelimit keeps one token bucket per user.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Limiter struct {
	mu     sync.Mutex
	every  rate.Limit
	burst  int
	limits map[string]*rate.Limiter
}

// New allows perMinute events per key with the given burst. perMinute <= 0 disables limiting.
func New(perMinute, burst int) *Limiter {
	if perMinute <= 0 {
		return &Limiter{every: rate.Inf}
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		every:  rate.Every(time.Minute / time.Duration(perMinute)),
		burst:  burst,
		limits: make(map[string]*rate.Limiter),
	}
}

func (l *Limiter) Allow(key string) bool {
	if l.every == rate.Inf {
		return true
	}
	return l.get(key).Allow()
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limits[key]; ok {
		return lim
	}
	lim := rate.NewLimiter(l.every, l.burst)
	l.limits[key] = lim
	return lim
}
