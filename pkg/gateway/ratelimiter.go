package gateway

import (
	"sync"
	"time"

	"github.com/harun/docmcp/pkg/identity"
)

const (
	reasonTooManyConcurrent = "too many concurrent requests"
	reasonRateLimited       = "rate limit exceeded"

	rateWindow = time.Minute
)

// RateLimits bounds one session's request rate and parallelism.
type RateLimits struct {
	RequestsPerMinute int
	MaxConcurrent     int
}

// DefaultRateLimits returns the limits applied when none are configured.
func DefaultRateLimits() RateLimits {
	return RateLimits{RequestsPerMinute: 600, MaxConcurrent: 10}
}

func (l RateLimits) withDefaults() RateLimits {
	d := DefaultRateLimits()
	if l.RequestsPerMinute <= 0 {
		l.RequestsPerMinute = d.RequestsPerMinute
	}
	if l.MaxConcurrent <= 0 {
		l.MaxConcurrent = d.MaxConcurrent
	}
	return l
}

// limiter is one session's sliding window of request start times plus a
// count of requests still running.
type limiter struct {
	mu     sync.Mutex
	limits RateLimits
	starts []time.Time
	active int
}

// admit reserves a slot at now. On success the returned release must be
// called exactly once when the request finishes.
func (l *limiter) admit(now time.Time) (release func(), rejected *RPCError) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active >= l.limits.MaxConcurrent {
		return nil, &RPCError{Code: TooManyConcurrent, Message: reasonTooManyConcurrent}
	}
	l.pruneLocked(now)
	if len(l.starts) >= l.limits.RequestsPerMinute {
		return nil, &RPCError{Code: RateLimitExceeded, Message: reasonRateLimited}
	}

	l.starts = append(l.starts, now)
	l.active++

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.active--
			l.mu.Unlock()
		})
	}, nil
}

func (l *limiter) stats(now time.Time) (recent, active int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(now)
	return len(l.starts), l.active
}

// pruneLocked drops start times older than the window. They are appended in
// order, so the expired ones form a prefix.
func (l *limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-rateWindow)
	i := 0
	for i < len(l.starts) && !l.starts[i].After(cutoff) {
		i++
	}
	l.starts = l.starts[i:]
}

// sessionLimits keys limiters by caller identity, so a websocket client and
// HTTP calls carrying the same X-Session-ID draw from one budget. Callers
// without an identity share the anonymous budget.
type sessionLimits struct {
	mu     sync.Mutex
	limits RateLimits
	byID   map[string]*limiter
	now    func() time.Time
}

func newSessionLimits(limits RateLimits) *sessionLimits {
	return &sessionLimits{
		limits: limits.withDefaults(),
		byID:   make(map[string]*limiter),
		now:    time.Now,
	}
}

func (s *sessionLimits) get(id string) *limiter {
	if id == "" {
		id = identity.Anonymous
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.byID[id]
	if !ok {
		l = &limiter{limits: s.limits}
		s.byID[id] = l
	}
	return l
}

// admit reserves a request slot for id.
func (s *sessionLimits) admit(id string) (func(), *RPCError) {
	return s.get(id).admit(s.now())
}

// forget drops the limiter of a departed session once nothing is running on it.
func (s *sessionLimits) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.byID[id]; ok {
		if _, active := l.stats(s.now()); active == 0 {
			delete(s.byID, id)
		}
	}
}

func (s *sessionLimits) tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
