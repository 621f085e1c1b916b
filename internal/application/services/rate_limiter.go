package services

import (
	"sync"
	"time"

	"github.com/skybeam/engage/internal/core/ports"
)

// LimitStatus reports whether a tag is under or over its configured limit.
type LimitStatus int

const (
	LimitStatusUnder LimitStatus = iota
	LimitStatusOver
)

func (s LimitStatus) String() string {
	if s == LimitStatusOver {
		return "over"
	}
	return "under"
}

// RateLimitStatus is a point-in-time admission answer for a tag.
type RateLimitStatus struct {
	Status LimitStatus `json:"status"`
	// NextAvailable is how long until the tag drops back under its limit.
	// Zero while under.
	NextAvailable time.Duration `json:"next_available"`
}

type rateLimitRule struct {
	limit  int
	period time.Duration
	hits   []time.Time
}

// RateLimiter tracks sliding-window usage per tag, entirely in memory. It is
// a pure function of its tracked history and the clock; no I/O.
type RateLimiter struct {
	mu    sync.Mutex
	clock ports.Clock
	rules map[string]*rateLimitRule
}

func NewRateLimiter(clock ports.Clock) *RateLimiter {
	return &RateLimiter{clock: clock, rules: make(map[string]*rateLimitRule)}
}

// SetLimit installs or replaces the rule for a tag. Replacing a rule resets
// its tracked history.
func (r *RateLimiter) SetLimit(tag string, limit int, period time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[tag] = &rateLimitRule{limit: limit, period: period}
}

// Track records one usage for the tag at the current clock time. When the
// history is already at capacity the oldest entry is evicted to make room;
// the tag stays over limit until the window slides.
func (r *RateLimiter) Track(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, ok := r.rules[tag]
	if !ok {
		return
	}

	now := r.clock.Now()
	rule.prune(now)
	if len(rule.hits) >= rule.limit {
		rule.hits = rule.hits[1:]
	}
	rule.hits = append(rule.hits, now)
}

// Status reports the tag's current admission state, or nil for an unknown tag.
func (r *RateLimiter) Status(tag string) *RateLimitStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, ok := r.rules[tag]
	if !ok {
		return nil
	}

	now := r.clock.Now()
	inWindow := 0
	var oldest time.Time
	for _, hit := range rule.hits {
		if now.Sub(hit) < rule.period {
			if inWindow == 0 {
				oldest = hit
			}
			inWindow++
		}
	}

	if inWindow < rule.limit {
		return &RateLimitStatus{Status: LimitStatusUnder}
	}
	return &RateLimitStatus{
		Status:        LimitStatusOver,
		NextAvailable: oldest.Add(rule.period).Sub(now),
	}
}

// prune drops hits that have slid out of the trailing window.
func (rule *rateLimitRule) prune(now time.Time) {
	kept := rule.hits[:0]
	for _, hit := range rule.hits {
		if now.Sub(hit) < rule.period {
			kept = append(kept, hit)
		}
	}
	rule.hits = kept
}
