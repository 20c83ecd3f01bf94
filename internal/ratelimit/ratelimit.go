// Package ratelimit provides an injectable rate-limiter service for outbound
// calls to external collaborators. Limits are token buckets keyed by
// category so one chatty collaborator cannot starve another.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Service hands out per-category token buckets sharing one configuration.
// The zero rate means unlimited.
type Service struct {
	mu       sync.Mutex
	perSec   rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewService builds a limiter service. A non-positive perSec disables
// limiting for every category.
func NewService(perSec float64, burst int) *Service {
	limit := rate.Inf
	if perSec > 0 {
		limit = rate.Limit(perSec)
	}
	if burst < 1 {
		burst = 1
	}
	return &Service{
		perSec:   limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the category's bucket permits one call or the context is
// canceled.
func (s *Service) Wait(ctx context.Context, category string) error {
	if s == nil {
		return nil
	}
	return s.limiter(category).Wait(ctx)
}

// Allow reports whether one call is permitted right now without blocking.
func (s *Service) Allow(category string) bool {
	if s == nil {
		return true
	}
	return s.limiter(category).Allow()
}

func (s *Service) limiter(category string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[category]
	if !ok {
		limiter = rate.NewLimiter(s.perSec, s.burst)
		s.limiters[category] = limiter
	}
	return limiter
}
