package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowRespectsBurst(t *testing.T) {
	svc := NewService(1, 2)

	if !svc.Allow("worker.submit") || !svc.Allow("worker.submit") {
		t.Fatal("burst capacity should admit the first two calls")
	}
	if svc.Allow("worker.submit") {
		t.Fatal("third immediate call should be rejected")
	}

	// Categories are limited independently.
	if !svc.Allow("hosting.visibility") {
		t.Fatal("fresh category should have full burst")
	}
}

func TestUnlimitedWhenRateNotConfigured(t *testing.T) {
	svc := NewService(0, 0)
	for i := 0; i < 100; i++ {
		if !svc.Allow("anything") {
			t.Fatal("unconfigured limiter must not throttle")
		}
	}
}

func TestNilServiceAllows(t *testing.T) {
	var svc *Service
	if !svc.Allow("worker.submit") {
		t.Fatal("nil service must not throttle")
	}
	if err := svc.Wait(context.Background(), "worker.submit"); err != nil {
		t.Fatalf("nil service wait: %v", err)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	svc := NewService(0.001, 1)
	if err := svc.Wait(context.Background(), "slow"); err != nil {
		t.Fatalf("first wait should pass on burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := svc.Wait(ctx, "slow"); err == nil {
		t.Fatal("expected wait to fail under an expiring context")
	}
}
