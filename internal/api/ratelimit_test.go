package api

import "testing"

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	rl := NewRateLimiter(3, 60)
	for i := 0; i < 3; i++ {
		if !rl.Allow("key") {
			t.Fatalf("expected attempt %d to be allowed", i+1)
		}
	}
}

func TestRateLimiterRejectsOverBudget(t *testing.T) {
	rl := NewRateLimiter(2, 60)
	rl.Allow("key")
	rl.Allow("key")
	if rl.Allow("key") {
		t.Fatal("expected third attempt within the window to be rejected")
	}
}

func TestRateLimiterIsolatesKeys(t *testing.T) {
	rl := NewRateLimiter(1, 60)
	rl.Allow("a")
	if !rl.Allow("b") {
		t.Fatal("expected a different key to have its own budget")
	}
}
