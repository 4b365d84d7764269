package exchange

import "testing"

func TestSetRateClampsTokens(t *testing.T) {
	l := NewTokenBucketLimiter(8, 16)

	l.SetRate(4, 2)
	l.mu.Lock()
	if l.rate != 4 || l.burst != 2 {
		t.Fatalf("rate/burst not applied: %v/%d", l.rate, l.burst)
	}
	if l.tokens > 2 {
		t.Fatalf("tokens must shrink to new burst, got %v", l.tokens)
	}
	l.mu.Unlock()

	// 非法参数收口到最小值
	l.SetRate(0, -1)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rate != 1 || l.burst != 1 {
		t.Fatalf("invalid params not clamped: %v/%d", l.rate, l.burst)
	}
}
