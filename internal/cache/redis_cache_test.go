package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"svbilling/backend/internal/domain"
)

func newTestCache(t *testing.T) *RedisSummaryCache {
	t.Helper()

	mr := miniredis.RunT(t)
	c := NewRedisSummaryCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	return c
}

func TestSummaryCacheRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if _, found, err := c.GetSummary(ctx); err != nil || found {
		t.Fatalf("expected empty cache, found=%v err=%v", found, err)
	}

	want := &domain.SalesSummary{
		InvoiceCount: 3,
		TotalCents:   45000,
		PaidCount:    1,
		PaidCents:    18000,
		UnpaidCount:  2,
		UnpaidCents:  27000,
	}
	if err := c.SetSummary(ctx, want, time.Minute); err != nil {
		t.Fatalf("set summary: %v", err)
	}

	got, found, err := c.GetSummary(ctx)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if !found {
		t.Fatalf("expected cache hit")
	}
	if *got != *want {
		t.Fatalf("summary mismatch: got %+v want %+v", got, want)
	}
}

func TestSummaryCacheInvalidate(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.SetSummary(ctx, &domain.SalesSummary{InvoiceCount: 1}, time.Minute); err != nil {
		t.Fatalf("set summary: %v", err)
	}
	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	_, found, err := c.GetSummary(ctx)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if found {
		t.Fatalf("expected cache miss after invalidate")
	}
}

func TestCloseAfterFailedPing(t *testing.T) {
	// An unreachable redis must leave a client that can still be closed
	// cleanly, since startup falls back to the noop cache in that case.
	c := NewRedisSummaryCache("127.0.0.1:1", "", 0)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := c.Ping(ctx); err == nil {
		t.Fatalf("expected ping to an unreachable address to fail")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close after failed ping: %v", err)
	}
}

func TestSetNilSummaryIsNoop(t *testing.T) {
	c := newTestCache(t)

	if err := c.SetSummary(context.Background(), nil, time.Minute); err != nil {
		t.Fatalf("set nil summary: %v", err)
	}
	if _, found, _ := c.GetSummary(context.Background()); found {
		t.Fatalf("nil summary should not be cached")
	}
}
