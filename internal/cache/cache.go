package cache

import (
	"context"
	"time"

	"svbilling/backend/internal/domain"
)

// SummaryCache holds the computed sales summary between invoice writes.
type SummaryCache interface {
	GetSummary(ctx context.Context) (*domain.SalesSummary, bool, error)
	SetSummary(ctx context.Context, summary *domain.SalesSummary, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) GetSummary(_ context.Context) (*domain.SalesSummary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) SetSummary(_ context.Context, _ *domain.SalesSummary, _ time.Duration) error {
	return nil
}

func (NoopSummaryCache) Invalidate(_ context.Context) error {
	return nil
}
