package cache

import (
	"context"
	"time"

	"petpos/terminal/internal/domain"
)

// SnapshotCache keeps the last normalized catalog snapshot so a terminal
// restart does not need a cold remote fetch before the sales screen works.
type SnapshotCache interface {
	Get(ctx context.Context, key string) ([]domain.Product, bool, error)
	Set(ctx context.Context, key string, products []domain.Product, ttl time.Duration) error
}

type NoopSnapshotCache struct{}

func (NoopSnapshotCache) Get(_ context.Context, _ string) ([]domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopSnapshotCache) Set(_ context.Context, _ string, _ []domain.Product, _ time.Duration) error {
	return nil
}
