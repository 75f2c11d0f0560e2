package middleware

import (
	"context"
	"fmt"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/aretw0/sluice/pkg/ports"
)

type retentionMiddleware struct {
	next ports.RunStore
	keep int
}

// NewRetentionMiddleware deletes the oldest runs after each save so that at
// most keep records remain. keep <= 0 disables pruning.
func NewRetentionMiddleware(keep int) Middleware {
	return func(next ports.RunStore) ports.RunStore {
		if keep <= 0 {
			return next
		}
		return &retentionMiddleware{next: next, keep: keep}
	}
}

func (m *retentionMiddleware) Save(ctx context.Context, run *domain.RunRecord) error {
	if err := m.next.Save(ctx, run); err != nil {
		return err
	}
	ids, err := m.next.List(ctx)
	if err != nil {
		return fmt.Errorf("retention: %w", err)
	}
	for len(ids) > m.keep {
		if ids[0] != run.ID {
			if err := m.next.Delete(ctx, ids[0]); err != nil {
				return fmt.Errorf("retention: %w", err)
			}
		}
		ids = ids[1:]
	}
	return nil
}

func (m *retentionMiddleware) Load(ctx context.Context, runID string) (*domain.RunRecord, error) {
	return m.next.Load(ctx, runID)
}

func (m *retentionMiddleware) Delete(ctx context.Context, runID string) error {
	return m.next.Delete(ctx, runID)
}

func (m *retentionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
