package ports

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractRun(id string, status domain.RunStatus) *domain.RunRecord {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &domain.RunRecord{
		ID:        id,
		Project:   "contract",
		Tasks:     []string{"build"},
		Status:    status,
		StartedAt: start,
		EndedAt:   start.Add(1500 * time.Millisecond),
		Results: []domain.TaskResult{
			{Name: "clean", Status: domain.TaskSucceeded, StartedAt: start, EndedAt: start.Add(time.Second)},
			{Name: "build", Status: domain.TaskSkipped},
		},
	}
}

// RunRunStoreContract runs a suite of tests to verify that a RunStore implementation
// adheres to the defined interface contract.
func RunRunStoreContract(t *testing.T, store RunStore) {
	ctx := context.Background()
	runID := "contract-run-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		run := contractRun(runID, domain.RunFailed)
		run.Error = "task 'build' failed"

		require.NoError(t, store.Save(ctx, run), "Save should not return error")

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, run.ID, loaded.ID)
		assert.Equal(t, domain.RunFailed, loaded.Status)
		assert.Equal(t, run.Error, loaded.Error)
		assert.True(t, run.StartedAt.Equal(loaded.StartedAt))
		require.Len(t, loaded.Results, 2)
		assert.Equal(t, time.Second, loaded.Results[0].Duration())
		assert.Equal(t, domain.TaskSkipped, loaded.Results[1].Status)
	})

	t.Run("Load returns a copy", func(t *testing.T) {
		run := contractRun(runID+"-copy", domain.RunSucceeded)
		require.NoError(t, store.Save(ctx, run))
		defer func() { _ = store.Delete(ctx, run.ID) }()

		run.Status = domain.RunFailed
		loaded, err := store.Load(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.RunSucceeded, loaded.Status)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, contractRun(runID, domain.RunSucceeded)))

		require.NoError(t, store.Delete(ctx, runID), "Delete should not return error")

		_, err := store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound, "Load after Delete should return ErrRunNotFound")
		assert.NoError(t, store.Delete(ctx, runID), "Deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1 := runID + "-1"
		id2 := runID + "-2"
		_ = store.Save(ctx, contractRun(id1, domain.RunSucceeded))
		_ = store.Save(ctx, contractRun(id2, domain.RunSucceeded))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		runs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, runs, id1)
		assert.Contains(t, runs, id2)
	})
}

// RunLockerContract verifies mutual exclusion and release for a DistributedLocker.
func RunLockerContract(t *testing.T, locker DistributedLocker) {
	key := "contract-lock-" + time.Now().Format("150405.000")

	t.Run("Mutual Exclusion", func(t *testing.T) {
		var inside, maxInside int32
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := locker.Lock(context.Background(), key, 5*time.Second)
				if !assert.NoError(t, err) {
					return
				}
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				assert.NoError(t, unlock(context.Background()))
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), maxInside)
	})

	t.Run("Context Cancellation", func(t *testing.T) {
		unlock, err := locker.Lock(context.Background(), key, 5*time.Second)
		require.NoError(t, err)
		defer func() { _ = unlock(context.Background()) }()

		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(ctx, key, 5*time.Second)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
