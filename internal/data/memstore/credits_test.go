package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvascast/canvascast-go/internal/core"
	"github.com/canvascast/canvascast-go/internal/domain/model"
)

func TestConcurrentReservesNeverOverdraw(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, err := store.Purchase(ctx, core.PurchaseCreditsParams{UserID: "user-1", Amount: 100})
	require.NoError(t, err)

	// 50 workers race for holds of 10 against a balance of 100; at most 10
	// may win, and the balance must never go negative.
	const workers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Reserve(ctx, core.ReserveCreditsParams{
				UserID: "user-1",
				JobID:  fmt.Sprintf("job-%d", i),
				Amount: 10,
			})
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, granted)

	balance, err := store.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestFinalizeChargesAndRefundsRemainder(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, err := store.Purchase(ctx, core.PurchaseCreditsParams{UserID: "user-1", Amount: 100})
	require.NoError(t, err)

	ok, err := store.Reserve(ctx, core.ReserveCreditsParams{UserID: "user-1", JobID: "job-1", Amount: 40})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Finalize(ctx, core.FinalizeCreditsParams{
		UserID:    "user-1",
		JobID:     "job-1",
		FinalCost: 25,
	}))

	balance, err := store.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(75), balance)

	entries, err := store.EntriesForJob(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.LedgerEntryUsage, entries[0].EntryType)
	assert.Equal(t, int64(-25), entries[0].Amount)
	assert.Equal(t, model.LedgerEntryRefund, entries[1].EntryType)
	assert.Equal(t, int64(15), entries[1].Amount)
}

func TestFinalizeClampsToReservation(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, err := store.Purchase(ctx, core.PurchaseCreditsParams{UserID: "user-1", Amount: 100})
	require.NoError(t, err)

	ok, err := store.Reserve(ctx, core.ReserveCreditsParams{UserID: "user-1", JobID: "job-1", Amount: 40})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Finalize(ctx, core.FinalizeCreditsParams{
		UserID:    "user-1",
		JobID:     "job-1",
		FinalCost: 400,
	}))

	balance, err := store.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(60), balance, "final charge may never exceed the hold")
}

func TestReleaseRestoresBalance(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, err := store.Purchase(ctx, core.PurchaseCreditsParams{UserID: "user-1", Amount: 50})
	require.NoError(t, err)

	ok, err := store.Reserve(ctx, core.ReserveCreditsParams{UserID: "user-1", JobID: "job-1", Amount: 50})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Release(ctx, "job-1"))

	balance, err := store.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)

	entries, err := store.EntriesForJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Releasing twice is harmless.
	require.NoError(t, store.Release(ctx, "job-1"))
}
