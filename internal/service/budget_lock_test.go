package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetLocker_SerializesOneBudget(t *testing.T) {
	locker := NewBudgetLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "b1")
			require.NoError(t, err)
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestBudgetLocker_BudgetsDoNotContend(t *testing.T) {
	locker := NewBudgetLocker()
	unlock, err := locker.Lock(context.Background(), "b1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	other, err := locker.Lock(ctx, "b2")
	require.NoError(t, err)
	other()
}

func TestBudgetLocker_LockHonorsContext(t *testing.T) {
	locker := NewBudgetLocker()
	unlock, err := locker.Lock(context.Background(), "b1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "b1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Unlock is idempotent and frees the budget
	unlock()
	unlock()
	again, err := locker.Lock(context.Background(), "b1")
	require.NoError(t, err)
	again()
}
