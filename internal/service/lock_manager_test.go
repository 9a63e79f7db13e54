package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockSetOrdersSectionsBeforeStudents(t *testing.T) {
	set := LockSet{Sections: []string{"sec-b", "sec-a", "sec-b"}, Students: []string{"stu-2", "stu-1"}}
	assert.Equal(t, []string{"section:sec-a", "section:sec-b", "student:stu-1", "student:stu-2"}, set.keys())
}

func TestLockManagerTimesOutWithoutHoldingAnything(t *testing.T) {
	m := NewLockManager(20 * time.Millisecond)
	ctx := context.Background()

	release, err := m.Acquire(ctx, LockSet{Students: []string{"stu-1"}})
	require.NoError(t, err)

	_, err = m.Acquire(ctx, LockSet{Sections: []string{"sec-1"}, Students: []string{"stu-1"}})
	require.ErrorIs(t, err, ErrLockTimeout)

	// sec-1 must have been released by the failed attempt.
	other, err := m.Acquire(ctx, LockSet{Sections: []string{"sec-1"}})
	require.NoError(t, err)
	other()
	release()
	assert.Zero(t, m.Active())
}

func TestLockManagerSerializesOverlappingSets(t *testing.T) {
	m := NewLockManager(time.Second)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			set := LockSet{Sections: []string{"sec-1"}, Students: []string{"stu-1"}}
			if i%2 == 0 {
				set = LockSet{Students: []string{"stu-1"}, Sections: []string{"sec-1"}}
			}
			release, err := m.Acquire(ctx, set)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, m.Active())
}

func TestLockManagerReleaseIsIdempotent(t *testing.T) {
	m := NewLockManager(time.Second)
	release, err := m.Acquire(context.Background(), LockSet{Sections: []string{"sec-1"}})
	require.NoError(t, err)
	release()
	release()
	assert.Zero(t, m.Active())
}
