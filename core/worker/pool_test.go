package worker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolRunsTaskAtEveryPriority(t *testing.T) {
	p := NewPool(Counts{High: 1, Normal: 1, Low: 1})
	defer p.Stop()

	var wg sync.WaitGroup
	wg.Add(4)
	var got [4]int32
	push := func(idx int, pr Priority) {
		p.Push(pr, []byte{byte(idx)}, func(b []byte) {
			atomic.StoreInt32(&got[idx], int32(b[0])+1)
			wg.Done()
		})
	}
	push(0, Top)
	push(1, High)
	push(2, Normal)
	push(3, Low)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "tasks never ran")
	}
	for i := 0; i < 4; i++ {
		require.Equal(t, int32(i+1), atomic.LoadInt32(&got[i]))
	}
}

// A Top-only pool (the common default for fabricserver/fabricclient tests
// that take zero High/Normal/Low workers) must still drain lower-priority
// queues via the Top worker's steal order, exercising the
// reflect.Select-based blockingDequeue fallback.
func TestPoolTopWorkerStealsLowerPriorities(t *testing.T) {
	p := NewPool(Counts{})
	defer p.Stop()

	done := make(chan struct{})
	p.Push(Low, nil, func([]byte) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "low-priority task never ran by the sole Top worker")
	}
}

func TestPoolStopDropsOutstandingTasksSilently(t *testing.T) {
	p := NewPool(Counts{})

	var ran int32
	// Keep the sole Top worker busy until Stop has begun, so the Low tasks
	// below are still queued when Stop runs: Stop must drain them without
	// panicking and without running the dropped tasks.
	p.Push(Top, nil, func([]byte) {
		for !p.IsHalted() {
			time.Sleep(time.Millisecond)
		}
	})
	for i := 0; i < 50; i++ {
		p.Push(Low, nil, func([]byte) { atomic.AddInt32(&ran, 1) })
	}
	p.Stop()

	// Pushing after Stop must not block or panic.
	p.Push(Top, nil, func([]byte) { atomic.AddInt32(&ran, 1) })
	require.Zero(t, atomic.LoadInt32(&ran), "tasks queued at/after Stop must not run")
}

func TestStealOrderHighestFirstBelowPrimary(t *testing.T) {
	p := &Pool{}
	order := p.stealOrder(High)
	require.Equal(t, []Priority{High, Normal, Low}, order)

	order = p.stealOrder(Top)
	require.Equal(t, []Priority{Top, High, Normal, Low}, order)

	order = p.stealOrder(Low)
	require.Equal(t, []Priority{Low}, order)
}
