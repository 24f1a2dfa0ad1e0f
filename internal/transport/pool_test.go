package transport

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsTasks(t *testing.T) {
	p := NewPool(4, zerolog.Nop())
	defer p.Stop()

	var ran atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.True(t, p.Submit(func() {
			defer wg.Done()
			ran.Add(1)
		}))
	}
	wg.Wait()

	assert.Equal(t, int64(20), ran.Load())
	assert.Equal(t, int64(20), p.Stats().Executed)
}

func TestPoolRecoversFromPanic(t *testing.T) {
	p := NewPool(1, zerolog.Nop())
	defer p.Stop()

	done := make(chan struct{})
	p.Submit(func() { panic("boom") })
	p.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
	assert.Equal(t, int64(1), p.Stats().Panicked)
}

func TestPoolStopDrainsQueue(t *testing.T) {
	p := NewPool(1, zerolog.Nop())

	var ran atomic.Int64
	p.Submit(func() {
		time.Sleep(20 * time.Millisecond)
		ran.Add(1)
	})
	for i := 0; i < 5; i++ {
		p.Submit(func() { ran.Add(1) })
	}

	p.Stop()
	assert.Equal(t, int64(6), ran.Load(), "queued tasks finish before Stop returns")
}

func TestPoolSubmitAfterStop(t *testing.T) {
	p := NewPool(1, zerolog.Nop())
	p.Stop()

	assert.False(t, p.Submit(func() {}))
}

func TestPoolDefaultWorkerCount(t *testing.T) {
	p := NewPool(0, zerolog.Nop())
	defer p.Stop()

	assert.Greater(t, p.Stats().Workers, 0)
}
