package dsp

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPool_RunsSubmittedWork(t *testing.T) {
	p := NewPool(2)
	var ran int32
	p.Submit(context.Background(), nil, "test", func() {
		atomic.AddInt32(&ran, 1)
	})
	assert.EqualValues(t, 1, ran)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := NewPool(1)
	var concurrent int32
	var mu sync.Mutex
	maxConcurrent := int32(0)
	done := make(chan struct{})

	track := func() {
		c := atomic.AddInt32(&concurrent, 1)
		mu.Lock()
		if c > maxConcurrent {
			maxConcurrent = c
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
	}

	go func() {
		p.Submit(context.Background(), nil, "a", track)
		close(done)
	}()
	p.Submit(context.Background(), nil, "b", track)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxConcurrent, int32(1))
}

func TestPool_RecoversPanic(t *testing.T) {
	p := NewPool(1)
	assert.NotPanics(t, func() {
		p.Submit(context.Background(), nil, "panicker", func() {
			panic("boom")
		})
	})
}
