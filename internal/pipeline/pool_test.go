package pipeline

import (
	"sync/atomic"
	"testing"
)

func TestWorkerPoolRunsAllTasks(t *testing.T) {
	p := newWorkerPool(4, 16)
	var count int64

	for i := 0; i < 100; i++ {
		p.submit(func() {
			atomic.AddInt64(&count, 1)
		})
	}
	p.wait()
	p.close()

	if count != 100 {
		t.Fatalf("expected 100 completed tasks, got %d", count)
	}
}

func TestWorkerPoolDefaultsToOneWorker(t *testing.T) {
	p := newWorkerPool(0, 1)
	var ran bool
	p.submit(func() { ran = true })
	p.wait()
	p.close()

	if !ran {
		t.Fatal("expected the single task to run even with workers < 1 requested")
	}
}
