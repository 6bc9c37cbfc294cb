package pipeline

import (
	"sync"
)

// workerPool is a fixed-size pool of goroutines that consumes tasks as
// they are submitted, not in submission order — completion order drives
// catalog commits, per the analysis pipeline's ordering guarantees.
// Adapted from the sorter's simple submit-and-wait pool, generalized to
// support draining on cancellation instead of only a final Wait.
type workerPool struct {
	taskChan chan func()
	workerWg sync.WaitGroup
	taskWg   sync.WaitGroup
}

// newWorkerPool starts workers goroutines pulling from a channel sized
// bufferSize.
func newWorkerPool(workers, bufferSize int) *workerPool {
	if workers < 1 {
		workers = 1
	}
	p := &workerPool{taskChan: make(chan func(), bufferSize)}

	for i := 0; i < workers; i++ {
		p.workerWg.Add(1)
		go func() {
			defer p.workerWg.Done()
			for task := range p.taskChan {
				task()
				p.taskWg.Done()
			}
		}()
	}

	return p
}

// submit enqueues a task. It blocks if the channel is full, which is how
// backpressure against the directory walk is applied.
func (p *workerPool) submit(task func()) {
	p.taskWg.Add(1)
	p.taskChan <- task
}

// wait blocks until every submitted task has completed.
func (p *workerPool) wait() { p.taskWg.Wait() }

// close shuts the pool down once every task has been submitted.
func (p *workerPool) close() {
	close(p.taskChan)
	p.workerWg.Wait()
}
