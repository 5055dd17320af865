package bot

import (
	"context"
	"sync"
	"time"
)

// Sequencer runs jobs one at a time per key, in submission order. Different keys run in parallel.
type Sequencer struct {
	mu      sync.Mutex
	pending map[string][]func()
	wg      sync.WaitGroup
}

func NewSequencer() *Sequencer {
	return &Sequencer{pending: make(map[string][]func())}
}

func (s *Sequencer) Submit(key string, job func()) {
	s.mu.Lock()
	q, busy := s.pending[key]
	s.pending[key] = append(q, job)
	s.mu.Unlock()

	if busy {
		return
	}
	s.wg.Add(1)
	go s.drain(key)
}

func (s *Sequencer) drain(key string) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		q := s.pending[key]
		if len(q) == 0 {
			delete(s.pending, key)
			s.mu.Unlock()
			return
		}
		job := q[0]
		s.pending[key] = q[1:]
		s.mu.Unlock()

		job()
	}
}

// Wait blocks until every submitted job has finished.
func (s *Sequencer) Wait() {
	s.wg.Wait()
}

// Graceful returns a context that outlives parent by grace: in-flight events keep their
// AI calls alive for a while after shutdown starts.
func Graceful(parent context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(parent, func() {
		time.AfterFunc(grace, cancel)
	})
	return ctx, func() {
		stop()
		cancel()
	}
}
