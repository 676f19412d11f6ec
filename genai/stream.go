package genai

import "sync"

// Stream is an ordered asynchronous work queue owned by one generation request.
// Work items run one at a time, in the order they were enqueued.
type Stream struct {
	mu     sync.Mutex
	work   chan func()
	done   chan struct{}
	closed bool
}

// NewStream starts a stream worker
func NewStream() *Stream {
	s := &Stream{
		work: make(chan func(), 256),
		done: make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Stream) loop() {
	defer close(s.done)
	for fn := range s.work {
		fn()
	}
}

// Enqueue schedules fn after all previously enqueued work.
// Enqueue on a closed stream runs fn synchronously.
func (s *Stream) Enqueue(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		fn()
		return
	}
	s.work <- fn
}

// Synchronize blocks until all work enqueued so far has run
func (s *Stream) Synchronize() {
	fence := make(chan struct{})
	s.Enqueue(func() { close(fence) })
	<-fence
}

// Close drains outstanding work and stops the worker
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.work)
	s.mu.Unlock()
	<-s.done
}
