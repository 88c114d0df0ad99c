package session

import (
	"context"
	"sync"

	"github.com/danmuck/amulectl/internal/observability"
)

// pendingRequest is one caller waiting for, or holding, the wire.
// turn closes when it reaches the head of the queue; done closes if it is
// rejected before finishing.
type pendingRequest struct {
	turn chan struct{}
	done chan struct{}
	once sync.Once
	err  error
}

func newPendingRequest() *pendingRequest {
	return &pendingRequest{
		turn: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (r *pendingRequest) reject(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

func (r *pendingRequest) rejected() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// acquire enqueues a request and blocks until it owns the wire.
func (s *Session) acquire(ctx context.Context) (*pendingRequest, error) {
	req := newPendingRequest()
	s.mu.Lock()
	if s.manualClose {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.queue = append(s.queue, req)
	if len(s.queue) == 1 {
		close(req.turn)
	}
	depth := len(s.queue)
	s.mu.Unlock()
	observability.SetPending(depth)

	select {
	case <-req.turn:
		return req, nil
	case <-req.done:
		s.release(req)
		return nil, req.err
	case <-ctx.Done():
		s.release(req)
		return nil, ctx.Err()
	}
}

// release removes req and hands the wire to the next waiter.
func (s *Session) release(req *pendingRequest) {
	s.mu.Lock()
	for i, r := range s.queue {
		if r != req {
			continue
		}
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		if i == 0 && len(s.queue) > 0 {
			close(s.queue[0].turn)
		}
		break
	}
	depth := len(s.queue)
	s.mu.Unlock()
	observability.SetPending(depth)
}

// rejectPending fails every queued request, in-flight head included.
func (s *Session) rejectPending(err error) {
	s.mu.Lock()
	queue := s.queue
	s.queue = nil
	s.mu.Unlock()
	observability.SetPending(0)
	for _, req := range queue {
		req.reject(err)
	}
	if len(queue) > 0 {
		s.log.Debug().Int("count", len(queue)).Err(err).Msg("rejected pending requests")
	}
}

func (s *Session) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
