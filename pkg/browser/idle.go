package browser

import (
	"context"
	"fmt"
)

// idleWaiter is a network idle listener installed ahead of the action whose
// requests it has to observe.
type idleWaiter struct {
	wait   func()
	ctx    context.Context
	cancel context.CancelFunc
}

// armIdle subscribes to network events now. A previously armed listener is
// discarded.
func (s *Session) armIdle() {
	s.disarmIdle()
	ctx, cancel := context.WithCancel(s.ctx)
	s.idle = &idleWaiter{
		wait:   s.page.Context(ctx).WaitRequestIdle(s.opts.IdleTime, nil, nil, nil),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Session) disarmIdle() {
	if s.idle != nil {
		s.idle.cancel()
		s.idle = nil
	}
}

// waitIdle blocks until no request has been in flight for IdleTime, or ctx ends.
func (s *Session) waitIdle(ctx context.Context) error {
	if s.idle == nil {
		s.armIdle()
	}
	w := s.idle
	s.idle = nil
	defer w.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.wait()
	}()

	select {
	case <-done:
		// The listener also returns when the session is closed underneath it.
		if err := w.ctx.Err(); err != nil {
			return fmt.Errorf("wait for network idle: %w", err)
		}
		return nil
	case <-ctx.Done():
		w.cancel()
		<-done
		return fmt.Errorf("wait for network idle: %w", ctx.Err())
	}
}
