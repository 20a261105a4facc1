package poller

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-zmq/errors"
	"github.com/wippyai/wasm-zmq/transport"
)

// Supervisor tracks live pollers and shuts them down together. Completions
// of the pollers it spawns go to its queue.
type Supervisor struct {
	queue     *CompletionQueue
	log       *zap.Logger
	onDrop    func(Completion)
	pollers   []*Poller
	wg        sync.WaitGroup
	max       int
	mu        sync.Mutex
	exclusive bool
	shutdown  bool
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithMaxPollers limits the number of live pollers. Zero means no limit.
func WithMaxPollers(n int) SupervisorOption {
	return func(s *Supervisor) {
		if n > 0 {
			s.max = n
		}
	}
}

// WithExclusive allows at most one live poller per endpoint.
func WithExclusive(on bool) SupervisorOption {
	return func(s *Supervisor) { s.exclusive = on }
}

// WithLogger sets the supervisor logger.
func WithLogger(l *zap.Logger) SupervisorOption {
	return func(s *Supervisor) {
		if l != nil {
			s.log = l
		}
	}
}

// WithDropHandler sets a function called with completions the closed queue
// refused, so their messages can be released.
func WithDropHandler(fn func(Completion)) SupervisorOption {
	return func(s *Supervisor) { s.onDrop = fn }
}

// NewSupervisor creates a supervisor delivering into queue.
func NewSupervisor(queue *CompletionQueue, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		queue: queue,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Exclusive reports whether single-poller-per-endpoint is enforced.
func (s *Supervisor) Exclusive() bool { return s.exclusive }

// Queue returns the completion queue.
func (s *Supervisor) Queue() *CompletionQueue { return s.queue }

// Track adds p to the live set. It returns false if p is already tracked
// or the supervisor has shut down.
func (s *Supervisor) Track(p *Poller) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trackLocked(p)
}

func (s *Supervisor) trackLocked(p *Poller) bool {
	if s.shutdown || s.indexLocked(p) >= 0 {
		return false
	}
	s.pollers = append(s.pollers, p)
	return true
}

func (s *Supervisor) indexLocked(p *Poller) int {
	for i, q := range s.pollers {
		if q == p {
			return i
		}
	}
	return -1
}

// Untrack removes p and reports whether it was tracked.
func (s *Supervisor) Untrack(p *Poller) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(p)
	if i < 0 {
		return false
	}
	s.pollers = append(s.pollers[:i], s.pollers[i+1:]...)
	return true
}

// Len returns the number of tracked pollers.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pollers)
}

// Busy reports whether a tracked poller targets ep.
func (s *Supervisor) Busy(ep transport.Endpoint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busyLocked(ep)
}

func (s *Supervisor) busyLocked(ep transport.Endpoint) bool {
	for _, q := range s.pollers {
		if q.cfg.Endpoint == ep {
			return true
		}
	}
	return false
}

// Spawn arms p, tracks it and starts its goroutine. On error nothing is
// tracked and no goroutine runs.
func (s *Supervisor) Spawn(p *Poller) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.shutdown:
		return errors.ThreadCreation("supervisor is shut down")
	case s.max > 0 && len(s.pollers) >= s.max:
		return errors.New(errors.PhasePoll, errors.KindThreadCreation).
			Op("spawn").
			Detail("poller limit of %d reached", s.max).
			Build()
	case s.exclusive && s.busyLocked(p.cfg.Endpoint):
		return errors.Busy(errors.PhasePoll, "socket already has an active poller")
	case s.indexLocked(p) >= 0:
		return errors.Busy(errors.PhasePoll, "poller already tracked")
	}
	if !p.arm() {
		return errors.InvalidInput(errors.PhasePoll, "poller already ran")
	}

	s.trackLocked(p)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		p.run(s.deliver, s.release)
	}()

	p.log.Debug("poller spawned", zap.Duration("timeout", p.cfg.Timeout))
	return nil
}

func (s *Supervisor) deliver(c Completion) bool {
	if s.queue != nil && s.queue.Push(c) {
		return true
	}
	if s.onDrop != nil {
		s.onDrop(c)
	}
	return false
}

func (s *Supervisor) release(p *Poller) {
	s.Untrack(p)
}

// ShutdownAll cancels every tracked poller and waits for all of them to
// terminate. Later calls return immediately. Spawn fails afterwards. If ctx
// ends first the pollers still terminate, but ShutdownAll stops waiting and
// returns the context error.
func (s *Supervisor) ShutdownAll(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	pollers := append([]*Poller(nil), s.pollers...)
	s.mu.Unlock()

	for _, p := range pollers {
		p.Cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if len(pollers) > 0 {
			s.log.Debug("pollers shut down", zap.Int("count", len(pollers)))
		}
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.PhasePoll, errors.KindBusy, ctx.Err(), "pollers still running at shutdown deadline")
	}
}
