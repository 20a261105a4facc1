package poller

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-zmq/errors"
	"github.com/wippyai/wasm-zmq/resource"
	"github.com/wippyai/wasm-zmq/transport"
)

// State is a poller lifecycle state.
type State int32

const (
	StateCreated State = iota
	StateArmed
	StateWaiting
	StateDelivering
	StateCancelled
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateArmed:
		return "armed"
	case StateWaiting:
		return "waiting"
	case StateDelivering:
		return "delivering"
	case StateCancelled:
		return "cancelled"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// DeliverFunc turns received bytes into a message handle.
type DeliverFunc func(data []byte) (resource.Handle, error)

// Config describes one poll.
type Config struct {
	Endpoint transport.Endpoint
	Callback Callback
	Deliver  DeliverFunc
	Logger   *zap.Logger
	// Timeout bounds the wait. Negative waits until data or cancellation,
	// zero checks once.
	Timeout time.Duration
	Owner   resource.Identity
}

var pollerSeq atomic.Uint64

// Poller waits once for a socket to become readable, then delivers one
// message or reports that nothing arrived. It is never restarted.
type Poller struct {
	cfg      Config
	log      *zap.Logger
	stop     chan struct{}
	done     chan struct{}
	id       uint64
	state    atomic.Int32
	stopOnce sync.Once
}

// New validates cfg and returns a poller in StateCreated.
func New(cfg Config) (*Poller, error) {
	if cfg.Endpoint == nil {
		return nil, errors.InvalidInput(errors.PhasePoll, "poller needs an endpoint")
	}
	if cfg.Callback == nil {
		return nil, errors.InvalidInput(errors.PhasePoll, "poller needs a callback")
	}
	if cfg.Deliver == nil {
		return nil, errors.InvalidInput(errors.PhasePoll, "poller needs a deliver function")
	}

	p := &Poller{
		cfg:  cfg,
		id:   pollerSeq.Add(1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	p.log = cfg.Logger
	if p.log == nil {
		p.log = zap.NewNop()
	}
	p.log = p.log.With(zap.Uint64("poller", p.id))
	return p, nil
}

// ID returns a process-unique poller number.
func (p *Poller) ID() uint64 { return p.id }

// Endpoint returns the polled endpoint.
func (p *Poller) Endpoint() transport.Endpoint { return p.cfg.Endpoint }

// Owner returns the identity of the context that issued the poll.
func (p *Poller) Owner() resource.Identity { return p.cfg.Owner }

// State returns the current lifecycle state.
func (p *Poller) State() State { return State(p.state.Load()) }

// Done returns a channel closed once the poller has terminated.
func (p *Poller) Done() <-chan struct{} { return p.done }

// Cancel requests cancellation. Safe to call any number of times, from any
// goroutine, in any state.
func (p *Poller) Cancel() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// arm moves a created poller to StateArmed. A poller arms at most once.
func (p *Poller) arm() bool {
	return p.state.CompareAndSwap(int32(StateCreated), int32(StateArmed))
}

func (p *Poller) cancelled() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}

// wait performs the single multiplexed wait. Cancellation is checked before
// and after so it wins over a socket that is ready at the same time.
func (p *Poller) wait() bool {
	if p.cancelled() {
		return false
	}

	ready := p.cfg.Endpoint.Ready()
	switch {
	case p.cfg.Timeout == 0:
		select {
		case <-p.stop:
			return false
		case <-ready:
		default:
			return false
		}
	case p.cfg.Timeout < 0:
		select {
		case <-p.stop:
			return false
		case <-ready:
		}
	default:
		timer := time.NewTimer(p.cfg.Timeout)
		defer timer.Stop()
		select {
		case <-p.stop:
			return false
		case <-ready:
		case <-timer.C:
			return false
		}
	}

	return !p.cancelled()
}

// run is the poller goroutine body. The poller is released and marked
// terminated before its completion reaches sink, so a callback may issue
// the next poll on the same socket at once. Done closes after the push.
func (p *Poller) run(sink func(Completion) bool, release func(*Poller)) {
	defer close(p.done)

	p.state.Store(int32(StateWaiting))
	c := Completion{
		Poller:   p,
		Callback: p.cfg.Callback,
		Owner:    p.cfg.Owner,
	}

	if p.wait() {
		p.state.Store(int32(StateDelivering))
		if h, ok := p.receive(); ok {
			c.Ready, c.Message = true, h
		}
	}
	if !c.Ready {
		p.state.Store(int32(StateCancelled))
	}

	release(p)
	p.Cancel()
	p.state.Store(int32(StateTerminated))

	if !sink(c) {
		p.log.Debug("completion dropped, queue closed", zap.Bool("ready", c.Ready))
	}
}

// receive performs exactly one receive and wraps the data as a message.
func (p *Poller) receive() (resource.Handle, bool) {
	data, err := p.cfg.Endpoint.Recv(transport.DontWait)
	if err != nil {
		// another poller on the same socket may have taken the frame
		p.log.Debug("receive after readiness failed", zap.Error(err))
		return 0, false
	}
	h, err := p.cfg.Deliver(data)
	if err != nil {
		p.log.Debug("message not registered", zap.Error(err))
		return 0, false
	}
	return h, true
}
