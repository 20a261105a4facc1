// Package poller runs background waits on sockets without blocking the
// host's execution context.
//
// A Poller performs exactly one wait on an endpoint's readiness channel, its
// own cancellation channel and an optional timer. If the socket wins it
// receives one frame, turns it into a message handle through its Deliver
// function, and emits a ready completion; on timeout, cancellation or any
// failure it emits a not-ready completion. Cancellation is checked before
// and after the wait, so a busy socket never starves shutdown.
//
// Pollers never call host code. Completions go to a CompletionQueue that
// the host drains on its own goroutine:
//
//	queue := poller.NewCompletionQueue()
//	sup := poller.NewSupervisor(queue)
//
//	p, _ := poller.New(poller.Config{
//	    Endpoint: sock.Endpoint(),
//	    Callback: onMessage,
//	    Deliver:  adopt,
//	    Timeout:  -1,
//	})
//	_ = sup.Spawn(p)
//
//	for {
//	    select {
//	    case <-queue.Ready():
//	        queue.Drain(func(c poller.Completion) { c.Callback(ctx, c.Ready, c.Message) })
//	    case <-ctx.Done():
//	        return
//	    }
//	}
//
// The Supervisor tracks live pollers; ShutdownAll cancels all of them and
// waits until each has terminated.
package poller
