// Package transport defines the message-queue boundary used by the socket
// and poller layers.
//
// A Context creates Endpoints; an Endpoint is one socket supporting connect,
// bind, options and frame-level send and receive. Numeric domains, options
// and flags use the ZMQ wire values so they can be passed through from a
// guest unchanged.
//
// # Readiness
//
// Endpoint.Ready exposes receive readiness as a channel, which lets a poller
// multiplex a socket against its own cancellation channel and a timer in a
// single select. Backends build this on Mailbox:
//
//	mb := transport.NewMailbox()
//	mb.PutMessage(msg.Frames)
//	select {
//	case <-mb.Ready():
//	case <-stop:
//	}
//
// # Errors
//
// Failures are reported as *Error carrying the operation, an errno from
// golang.org/x/sys/unix and the backend's diagnostic text. IsAgain and
// IsClosed classify the common cases.
package transport
