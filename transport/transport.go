package transport

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Domain is a socket type. Values match the ZMQ_* socket type constants.
type Domain int32

const (
	Pair   Domain = 0
	Pub    Domain = 1
	Sub    Domain = 2
	Req    Domain = 3
	Rep    Domain = 4
	Dealer Domain = 5
	Router Domain = 6
	Pull   Domain = 7
	Push   Domain = 8
	XPub   Domain = 9
	XSub   Domain = 10
)

var domainNames = [...]string{
	Pair:   "PAIR",
	Pub:    "PUB",
	Sub:    "SUB",
	Req:    "REQ",
	Rep:    "REP",
	Dealer: "DEALER",
	Router: "ROUTER",
	Pull:   "PULL",
	Push:   "PUSH",
	XPub:   "XPUB",
	XSub:   "XSUB",
}

func (d Domain) String() string {
	if d.Valid() {
		return domainNames[d]
	}
	return fmt.Sprintf("Domain(%d)", int32(d))
}

// Valid reports whether d names a known socket type.
func (d Domain) Valid() bool {
	return d >= Pair && d <= XSub
}

// CanSend reports whether sockets of this domain accept outgoing messages.
func (d Domain) CanSend() bool {
	return d != Sub && d != Pull
}

// CanRecv reports whether sockets of this domain produce incoming messages.
func (d Domain) CanRecv() bool {
	return d != Pub && d != Push
}

// ParseDomain resolves a socket type name such as "PUB" or "dealer".
func ParseDomain(name string) (Domain, bool) {
	for d, n := range domainNames {
		if strings.EqualFold(n, name) {
			return Domain(d), true
		}
	}
	return 0, false
}

// Option is a socket option. Values match the ZMQ_* option constants.
type Option int32

const (
	OptIdentity    Option = 5
	OptSubscribe   Option = 6
	OptUnsubscribe Option = 7
	OptRcvMore     Option = 13
	OptLinger      Option = 17
	OptSndHWM      Option = 23
	OptRcvHWM      Option = 24
)

// CellSize is the encoded size of a fixed-size option value.
const CellSize = 4

// Variable reports whether the option value has a caller-chosen length.
func (o Option) Variable() bool {
	switch o {
	case OptIdentity, OptSubscribe, OptUnsubscribe:
		return true
	}
	return false
}

// OptionLen returns the number of bytes exchanged for opt: requested for
// variable-length options, CellSize otherwise.
func OptionLen(opt Option, requested int) int {
	if opt.Variable() {
		return requested
	}
	return CellSize
}

// EncodeCell encodes a fixed-size option value.
func EncodeCell(v int32) []byte {
	b := make([]byte, CellSize)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

// DecodeCell decodes a fixed-size option value.
func DecodeCell(b []byte) (int32, bool) {
	if len(b) < CellSize {
		return 0, false
	}
	return int32(binary.LittleEndian.Uint32(b)), true
}

// Flag modifies Send and Recv.
type Flag int32

const (
	DontWait Flag = 1
	SndMore  Flag = 2
)

// Context is a shared transport context. It must be safe for concurrent use.
type Context interface {
	// NewEndpoint creates a socket of the given domain.
	NewEndpoint(domain Domain) (Endpoint, error)
	// Term closes every endpoint still open and releases the context.
	Term() error
}

// Endpoint is one transport socket.
//
// Ready returns a channel that is closed while at least one frame can be
// received without blocking, or once the endpoint is closed. Callers must
// fetch a fresh channel for each wait.
type Endpoint interface {
	Domain() Domain
	Connect(addr string) error
	Bind(addr string) error
	SetOption(opt Option, value []byte) error
	GetOption(opt Option, size int) ([]byte, error)
	Send(frame []byte, flags Flag) error
	Recv(flags Flag) ([]byte, error)
	Ready() <-chan struct{}
	Close() error
}
