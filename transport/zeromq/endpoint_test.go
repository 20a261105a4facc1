package zeromq

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"golang.org/x/sys/unix"

	"github.com/wippyai/wasm-zmq/transport"
)

var addrSeq atomic.Int64

func inprocAddr(name string) string {
	return fmt.Sprintf("inproc://%s-%d", name, addrSeq.Add(1))
}

func newPair(t *testing.T, c *Context, bindDomain, connectDomain transport.Domain) (transport.Endpoint, transport.Endpoint) {
	t.Helper()
	addr := inprocAddr("pair")

	server, err := c.NewEndpoint(bindDomain)
	if err != nil {
		t.Fatal(err)
	}
	if err := server.Bind(addr); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	client, err := c.NewEndpoint(connectDomain)
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Connect(addr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return server, client
}

func waitReady(t *testing.T, ep transport.Endpoint) {
	t.Helper()
	select {
	case <-ep.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("endpoint never became ready")
	}
}

func TestEndpoint_PairRoundTrip(t *testing.T) {
	c := New()
	defer c.Term()

	server, client := newPair(t, c, transport.Pair, transport.Pair)

	if err := client.Send([]byte("hello"), 0); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitReady(t, server)

	got, err := server.Recv(transport.DontWait)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("Recv = %q", got)
	}

	if _, err := server.Recv(transport.DontWait); !transport.IsAgain(err) {
		t.Fatalf("empty Recv = %v, want EAGAIN", err)
	}
}

func TestEndpoint_Multipart(t *testing.T) {
	c := New()
	defer c.Term()

	server, client := newPair(t, c, transport.Pull, transport.Push)

	if err := client.Send([]byte("head"), transport.SndMore); err != nil {
		t.Fatal(err)
	}
	if err := client.Send([]byte("tail"), 0); err != nil {
		t.Fatal(err)
	}

	parts := []struct {
		data string
		more int32
	}{
		{"head", 1},
		{"tail", 0},
	}
	for _, p := range parts {
		got, err := server.Recv(0)
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if string(got) != p.data {
			t.Fatalf("Recv = %q, want %q", got, p.data)
		}
		cell, err := server.GetOption(transport.OptRcvMore, transport.CellSize)
		if err != nil {
			t.Fatal(err)
		}
		if v, _ := transport.DecodeCell(cell); v != p.more {
			t.Fatalf("RCVMORE after %q = %d", p.data, v)
		}
	}
}

func TestEndpoint_ReqRep(t *testing.T) {
	c := New()
	defer c.Term()

	rep, req := newPair(t, c, transport.Rep, transport.Req)

	if err := req.Send([]byte("ping"), 0); err != nil {
		t.Fatal(err)
	}
	got, err := rep.Recv(0)
	if err != nil || string(got) != "ping" {
		t.Fatalf("rep Recv = %q, %v", got, err)
	}
	if err := rep.Send([]byte("pong"), 0); err != nil {
		t.Fatal(err)
	}
	got, err = req.Recv(0)
	if err != nil || string(got) != "pong" {
		t.Fatalf("req Recv = %q, %v", got, err)
	}
}

func TestEndpoint_PubSubFilter(t *testing.T) {
	c := New()
	defer c.Term()

	addr := inprocAddr("pubsub")
	pub, _ := c.NewEndpoint(transport.Pub)
	if err := pub.Bind(addr); err != nil {
		t.Fatal(err)
	}
	sub, _ := c.NewEndpoint(transport.Sub)
	if err := sub.SetOption(transport.OptSubscribe, []byte("news")); err != nil {
		t.Fatal(err)
	}
	if err := sub.Connect(addr); err != nil {
		t.Fatal(err)
	}

	// subscriptions propagate asynchronously; keep publishing until one lands
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		_ = pub.Send([]byte("sports: ignored"), 0)
		_ = pub.Send([]byte("news: hello"), 0)
		select {
		case <-sub.Ready():
			got, err := sub.Recv(transport.DontWait)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != "news: hello" {
				t.Fatalf("filtered Recv = %q", got)
			}
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("no message through the subscription")
		}
	}
}

func TestEndpoint_Options(t *testing.T) {
	c := New()
	defer c.Term()

	dealer, _ := c.NewEndpoint(transport.Dealer)

	if err := dealer.SetOption(transport.OptIdentity, []byte("worker-1")); err != nil {
		t.Fatal(err)
	}
	id, err := dealer.GetOption(transport.OptIdentity, 255)
	if err != nil || string(id) != "worker-1" {
		t.Fatalf("identity = %q, %v", id, err)
	}
	if _, err := dealer.GetOption(transport.OptIdentity, 2); err == nil {
		t.Fatal("short identity buffer accepted")
	}

	if err := dealer.SetOption(transport.OptLinger, transport.EncodeCell(0)); err != nil {
		t.Fatal(err)
	}
	cell, _ := dealer.GetOption(transport.OptLinger, transport.CellSize)
	if v, _ := transport.DecodeCell(cell); v != 0 {
		t.Fatalf("linger = %d", v)
	}

	tests := []struct {
		name string
		err  error
	}{
		{"subscribe on dealer", dealer.SetOption(transport.OptSubscribe, nil)},
		{"unknown option", dealer.SetOption(transport.Option(999), transport.EncodeCell(1))},
		{"short linger", dealer.SetOption(transport.OptLinger, []byte{1})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var te *transport.Error
			if !errors.As(tt.err, &te) || te.Errno != unix.EINVAL {
				t.Fatalf("err = %v, want EINVAL", tt.err)
			}
		})
	}
}

func TestEndpoint_IdentityAfterBind(t *testing.T) {
	c := New()
	defer c.Term()

	dealer, _ := c.NewEndpoint(transport.Dealer)
	if err := dealer.SetOption(transport.OptIdentity, []byte("early")); err != nil {
		t.Fatal(err)
	}
	if err := dealer.Bind(inprocAddr("identity")); err != nil {
		t.Fatal(err)
	}

	err := dealer.SetOption(transport.OptIdentity, []byte("late"))
	var te *transport.Error
	if !errors.As(err, &te) || te.Errno != unix.EINVAL {
		t.Fatalf("identity after bind = %v, want EINVAL", err)
	}
	if id, _ := dealer.GetOption(transport.OptIdentity, 255); string(id) != "early" {
		t.Fatalf("identity = %q, want the one the socket was built with", id)
	}
}

// flakySocket fails sends while fail is set and records what it sent.
type flakySocket struct {
	zmq4.Socket
	fail bool
	sent []zmq4.Msg
}

func (s *flakySocket) Send(msg zmq4.Msg) error { return s.SendMulti(msg) }

func (s *flakySocket) SendMulti(msg zmq4.Msg) error {
	if s.fail {
		return errors.New("peer gone")
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *flakySocket) Close() error { return nil }

func TestEndpoint_FailedSendKeepsQueuedFrames(t *testing.T) {
	c := New()
	defer c.Term()

	ep, _ := c.NewEndpoint(transport.Push)
	sock := &flakySocket{fail: true}
	ep.(*Endpoint).sock = sock

	if err := ep.Send([]byte("head"), transport.SndMore); err != nil {
		t.Fatal(err)
	}
	err := ep.Send([]byte("tail"), 0)
	if err == nil || !strings.Contains(err.Error(), "1 queued frames kept") {
		t.Fatalf("failed send = %v", err)
	}

	sock.fail = false
	if err := ep.Send([]byte("tail"), 0); err != nil {
		t.Fatal(err)
	}
	if len(sock.sent) != 1 {
		t.Fatalf("sent %d messages", len(sock.sent))
	}
	frames := sock.sent[0].Frames
	if len(frames) != 2 || string(frames[0]) != "head" || string(frames[1]) != "tail" {
		t.Fatalf("frames = %q", frames)
	}

	// the next message starts empty
	if err := ep.Send([]byte("solo"), 0); err != nil {
		t.Fatal(err)
	}
	if got := sock.sent[1].Frames; len(got) != 1 || string(got[0]) != "solo" {
		t.Fatalf("frames = %q", got)
	}
}

func TestEndpoint_Unsupported(t *testing.T) {
	c := New()
	defer c.Term()

	sub, _ := c.NewEndpoint(transport.Sub)
	if err := sub.Send([]byte("x"), 0); err == nil {
		t.Fatal("SUB send succeeded")
	}
	push, _ := c.NewEndpoint(transport.Push)
	if _, err := push.Recv(transport.DontWait); err == nil {
		t.Fatal("PUSH recv succeeded")
	}
	if _, err := c.NewEndpoint(transport.Domain(77)); err == nil {
		t.Fatal("invalid domain accepted")
	}
}

func TestEndpoint_CloseWakesReceivers(t *testing.T) {
	c := New()
	defer c.Term()

	server, _ := newPair(t, c, transport.Pair, transport.Pair)

	errc := make(chan error, 1)
	go func() {
		_, err := server.Recv(0)
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := server.Close(); err != nil {
		t.Logf("Close: %v", err)
	}

	select {
	case err := <-errc:
		if !transport.IsClosed(err) {
			t.Fatalf("Recv after Close = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("blocked Recv not woken by Close")
	}

	waitReady(t, server)
	if err := server.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestContext_Term(t *testing.T) {
	c := New()

	a, _ := c.NewEndpoint(transport.Pair)
	b, _ := c.NewEndpoint(transport.Sub)
	if err := a.Bind(inprocAddr("term")); err != nil {
		t.Fatal(err)
	}

	if err := c.Term(); err != nil {
		t.Logf("Term: %v", err)
	}
	if err := c.Term(); err != nil {
		t.Fatalf("second Term: %v", err)
	}

	for _, ep := range []transport.Endpoint{a, b} {
		if _, err := ep.Recv(transport.DontWait); !transport.IsClosed(err) {
			t.Fatalf("Recv on terminated endpoint = %v", err)
		}
	}
	if _, err := c.NewEndpoint(transport.Pair); !transport.IsClosed(err) {
		t.Fatalf("NewEndpoint after Term = %v", err)
	}
}
