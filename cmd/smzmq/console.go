package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wippyai/wasm-zmq/extension"
	"github.com/wippyai/wasm-zmq/resource"
	"github.com/wippyai/wasm-zmq/transport"
)

const consoleHelp = `commands:
  socket <type>              create a socket (pair, pub, sub, req, rep, dealer, router, pull, push, xpub, xsub)
  bind <socket> <endpoint>   bind, e.g. bind 0x00010000 tcp://127.0.0.1:5555
  connect <socket> <endpoint>
  sub <socket> [topic]       subscribe; an empty topic matches everything
  unsub <socket> [topic]
  send <socket> <text>       send text as one message
  recv <socket>              receive without blocking
  poll <socket> [timeout]    background wait, e.g. poll 0x00010000 5s; -1 waits forever
  close <socket>
  handles                    list live handles
  help`

// console runs text commands against the extension as one host context.
// Poll results are written to out when the owner dispatches them.
type console struct {
	ext *extension.Extension
	out func(string)
	id  resource.Identity
}

func newConsole(ext *extension.Extension, out func(string)) *console {
	return &console{
		ext: ext,
		out: out,
		id:  ext.NewContext("console"),
	}
}

func parseHandle(s string) (resource.Handle, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad handle %q", s)
	}
	return resource.Handle(v), nil
}

func parseTimeout(s string) (time.Duration, error) {
	if s == "" || s == "-1" {
		return -1, nil
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

// exec runs one command line and returns its output.
func (c *console) exec(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	cmd, args := fields[0], fields[1:]
	svc := c.ext.Messaging()

	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%s: missing arguments, see help", cmd)
		}
		return nil
	}
	socket := func() (resource.Handle, error) {
		if err := need(1); err != nil {
			return 0, err
		}
		return parseHandle(args[0])
	}

	switch cmd {
	case "help", "?":
		return consoleHelp, nil

	case "socket":
		if err := need(1); err != nil {
			return "", err
		}
		d, ok := transport.ParseDomain(args[0])
		if !ok {
			return "", fmt.Errorf("unknown socket type %q", args[0])
		}
		h, err := svc.CreateSocket(c.id, d)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s socket %s", d, h), nil

	case "bind", "connect":
		h, err := socket()
		if err != nil {
			return "", err
		}
		if err := need(2); err != nil {
			return "", err
		}
		if cmd == "bind" {
			err = svc.Bind(c.id, h, args[1])
		} else {
			err = svc.Connect(c.id, h, args[1])
		}
		if err != nil {
			return "", err
		}
		return "ok", nil

	case "sub", "unsub":
		h, err := socket()
		if err != nil {
			return "", err
		}
		topic := strings.Join(args[1:], " ")
		if cmd == "sub" {
			err = svc.Subscribe(c.id, h, []byte(topic))
		} else {
			err = svc.Unsubscribe(c.id, h, []byte(topic))
		}
		if err != nil {
			return "", err
		}
		return "ok", nil

	case "send":
		h, err := socket()
		if err != nil {
			return "", err
		}
		if err := svc.SendBytes(c.id, h, []byte(strings.Join(args[1:], " ")), 0); err != nil {
			return "", err
		}
		return "sent", nil

	case "recv":
		h, err := socket()
		if err != nil {
			return "", err
		}
		msg, err := svc.Recv(c.id, h, transport.DontWait)
		if err != nil {
			return "", err
		}
		return c.take(msg)

	case "poll":
		h, err := socket()
		if err != nil {
			return "", err
		}
		var arg string
		if len(args) > 1 {
			arg = args[1]
		}
		timeout, err := parseTimeout(arg)
		if err != nil {
			return "", err
		}
		if err := c.ext.Poll(c.id, h, c.pollCallback(h), timeout); err != nil {
			return "", err
		}
		return fmt.Sprintf("polling %s", h), nil

	case "close":
		h, err := socket()
		if err != nil {
			return "", err
		}
		if err := svc.CloseSocket(c.id, h); err != nil {
			return "", err
		}
		return "closed", nil

	case "handles":
		return c.handles(), nil

	default:
		return "", fmt.Errorf("unknown command %q, see help", cmd)
	}
}

// take reads a message as text and destroys it.
func (c *console) take(msg resource.Handle) (string, error) {
	svc := c.ext.Messaging()
	data, err := svc.MessageBytes(c.id, msg)
	if err != nil {
		return "", err
	}
	if err := svc.DestroyMessage(c.id, msg); err != nil {
		return "", err
	}
	return fmt.Sprintf("%q", data), nil
}

func (c *console) pollCallback(socket resource.Handle) func(context.Context, bool, resource.Handle) {
	return func(_ context.Context, ready bool, msg resource.Handle) {
		if !ready {
			c.out(fmt.Sprintf("poll %s: nothing received", socket))
			return
		}
		text, err := c.take(msg)
		if err != nil {
			c.out(fmt.Sprintf("poll %s: %v", socket, err))
			return
		}
		c.out(fmt.Sprintf("poll %s: %s", socket, text))
	}
}

func (c *console) handles() string {
	reg := c.ext.Registry()
	var lines []string
	reg.Each(func(h resource.Handle, e resource.Entry) bool {
		if e.Creator == c.id {
			lines = append(lines, fmt.Sprintf("%s %s", h, reg.TypeName(e.Type)))
		}
		return true
	})
	if len(lines) == 0 {
		return "no handles"
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
