package kernel

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"

	"github.com/maksimkurb/pbrsync/src/internal/errors"
	"github.com/maksimkurb/pbrsync/src/internal/fibrule"
	"github.com/maksimkurb/pbrsync/src/internal/log"
	"github.com/maksimkurb/pbrsync/src/internal/metrics"
	"github.com/maksimkurb/pbrsync/src/internal/rule"
)

// Socket is the part of *nl.NetlinkSocket the channel uses.
type Socket interface {
	Send(req *nl.NetlinkRequest) error
	Receive() ([]syscall.NetlinkMessage, *unix.SockaddrNetlink, error)
	GetPid() (uint32, error)
	Close()
}

type request struct {
	op    fibrule.Op
	rule  rule.Rule
	msg   *fibrule.Message
	reply chan error
}

// Channel serializes rule requests to one namespace.
type Channel struct {
	name           string
	sock           Socket
	maxMessageSize int
	metrics        *metrics.Registry

	queue     chan *request
	done      chan struct{}
	closeOnce sync.Once

	// mu guards the socket hand-off between Run and Close.
	mu         sync.Mutex
	running    bool
	sockClosed bool
}

// NewChannel wraps sock. The channel takes ownership of the socket: Run
// closes it on return, or Close does when Run never started.
// maxMessageSize bounds every encoded request; zero selects
// fibrule.DefaultMaxMessageSize.
func NewChannel(name string, sock Socket, maxMessageSize int, m *metrics.Registry) *Channel {
	if maxMessageSize == 0 {
		maxMessageSize = fibrule.DefaultMaxMessageSize
	}
	return &Channel{
		name:           name,
		sock:           sock,
		maxMessageSize: maxMessageSize,
		metrics:        m,
		queue:          make(chan *request),
		done:           make(chan struct{}),
	}
}

// Name returns the namespace name, empty for the default namespace.
func (c *Channel) Name() string {
	return c.name
}

// Run executes queued requests until ctx is cancelled or Close is called.
func (c *Channel) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.sockClosed {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()

	defer c.closeSocket()
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case req := <-c.queue:
			req.reply <- c.roundTrip(req)
		}
	}
}

// Close stops the worker. Requests already accepted still get a reply.
// A channel whose worker never ran releases its socket here.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.done) })

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running && !c.sockClosed {
		c.sockClosed = true
		c.sock.Close()
	}
}

func (c *Channel) closeSocket() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sockClosed {
		return
	}
	c.sockClosed = true
	c.sock.Close()
}

// Send encodes r for op and waits for the kernel to acknowledge it.
// Cancelling ctx abandons the wait; a request the worker has already
// picked up still runs to completion.
func (c *Channel) Send(ctx context.Context, op fibrule.Op, r rule.Rule) error {
	msg, err := fibrule.Encode(op, r, c.maxMessageSize)
	if err != nil {
		c.metrics.ObserveEncodeError(c.name)
		return err
	}

	req := &request{op: op, rule: r, msg: msg, reply: make(chan error, 1)}

	select {
	case c.queue <- req:
	case <-c.done:
		return errors.ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) roundTrip(req *request) error {
	nlReq := nl.NewNetlinkRequest(int(req.msg.Type), unix.NLM_F_ACK)
	nlReq.AddRawData(req.msg.Payload())

	r := req.rule
	log.Debugf("[%s] Tx %s family %s iif %q pref %d src %s dst %s table %d",
		DisplayName(c.name), req.op, rule.FamilyName(req.msg.Header.Family), r.Interface,
		r.Priority, prefixOrNone(r.Filter.HasSrc(), r.Filter.Src.String()),
		prefixOrNone(r.Filter.HasDst(), r.Filter.Dst.String()), r.Action.Table)

	start := time.Now()
	defer func() {
		c.metrics.ObserveRoundTrip(c.name, req.op.String(), time.Since(start))
	}()

	if err := c.sock.Send(nlReq); err != nil {
		return errors.NewKernelError(fmt.Sprintf("send %s", req.op), err)
	}

	pid, err := c.sock.GetPid()
	if err != nil {
		return errors.NewKernelError("socket pid", err)
	}

	for {
		msgs, from, err := c.sock.Receive()
		if err != nil {
			return errors.NewKernelError(fmt.Sprintf("receive %s ack", req.op), err)
		}
		// Only the kernel (portid 0) acknowledges requests.
		if from != nil && from.Pid != 0 {
			continue
		}

		for _, m := range msgs {
			if m.Header.Seq != nlReq.Seq || m.Header.Pid != pid {
				log.Debugf("[%s] skipping reply seq %d pid %d, waiting for seq %d",
					DisplayName(c.name), m.Header.Seq, m.Header.Pid, nlReq.Seq)
				continue
			}

			switch m.Header.Type {
			case unix.NLMSG_DONE:
				return nil
			case unix.NLMSG_ERROR:
				if len(m.Data) < 4 {
					return errors.NewEncodingError("truncated netlink error message", nil)
				}
				errno := int32(nl.NativeEndian().Uint32(m.Data[:4]))
				if errno == 0 {
					return nil
				}
				return &KernelError{Op: req.op, Rule: req.rule, Errno: syscall.Errno(-errno)}
			}
		}
	}
}

// DisplayName names a namespace in logs and output.
func DisplayName(name string) string {
	if name == "" {
		return "default"
	}
	return name
}

func prefixOrNone(ok bool, s string) string {
	if !ok {
		return "none"
	}
	return s
}
