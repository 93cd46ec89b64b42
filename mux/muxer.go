package mux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
	"github.com/juise/clira/codec"
	"github.com/juise/clira/mux/frame"
	"github.com/rs/xid"
)

var (
	// ErrNoTarget is returned by RPC when the options name no target.
	ErrNoTarget = errors.New("mux: rpc requires a target")

	// ErrDuplicateCall is returned when a muxid is registered twice.
	ErrDuplicateCall = errors.New("mux: muxid already registered")

	// ErrClosed is the close cause reported after Close.
	ErrClosed = errors.New("mux: muxer closed")
)

// Config configures a Muxer.
type Config struct {
	// URL of the mixer, used when Dialer is nil.
	URL string

	Dialer Dialer

	// Logger defaults to a null logger.
	Logger hclog.Logger

	// OnOpen is called once a connection is ready and queued frames have
	// been sent.
	OnOpen func()

	// OnClose is called when a connection ends or cannot be established.
	OnClose func(err error)

	// AuthInit registers the connection with the mixer for interactive
	// authentication prompts before any RPC is sent.
	AuthInit bool

	// Trace, if set, records every transport message.
	Trace codec.Encoder
}

type state int

const (
	stateClosed state = iota
	stateOpening
	stateOpen
)

// conn is the state of one connection attempt.
type conn struct {
	t      Transport
	re     frame.Reassembler
	closed bool
	cancel context.CancelFunc

	done chan struct{}
	err  error
}

// Muxer multiplexes concurrent RPCs to the mixer over one transport.
type Muxer struct {
	id      string
	dial    Dialer
	logger  hclog.Logger
	onOpen  func()
	onClose func(error)
	trace   codec.Encoder

	table *table
	auth  *auth

	// writeMu serializes writes to the transport and orders them with
	// the pending queue. It is acquired before mu and never while holding
	// it, so a stalled write cannot keep Close from reaching the transport.
	writeMu sync.Mutex

	mu      sync.Mutex
	state   state
	conn    *conn
	last    *conn
	pending [][]byte
}

// New returns a closed Muxer. Call Open, or just RPC, to connect.
func New(cfg Config) *Muxer {
	id := xid.New().String()
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	dial := cfg.Dialer
	if dial == nil {
		dial = URL(cfg.URL)
	}
	m := &Muxer{
		id:      id,
		dial:    dial,
		logger:  logger.Named("mux").With("muxer", id),
		onOpen:  cfg.OnOpen,
		onClose: cfg.OnClose,
		trace:   cfg.Trace,
		table:   newTable(),
	}
	if cfg.AuthInit {
		m.auth = newAuth(m)
	}
	return m
}

// ID returns the unique identifier of this Muxer instance.
func (m *Muxer) ID() string {
	return m.id
}

// Open starts connecting if the Muxer is closed and is a no-op otherwise.
// It does not wait for the connection: frames sent meanwhile are queued
// and flushed, in order, before OnOpen is called.
func (m *Muxer) Open(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openLocked(ctx)
}

func (m *Muxer) openLocked(ctx context.Context) {
	if m.state != stateClosed {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &conn{done: make(chan struct{}), cancel: cancel}
	m.state = stateOpening
	m.conn = c
	m.last = c
	m.logger.Debug("opening connection")
	go m.connect(ctx, c)
}

func (m *Muxer) connect(ctx context.Context, c *conn) {
	t, err := m.dial(ctx)
	if err != nil {
		m.mu.Lock()
		closed := c.closed
		m.mu.Unlock()
		if closed {
			m.shutdown(c, ErrClosed)
			return
		}
		m.logger.Error("cannot establish connection", "error", err)
		m.shutdown(c, fmt.Errorf("mux: cannot establish connection: %w", err))
		return
	}
	if m.trace != nil {
		t = Trace(t, m.trace, m.logger)
	}

	m.writeMu.Lock()
	m.mu.Lock()
	if m.conn != c {
		m.mu.Unlock()
		m.writeMu.Unlock()
		m.logger.Debug("closing connection established after Close")
		t.Close()
		m.shutdown(c, ErrClosed)
		return
	}
	c.t = t
	m.state = stateOpen
	pending := m.pending
	m.pending = nil
	if m.auth != nil {
		pending = append([][]byte{m.auth.initFrame}, pending...)
	}
	m.mu.Unlock()

	if len(pending) > 0 {
		m.logger.Debug("sending pending frames", "count", len(pending))
	}
	for _, b := range pending {
		if err = t.Send(b); err != nil {
			break
		}
		metrics.IncrCounter(keyFramesSent, 1)
	}
	m.writeMu.Unlock()

	if err != nil {
		m.mu.Lock()
		closed := c.closed
		m.mu.Unlock()
		if closed {
			err = ErrClosed
		} else {
			m.logger.Error("flushing pending frames failed", "error", err)
		}
		t.Close()
		m.shutdown(c, err)
		return
	}

	m.logger.Debug("connection open")
	go m.loop(c)
	if m.onOpen != nil {
		m.onOpen()
	}
}

// Close closes the transport if one is open, or cancels the dial if one
// is in flight. Writes blocked on the transport fail. Outstanding calls
// are not released; they stop receiving frames. RPCs held for authinit
// are dropped.
func (m *Muxer) Close() error {
	m.mu.Lock()
	c := m.conn
	if c == nil {
		m.mu.Unlock()
		return nil
	}
	c.closed = true
	m.conn = nil
	m.state = stateClosed
	m.pending = nil
	t := c.t
	m.mu.Unlock()

	m.logger.Debug("closing connection")
	c.cancel()
	var err error
	if t != nil {
		err = t.Close()
	}
	// onAuthInit may be blocked writing held RPCs under the auth lock
	if m.auth != nil {
		m.auth.reset(true)
	}
	return err
}

// Wait blocks until the most recent connection has ended and returns the
// cause. It returns ErrClosed if Open was never called.
func (m *Muxer) Wait() error {
	m.mu.Lock()
	c := m.last
	m.mu.Unlock()
	if c == nil {
		return ErrClosed
	}
	<-c.done
	return c.err
}

// IsOpen reports whether a connection is ready.
func (m *Muxer) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == stateOpen
}

// Lookup returns the outstanding call registered under muxid.
func (m *Muxer) Lookup(muxid uint64) (*Call, bool) {
	return m.table.lookup(muxid)
}

// Outstanding returns the number of calls awaiting their complete frame.
func (m *Muxer) Outstanding() int {
	return m.table.len()
}

// RPC starts a call and returns its record. Exactly one frame is sent, or
// queued if the connection is not ready; a closed Muxer is opened. Reply
// frames are routed to opts.Handlers by op until a complete frame arrives.
func (m *Muxer) RPC(opts CallOptions) (*Call, error) {
	if opts.Target == "" {
		return nil, ErrNoTarget
	}
	op := opts.Op
	if op == "" {
		op = frame.OpRPC
	}

	muxid, err := m.table.allocate()
	if err != nil {
		return nil, err
	}
	attrs := frame.Attrs{{Key: "target", Value: opts.Target}}
	if m.auth != nil {
		attrs = append(attrs, frame.Attr{Key: "authmuxid", Value: strconv.FormatUint(m.auth.muxid, 10)})
	}
	attrs = append(attrs, opts.Attrs...)

	call := &Call{
		MuxID:    muxid,
		Target:   opts.Target,
		Op:       op,
		Payload:  opts.payload(),
		Started:  time.Now(),
		handlers: opts.Handlers,
		onClose:  opts.OnClose,
	}
	b, err := frame.Encode(frame.Frame{
		Op:      op,
		MuxID:   muxid,
		Attrs:   attrs,
		Payload: []byte(call.Payload),
	})
	if err != nil {
		return nil, err
	}
	if err := m.table.register(call); err != nil {
		return nil, err
	}

	if m.auth != nil {
		err = m.auth.send(b)
	} else {
		err = m.send(b)
	}
	if err != nil {
		m.table.release(muxid)
		return nil, err
	}
	metrics.IncrCounter(keyCallsStarted, 1)
	m.logger.Trace("rpc", "muxid", muxid, "op", op, "target", opts.Target)
	return call, nil
}

// Hostkey answers a host key prompt on call.
func (m *Muxer) Hostkey(call *Call, answer string, attrs ...frame.Attr) error {
	return m.respond(call, frame.OpHostkey, answer, attrs)
}

// Psphrase answers a passphrase prompt on call.
func (m *Muxer) Psphrase(call *Call, answer string, attrs ...frame.Attr) error {
	return m.respond(call, frame.OpPassphrase, answer, attrs)
}

// Psword answers a password prompt on call.
func (m *Muxer) Psword(call *Call, answer string, attrs ...frame.Attr) error {
	return m.respond(call, frame.OpPassword, answer, attrs)
}

func (m *Muxer) respond(call *Call, op, answer string, attrs frame.Attrs) error {
	if call == nil {
		return fmt.Errorf("mux: %s answer without a call", op)
	}
	b, err := frame.Encode(frame.Frame{
		Op:      op,
		MuxID:   call.MuxID,
		Attrs:   attrs,
		Payload: []byte(answer),
	})
	if err != nil {
		return err
	}
	return m.send(b)
}

// send writes b if connected and queues it otherwise, forcing an open
// when closed.
func (m *Muxer) send(b []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	switch m.state {
	case stateOpen:
		t := m.conn.t
		m.mu.Unlock()
		if err := t.Send(b); err != nil {
			return err
		}
		metrics.IncrCounter(keyFramesSent, 1)
		return nil
	case stateClosed:
		m.logger.Debug("send forces open")
		m.openLocked(context.Background())
	}
	m.pending = append(m.pending, b)
	m.mu.Unlock()
	return nil
}

// loop reads transport messages until an error is encountered. To
// synchronize on loop exit, use Wait.
func (m *Muxer) loop(c *conn) {
	var err error
	for err == nil {
		var msg []byte
		msg, err = c.t.Recv()
		if err != nil {
			break
		}
		err = c.re.Feed(msg, m.route)
	}

	var protoErr *frame.ProtocolError
	if errors.As(err, &protoErr) {
		metrics.IncrCounter(keyProtocolError, 1)
		m.logger.Error("closing connection on protocol error", "error", err)
		c.t.Close()
	}

	m.mu.Lock()
	closed := c.closed
	m.mu.Unlock()
	switch {
	case closed:
		err = ErrClosed
	case err == io.EOF:
		m.logger.Info("connection closed by mixer")
	case protoErr == nil:
		m.logger.Error("connection failure", "error", err)
	}
	m.shutdown(c, err)
}

// route delivers one frame to its call. Frames for unknown muxids or ops
// are dropped; they never stop the read loop.
func (m *Muxer) route(f frame.Frame) error {
	metrics.IncrCounter(keyFramesReceived, 1)
	m.logger.Trace("frame", "op", f.Op, "muxid", f.MuxID, "payload", len(f.Payload))

	call, ok := m.table.lookup(f.MuxID)
	if !ok {
		metrics.IncrCounter(keyUnknownMuxID, 1)
		m.logger.Warn("dropping frame for unknown muxid", "op", f.Op, "muxid", f.MuxID)
		return nil
	}

	if h, ok := call.handlers[f.Op]; ok {
		h(call, f)
	} else {
		metrics.IncrCounter(keyUnknownOp, 1)
		m.logger.Warn("unhandled op", "op", f.Op, "muxid", f.MuxID)
	}

	if f.Op == frame.OpComplete {
		m.table.release(f.MuxID)
		metrics.IncrCounter(keyCallsCompleted, 1)
		metrics.MeasureSince(keyCallDuration, call.Started)
	}
	return nil
}

// shutdown records why c ended and notifies observers. Call records stay
// registered.
func (m *Muxer) shutdown(c *conn, err error) {
	m.mu.Lock()
	if m.conn == c {
		m.conn = nil
		m.state = stateClosed
		m.pending = nil
	}
	m.mu.Unlock()
	c.cancel()
	if m.auth != nil {
		m.auth.reset(false)
	}

	c.err = err
	close(c.done)

	if m.onClose != nil {
		m.onClose(err)
	}
	for _, call := range m.table.snapshot() {
		if call.onClose != nil {
			call.onClose(call, err)
		}
	}
}
