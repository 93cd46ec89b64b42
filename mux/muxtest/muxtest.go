// Package muxtest provides a scripted mixer for testing code built on the
// mux package.
package muxtest

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/juise/clira/mux"
	"github.com/juise/clira/mux/frame"
)

// Timeout bounds every wait in this package.
var Timeout = 5 * time.Second

// Mixer plays the server side of a connection. Frames the Muxer sends are
// reassembled and queued for Next; Send and Write inject frames or raw
// transport messages.
type Mixer struct {
	t      testing.TB
	tr     mux.Transport
	frames chan frame.Frame

	done    chan struct{}
	errMu   sync.Mutex
	err     error
	closeMu sync.Once
}

func newMixer(t testing.TB, tr mux.Transport) *Mixer {
	mx := &Mixer{
		t:      t,
		tr:     tr,
		frames: make(chan frame.Frame, 64),
		done:   make(chan struct{}),
	}
	go mx.loop()
	return mx
}

func (mx *Mixer) loop() {
	defer close(mx.done)
	defer close(mx.frames)
	defer mx.Close()
	var re frame.Reassembler
	for {
		msg, err := mx.tr.Recv()
		if err == nil {
			err = re.Feed(msg, func(f frame.Frame) error {
				mx.frames <- f
				return nil
			})
		}
		if err != nil {
			mx.errMu.Lock()
			mx.err = err
			mx.errMu.Unlock()
			return
		}
	}
}

// NewPair returns a Muxer connected to a Mixer through in-memory pipes.
// cfg.Dialer is replaced. Both ends are closed when the test ends.
func NewPair(t testing.TB, cfg mux.Config) (*mux.Muxer, *Mixer) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	tr, err := mux.ListenIO(aw, ar).Accept()
	if err != nil {
		t.Fatal(err)
	}
	mx := newMixer(t, tr)

	cfg.Dialer = func(ctx context.Context) (mux.Transport, error) {
		return mux.DialIO(bw, br), nil
	}
	m := mux.New(cfg)
	t.Cleanup(func() {
		m.Close()
		mx.Close()
	})
	return m, mx
}

// Next returns the next frame sent by the Muxer, failing the test if none
// arrives within Timeout.
func (mx *Mixer) Next() frame.Frame {
	mx.t.Helper()
	select {
	case f, ok := <-mx.frames:
		if !ok {
			mx.t.Fatalf("muxtest: connection ended: %v", mx.Err())
		}
		return f
	case <-time.After(Timeout):
		mx.t.Fatal("muxtest: timed out waiting for frame")
	}
	return frame.Frame{}
}

// Quiet fails the test if the Muxer sends a frame within d.
func (mx *Mixer) Quiet(d time.Duration) {
	mx.t.Helper()
	select {
	case f, ok := <-mx.frames:
		if ok {
			mx.t.Fatalf("muxtest: unexpected frame %s", f)
		}
	case <-time.After(d):
	}
}

// Send encodes f and writes it as one transport message.
func (mx *Mixer) Send(f frame.Frame) error {
	b, err := frame.Encode(f)
	if err != nil {
		return err
	}
	return mx.tr.Send(b)
}

// Write sends each chunk as its own transport message, exactly as given.
func (mx *Mixer) Write(chunks ...[]byte) error {
	for _, c := range chunks {
		if err := mx.tr.Send(c); err != nil {
			return err
		}
	}
	return nil
}

// Reply sends a frame carrying payload for muxid.
func (mx *Mixer) Reply(muxid uint64, op, payload string) error {
	return mx.Send(frame.Frame{Op: op, MuxID: muxid, Payload: []byte(payload)})
}

// Complete sends the terminal frame for muxid.
func (mx *Mixer) Complete(muxid uint64) error {
	return mx.Send(frame.Frame{Op: frame.OpComplete, MuxID: muxid})
}

// Done is closed once the Muxer's side of the connection is gone.
func (mx *Mixer) Done() <-chan struct{} {
	return mx.done
}

// WaitDone fails the test if the connection does not end within Timeout.
func (mx *Mixer) WaitDone() {
	mx.t.Helper()
	select {
	case <-mx.done:
	case <-time.After(Timeout):
		mx.t.Fatal("muxtest: timed out waiting for connection to end")
	}
}

// Err returns the error that ended the connection.
func (mx *Mixer) Err() error {
	mx.errMu.Lock()
	defer mx.errMu.Unlock()
	return mx.err
}

// Close closes the Mixer's side of the connection.
func (mx *Mixer) Close() error {
	var err error
	mx.closeMu.Do(func() {
		err = mx.tr.Close()
	})
	return err
}

// Listener turns each connection accepted by a mux.Listener into a Mixer.
type Listener struct {
	t        testing.TB
	l        mux.Listener
	accepted chan *Mixer
}

// ListenWS starts a WebSocket mixer on a loopback address. It is closed
// when the test ends.
func ListenWS(t testing.TB) *Listener {
	ml, err := mux.ListenWS("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	l := &Listener{
		t:        t,
		l:        ml,
		accepted: make(chan *Mixer, 1),
	}
	go func() {
		for {
			tr, err := ml.Accept()
			if err != nil {
				return
			}
			l.accepted <- newMixer(t, tr)
		}
	}()
	t.Cleanup(l.Close)
	return l
}

// URL returns the ws:// URL of the listener.
func (l *Listener) URL() string {
	return "ws://" + l.l.Addr().String() + "/"
}

// Accept returns the next connected Mixer.
func (l *Listener) Accept() *Mixer {
	l.t.Helper()
	select {
	case mx := <-l.accepted:
		l.t.Cleanup(func() { mx.Close() })
		return mx
	case <-time.After(Timeout):
		l.t.Fatal("muxtest: timed out waiting for connection")
	}
	return nil
}

// Close stops accepting connections.
func (l *Listener) Close() {
	l.l.Close()
}
