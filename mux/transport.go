package mux

import (
	"context"
	"io"
)

// Transport is an ordered, reliable, full-duplex message stream the Muxer
// runs over. Message boundaries need not match frame boundaries.
type Transport interface {
	// Send writes one message.
	Send(p []byte) error

	// Recv blocks for the next message. It returns io.EOF once the peer
	// has closed the stream.
	Recv() ([]byte, error)

	// Close closes the transport, unblocking Recv.
	Close() error
}

// A Dialer establishes a Transport. The Transport is ready when Dialer
// returns it.
type Dialer func(ctx context.Context) (Transport, error)

const recvChunk = 32 * 1024

// streamTransport adapts a byte stream. Each Recv returns whatever a single
// Read produced.
type streamTransport struct {
	rwc io.ReadWriteCloser
	buf []byte
}

// NewStreamTransport wraps a byte stream such as a net.Conn as a Transport.
func NewStreamTransport(rwc io.ReadWriteCloser) Transport {
	return &streamTransport{
		rwc: rwc,
		buf: make([]byte, recvChunk),
	}
}

func (t *streamTransport) Send(p []byte) error {
	_, err := t.rwc.Write(p)
	return err
}

func (t *streamTransport) Recv() ([]byte, error) {
	for {
		n, err := t.rwc.Read(t.buf)
		if n > 0 {
			return append([]byte(nil), t.buf[:n]...), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (t *streamTransport) Close() error {
	return t.rwc.Close()
}
