package mux

import (
	"io"
	"net"
	"sync"
)

// NetListener wraps a net.Listener to return connected Transports.
type NetListener struct {
	net.Listener
}

// Accept waits for and returns the next connected Transport.
func (l *NetListener) Accept() (Transport, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return NewStreamTransport(conn), nil
}

func listenNet(proto, addr string) (*NetListener, error) {
	l, err := net.Listen(proto, addr)
	if err != nil {
		return nil, err
	}
	return &NetListener{Listener: l}, nil
}

// ListenTCP creates a TCP listener at the given address.
func ListenTCP(addr string) (*NetListener, error) {
	return listenNet("tcp", addr)
}

// ListenUnix creates a Unix domain socket listener at the given path.
func ListenUnix(path string) (*NetListener, error) {
	return listenNet("unix", path)
}

// ioListener hands out a single pipe-backed Transport.
type ioListener struct {
	mu sync.Mutex
	t  Transport
}

// Accept returns the wrapped Transport once and io.EOF afterwards.
func (l *ioListener) Accept() (Transport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := l.t
	l.t = nil
	if t == nil {
		return nil, io.EOF
	}
	return t, nil
}

func (l *ioListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.t == nil {
		return nil
	}
	err := l.t.Close()
	l.t = nil
	return err
}

func (l *ioListener) Addr() net.Addr {
	return nil
}

// ListenIO returns a Listener whose only connection is made of out and in,
// the counterpart of DialIO.
func ListenIO(out io.WriteCloser, in io.ReadCloser) Listener {
	return &ioListener{t: DialIO(out, in)}
}
