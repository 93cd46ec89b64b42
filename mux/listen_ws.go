package mux

import (
	"io"
	"net"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"
)

// wsListener wraps a net.Listener and WebSocket server to return connected
// Transports.
type wsListener struct {
	net.Listener
	srv      *http.Server
	accepted chan Transport
	closed   chan struct{}
	once     sync.Once
}

// Accept waits for and returns the next connected Transport.
func (l *wsListener) Accept() (Transport, error) {
	select {
	case t := <-l.accepted:
		return t, nil
	case <-l.closed:
		return nil, io.EOF
	}
}

// Close closes the listener. Established connections stay open until their
// Transport is closed.
func (l *wsListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return l.srv.Close()
}

// servedWS keeps the WebSocket handler alive until the Transport is closed.
type servedWS struct {
	Transport
	done chan struct{}
	once sync.Once
}

func (t *servedWS) Close() error {
	t.once.Do(func() { close(t.done) })
	return t.Transport.Close()
}

// ListenWS takes a TCP address and returns a Listener for a HTTP+WebSocket
// server listening on the given address.
func ListenWS(addr string) (Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	wsl := &wsListener{
		Listener: l,
		accepted: make(chan Transport),
		closed:   make(chan struct{}),
	}
	wsl.srv = &http.Server{
		Handler: websocket.Handler(func(ws *websocket.Conn) {
			t := &servedWS{Transport: NewWSTransport(ws), done: make(chan struct{})}
			select {
			case wsl.accepted <- t:
			case <-wsl.closed:
				return
			}
			<-t.done
		}),
	}
	go wsl.srv.Serve(l)
	return wsl, nil
}
