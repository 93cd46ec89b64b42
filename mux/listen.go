package mux

import "net"

// A Listener is similar to a net.Listener but returns connections wrapped
// as Transports. It is the mixer side of a connection, used to serve or
// simulate a mixer.
type Listener interface {
	// Close closes the listener.
	// Any blocked Accept operations will be unblocked and return errors.
	Close() error

	// Accept waits for and returns the next connected Transport.
	Accept() (Transport, error)

	// Addr returns the listener's network address if available.
	Addr() net.Addr
}
