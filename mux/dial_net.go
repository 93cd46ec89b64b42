package mux

import (
	"context"
	"net"
)

func dialNet(ctx context.Context, proto, addr string) (Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, proto, addr)
	if err != nil {
		return nil, err
	}
	return NewStreamTransport(conn), nil
}

// DialTCP establishes a Transport via TCP connection.
func DialTCP(ctx context.Context, addr string) (Transport, error) {
	return dialNet(ctx, "tcp", addr)
}

// DialUnix establishes a Transport via Unix domain socket.
func DialUnix(ctx context.Context, path string) (Transport, error) {
	return dialNet(ctx, "unix", path)
}
