package mux

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/net/websocket"
)

// wsTransport sends each frame as one text message, as the browser
// console does. Received messages may be text or binary.
type wsTransport struct {
	ws *websocket.Conn
}

func (t *wsTransport) Send(p []byte) error {
	return websocket.Message.Send(t.ws, string(p))
}

func (t *wsTransport) Recv() ([]byte, error) {
	var msg []byte
	if err := websocket.Message.Receive(t.ws, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (t *wsTransport) Close() error {
	return t.ws.Close()
}

// NewWSTransport wraps an established WebSocket connection.
func NewWSTransport(ws *websocket.Conn) Transport {
	return &wsTransport{ws: ws}
}

// DialWS establishes a Transport via WebSocket connection to a ws:// or
// wss:// URL. The origin is derived from the URL's host.
func DialWS(ctx context.Context, rawurl string) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	config, err := websocket.NewConfig(u.String(), fmt.Sprintf("%s://%s/", scheme, u.Host))
	if err != nil {
		return nil, err
	}

	type result struct {
		ws  *websocket.Conn
		err error
	}
	done := make(chan result, 1)
	go func() {
		ws, err := websocket.DialConfig(config)
		done <- result{ws, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.ws != nil {
				r.ws.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return NewWSTransport(r.ws), nil
	}
}
