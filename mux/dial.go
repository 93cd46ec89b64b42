package mux

import (
	"context"
	"fmt"
	"net/url"
)

// A URLDialer connects to the address part of a mixer URL.
type URLDialer func(ctx context.Context, u *url.URL) (Transport, error)

// Dialers is map of URL schemes to URLDialers
// and includes all builtin transports
var Dialers map[string]URLDialer

func init() {
	ws := func(ctx context.Context, u *url.URL) (Transport, error) {
		return DialWS(ctx, u.String())
	}
	Dialers = map[string]URLDialer{
		"ws":  ws,
		"wss": ws,
		"tcp": func(ctx context.Context, u *url.URL) (Transport, error) {
			return DialTCP(ctx, u.Host)
		},
		"unix": func(ctx context.Context, u *url.URL) (Transport, error) {
			return DialUnix(ctx, u.Path)
		},
		"stdio": func(_ context.Context, _ *url.URL) (Transport, error) {
			return DialStdio(), nil
		},
	}
}

// Dial connects to a mixer URL using a registered transport. Available
// schemes are "ws", "wss", "tcp", "unix" and "stdio".
func Dial(ctx context.Context, rawurl string) (Transport, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}
	d, ok := Dialers[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("transport '%s' not available in Dialers", u.Scheme)
	}
	return d(ctx, u)
}

// URL returns a Dialer for rawurl.
func URL(rawurl string) Dialer {
	return func(ctx context.Context) (Transport, error) {
		return Dial(ctx, rawurl)
	}
}
