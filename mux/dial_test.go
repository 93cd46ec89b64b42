package mux_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/juise/clira/mux"
	"github.com/juise/clira/mux/frame"
	"github.com/stretchr/testify/require"
)

func TestDialUnknownScheme(t *testing.T) {
	_, err := mux.Dial(context.Background(), "quic://localhost:8443")
	require.EqualError(t, err, "transport 'quic' not available in Dialers")
}

func TestDialTCP(t *testing.T) {
	l, err := mux.ListenTCP("127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	want := frame.Frame{Op: frame.OpReply, MuxID: 3, Payload: []byte("over tcp")}
	b, err := frame.Encode(want)
	require.NoError(t, err)
	go func() {
		tr, err := l.Accept()
		if err != nil {
			return
		}
		defer tr.Close()
		tr.Send(b[:20])
		tr.Send(b[20:])
	}()

	tr, err := mux.Dial(context.Background(), "tcp://"+l.Addr().String())
	require.NoError(t, err)
	defer tr.Close()

	dec := frame.NewDecoder(&transportReader{tr: tr})
	got, err := dec.Decode()
	require.NoError(t, err)
	require.Equal(t, want.Op, got.Op)
	require.Equal(t, want.MuxID, got.MuxID)
	require.Equal(t, want.Payload, got.Payload)
}

func TestDialWSCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := mux.DialWS(ctx, "ws://127.0.0.1:1/")
	require.ErrorIs(t, err, context.Canceled)
}

// transportReader reads a Transport as a byte stream.
type transportReader struct {
	tr  mux.Transport
	buf []byte
}

func (r *transportReader) Read(p []byte) (int, error) {
	if len(r.buf) == 0 {
		msg, err := r.tr.Recv()
		if err != nil {
			return 0, err
		}
		r.buf = msg
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func TestListenUnix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mixer.sock")
	l, err := mux.ListenUnix(path)
	require.NoError(t, err)
	defer l.Close()

	accepted := make(chan mux.Transport, 1)
	go func() {
		tr, err := l.Accept()
		if err == nil {
			accepted <- tr
		}
	}()

	tr, err := mux.Dial(context.Background(), "unix://"+path)
	require.NoError(t, err)
	defer tr.Close()
	peer := <-accepted
	defer peer.Close()

	require.NoError(t, tr.Send([]byte("ping")))
	msg, err := peer.Recv()
	require.NoError(t, err)
	require.Equal(t, "ping", string(msg))

	require.NoError(t, tr.Close())
	_, err = peer.Recv()
	require.ErrorIs(t, err, io.EOF)
}

func TestListenIO(t *testing.T) {
	r, w := io.Pipe()
	l := mux.ListenIO(w, r)
	require.Nil(t, l.Addr())
	tr, err := l.Accept()
	require.NoError(t, err)
	require.NotNil(t, tr)
	_, err = l.Accept()
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, l.Close())
}
