package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustEncode(t *testing.T, f Frame) []byte {
	t.Helper()
	b, err := Encode(f)
	require.NoError(t, err)
	return b
}

func feedAll(t *testing.T, r *Reassembler, chunks ...[]byte) ([]Frame, error) {
	t.Helper()
	var out []Frame
	for _, c := range chunks {
		if err := r.Feed(c, func(f Frame) error {
			out = append(out, f)
			return nil
		}); err != nil {
			return out, err
		}
	}
	return out, nil
}

func TestReassembleSplitEveryOffset(t *testing.T) {
	want := Frame{
		Op:      "sv-out",
		MuxID:   12,
		Attrs:   Attrs{{Key: "target", Value: "host1"}},
		Payload: []byte("<output>Junos 20.1</output>"),
	}
	b := mustEncode(t, want)

	for i := 0; i <= len(b); i++ {
		var r Reassembler
		got, err := feedAll(t, &r, b[:i], b[i:])
		require.NoError(t, err, "split at %d", i)
		require.Len(t, got, 1, "split at %d", i)
		requireFrame(t, want, got[0])
		require.Zero(t, r.Buffered())
		require.Zero(t, r.Remaining())
	}
}

func TestReassembleByteAtATime(t *testing.T) {
	want := Frame{Op: OpReply, MuxID: 1, Payload: []byte("abcdef")}
	b := mustEncode(t, want)

	var r Reassembler
	var got []Frame
	for i := range b {
		frames, err := feedAll(t, &r, b[i:i+1])
		require.NoError(t, err)
		got = append(got, frames...)
		if i >= HeaderSize-1 && i < len(b)-1 {
			require.Equal(t, len(b)-i-1, r.Remaining(), "offset %d", i)
		}
	}
	require.Len(t, got, 1)
	requireFrame(t, want, got[0])
}

func TestReassembleCoalesced(t *testing.T) {
	a := Frame{Op: OpReply, MuxID: 1, Payload: []byte("first")}
	b := Frame{Op: OpComplete, MuxID: 2}
	c := Frame{Op: OpReply, MuxID: 3, Payload: []byte("third, split")}
	cb := mustEncode(t, c)

	var r Reassembler
	msg := append(append(mustEncode(t, a), mustEncode(t, b)...), cb[:HeaderSize+3]...)
	got, err := feedAll(t, &r, msg)
	require.NoError(t, err)
	require.Len(t, got, 2)
	requireFrame(t, a, got[0])
	requireFrame(t, b, got[1])
	require.Equal(t, len(cb)-HeaderSize-3, r.Remaining())

	got, err = feedAll(t, &r, cb[HeaderSize+3:])
	require.NoError(t, err)
	require.Len(t, got, 1)
	requireFrame(t, c, got[0])
}

func TestReassembleBadMarkerIsFatal(t *testing.T) {
	bad := mustEncode(t, Frame{Op: OpReply, MuxID: 1, Payload: []byte("x")})
	bad[0] = '!'
	good := mustEncode(t, Frame{Op: OpComplete, MuxID: 1})

	var r Reassembler
	got, err := feedAll(t, &r, append(bad, good...))
	var protoErr *ProtocolError
	require.True(t, errors.As(err, &protoErr), "unexpected error: %v", err)
	require.Empty(t, got)
	require.Zero(t, r.Buffered())

	got, err = feedAll(t, &r, good)
	require.Equal(t, protoErr, err)
	require.Empty(t, got)
	require.Equal(t, protoErr, r.Err())

	r.Reset()
	got, err = feedAll(t, &r, good)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestReassembleEmitError(t *testing.T) {
	var r Reassembler
	stop := errors.New("stop")
	msg := append(mustEncode(t, Frame{Op: OpReply, MuxID: 1}), mustEncode(t, Frame{Op: OpComplete, MuxID: 1})...)

	err := r.Feed(msg, func(f Frame) error { return stop })
	require.ErrorIs(t, err, stop)
	require.NotZero(t, r.Buffered())

	var got []Frame
	require.NoError(t, r.Feed(nil, func(f Frame) error {
		got = append(got, f)
		return nil
	}))
	require.Len(t, got, 1)
	require.Equal(t, OpComplete, got[0].Op)
}

type chunkReader struct {
	chunks [][]byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func TestDecoder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	frames := []Frame{
		{Op: OpRPC, MuxID: 1, Attrs: Attrs{{Key: "target", Value: "host1"}}, Payload: []byte("<command>show version</command>")},
		{Op: OpHostkey, MuxID: 1, Payload: []byte("yes")},
		{Op: OpComplete, MuxID: 1},
	}
	for _, f := range frames {
		require.NoError(t, enc.Encode(f))
	}
	b := buf.Bytes()

	dec := NewDecoder(&chunkReader{chunks: [][]byte{b[:5], b[5:40], b[40:41], b[41:]}})
	for _, want := range frames {
		got, err := dec.Decode()
		require.NoError(t, err)
		requireFrame(t, want, got)
	}
	_, err := dec.Decode()
	require.Equal(t, io.EOF, err)

	dec = NewDecoder(bytes.NewReader(b[:len(b)-3]))
	for i := 0; i < 2; i++ {
		_, err := dec.Decode()
		require.NoError(t, err)
	}
	_, err = dec.Decode()
	require.Equal(t, io.ErrUnexpectedEOF, err)
}
