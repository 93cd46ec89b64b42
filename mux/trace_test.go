package mux_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/juise/clira/mux"
	"github.com/stretchr/testify/require"
)

type sinkTransport struct {
	sent [][]byte
}

func (s *sinkTransport) Send(p []byte) error {
	s.sent = append(s.sent, p)
	return nil
}

func (s *sinkTransport) Recv() ([]byte, error) {
	return []byte("#01."), nil
}

func (s *sinkTransport) Close() error {
	return nil
}

type failingEncoder struct {
	calls int
}

func (e *failingEncoder) Encode(interface{}) error {
	e.calls++
	return errors.New("no space left on device")
}

func TestTraceEncodeFailure(t *testing.T) {
	var logs bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &logs, Level: hclog.Warn})
	sink := &sinkTransport{}
	enc := &failingEncoder{}
	tr := mux.Trace(sink, enc, logger)

	require.NoError(t, tr.Send([]byte("one")))
	require.NoError(t, tr.Send([]byte("two")))
	msg, err := tr.Recv()
	require.NoError(t, err)
	require.Equal(t, "#01.", string(msg))

	require.Len(t, sink.sent, 2)
	require.Equal(t, 3, enc.calls)
	require.Equal(t, 1, strings.Count(logs.String(), "trace record dropped"))
	require.Contains(t, logs.String(), "no space left on device")
}

func TestTraceNilLogger(t *testing.T) {
	tr := mux.Trace(&sinkTransport{}, &failingEncoder{}, nil)
	require.NoError(t, tr.Send([]byte("one")))
}
