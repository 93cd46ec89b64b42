package mux

import (
	"io"
	"sync"
	"time"

	"github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
	"github.com/juise/clira/codec"
)

// Trace directions.
const (
	TraceSend byte = 'S'
	TraceRecv byte = 'R'
)

// TraceRecord is one transport message as seen by the Muxer. Chunk
// boundaries are preserved so reassembly can be replayed exactly.
type TraceRecord struct {
	_    struct{} `cbor:",toarray"`
	Dir  byte     `json:"dir"`
	Time int64    `json:"time"`
	Data []byte   `json:"data"`
}

type tracer struct {
	Transport

	logger hclog.Logger

	mu      sync.Mutex
	enc     codec.Encoder
	dropped int
}

// Trace wraps t so every message sent or received is also written to enc
// as a TraceRecord. Encoding failures never fail the transport; the first
// one is logged and every one is counted. logger may be nil.
func Trace(t Transport, enc codec.Encoder, logger hclog.Logger) Transport {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &tracer{Transport: t, enc: enc, logger: logger}
}

func (t *tracer) Send(p []byte) error {
	if err := t.Transport.Send(p); err != nil {
		return err
	}
	t.record(TraceSend, p)
	return nil
}

func (t *tracer) Recv() ([]byte, error) {
	p, err := t.Transport.Recv()
	if err != nil {
		return nil, err
	}
	t.record(TraceRecv, p)
	return p, nil
}

func (t *tracer) record(dir byte, p []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.enc.Encode(TraceRecord{
		Dir:  dir,
		Time: time.Now().UnixNano(),
		Data: p,
	})
	if err == nil {
		return
	}
	metrics.IncrCounter(keyTraceDropped, 1)
	if t.dropped == 0 {
		t.logger.Warn("trace record dropped, trace is incomplete", "dir", string(dir), "bytes", len(p), "error", err)
	}
	t.dropped++
}

// ReadTrace decodes records from dec and calls fn for each until dec is
// exhausted or fn returns an error.
func ReadTrace(dec codec.Decoder, fn func(TraceRecord) error) error {
	for {
		var rec TraceRecord
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
