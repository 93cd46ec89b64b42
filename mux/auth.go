package mux

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/juise/clira/codec"
	"github.com/juise/clira/mux/frame"
	"github.com/mitchellh/mapstructure"
)

// Prompt is an authentication prompt the mixer forwards on the auth call.
// MuxID names the call the prompt belongs to.
type Prompt struct {
	MuxID  uint64 `mapstructure:"muxid"`
	Prompt string `mapstructure:"prompt"`
	ReqID  string `mapstructure:"reqid"`
}

// DecodePrompt parses the JSON document carried by an auth prompt frame.
func DecodePrompt(payload []byte) (Prompt, error) {
	var doc map[string]interface{}
	if err := (codec.JSONCodec{}).Decoder(bytes.NewReader(payload)).Decode(&doc); err != nil {
		return Prompt{}, fmt.Errorf("mux: decoding prompt: %w", err)
	}
	var p Prompt
	if err := mapstructure.WeakDecode(doc, &p); err != nil {
		return Prompt{}, fmt.Errorf("mux: decoding prompt: %w", err)
	}
	return p, nil
}

// auth is the long-lived call the mixer uses to route authentication
// prompts for every other call on the connection. RPC frames are held
// until the mixer has acknowledged authinit.
type auth struct {
	m         *Muxer
	muxid     uint64
	initFrame []byte

	mu       sync.Mutex
	ready    bool
	socketID string
	held     [][]byte
}

func newAuth(m *Muxer) *auth {
	// the table is empty, so neither allocate nor register can fail
	muxid, _ := m.table.allocate()
	a := &auth{m: m, muxid: muxid}
	a.initFrame, _ = frame.Encode(frame.Frame{Op: frame.OpAuthInit, MuxID: muxid})

	m.table.register(&Call{
		MuxID: muxid,
		Op:    frame.OpAuthInit,
		handlers: Handlers{
			frame.OpAuthInit:   a.onAuthInit,
			frame.OpHostkey:    a.onPrompt,
			frame.OpPassphrase: a.onPrompt,
			frame.OpPassword:   a.onPrompt,
		},
	})
	return a
}

// send writes an RPC frame, holding it until authinit is acknowledged.
func (a *auth) send(b []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready {
		a.held = append(a.held, b)
		a.m.Open(context.Background())
		return nil
	}
	return a.m.send(b)
}

func (a *auth) onAuthInit(_ *Call, f frame.Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ready = true
	a.socketID = string(f.Payload)
	a.m.logger.Debug("auth channel ready", "authmuxid", a.muxid, "socket", a.socketID, "held", len(a.held))

	held := a.held
	a.held = nil
	for i, b := range held {
		if err := a.m.send(b); err != nil {
			a.m.logger.Error("sending held rpc failed", "error", err)
			a.held = held[i:]
			return
		}
	}
}

// onPrompt re-dispatches a prompt to the call it names, as if it had
// arrived on that call's muxid.
func (a *auth) onPrompt(_ *Call, f frame.Frame) {
	p, err := DecodePrompt(f.Payload)
	if err != nil {
		a.m.logger.Warn("dropping malformed prompt", "op", f.Op, "error", err)
		return
	}
	call, ok := a.m.table.lookup(p.MuxID)
	if !ok {
		a.m.logger.Warn("dropping prompt for unknown muxid", "op", f.Op, "muxid", p.MuxID)
		return
	}
	h, ok := call.handlers[f.Op]
	if !ok {
		a.m.logger.Warn("unhandled prompt", "op", f.Op, "muxid", p.MuxID)
		return
	}

	var attrs frame.Attrs
	if p.ReqID != "" {
		attrs = attrs.With("reqid", p.ReqID)
	}
	h(call, frame.Frame{
		Op:      f.Op,
		MuxID:   call.MuxID,
		Attrs:   attrs,
		Payload: []byte(p.Prompt),
	})
}

func (a *auth) reset(dropHeld bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ready = false
	a.socketID = ""
	if dropHeld {
		a.held = nil
	}
}

// AuthSocketID returns the identifier the mixer assigned in reply to
// authinit, or "" when AuthInit is off or not yet acknowledged.
func (m *Muxer) AuthSocketID() string {
	if m.auth == nil {
		return ""
	}
	m.auth.mu.Lock()
	defer m.auth.mu.Unlock()
	return m.auth.socketID
}
