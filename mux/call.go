package mux

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/juise/clira/mux/frame"
	"github.com/mitchellh/mapstructure"
)

// Handler is invoked for each frame routed to a call. The call record is
// passed explicitly so the handler can answer prompts on it.
type Handler func(call *Call, f frame.Frame)

// Handlers maps an operation name to the handler for frames carrying it.
// The op set is open: servers may push any op a handler is registered for.
type Handlers map[string]Handler

// On returns h with fn registered for op, allocating h if needed.
func (h Handlers) On(op string, fn Handler) Handlers {
	if h == nil {
		h = make(Handlers)
	}
	h[op] = fn
	return h
}

// CallOptions describe an RPC.
type CallOptions struct {
	// Target is the device the mixer should run the RPC against.
	Target string

	// Payload is sent verbatim. If empty, Command is wrapped in a
	// <command> element instead.
	Payload string
	Command string

	// Op of the initial frame, "rpc" if empty.
	Op string

	// Attrs are appended after the target attribute.
	Attrs frame.Attrs

	Handlers Handlers

	// OnClose is called if the connection ends while the call is
	// outstanding.
	OnClose func(call *Call, err error)
}

func (o CallOptions) payload() string {
	if o.Payload != "" || o.Command == "" {
		return o.Payload
	}
	var sb strings.Builder
	sb.WriteString("<command>")
	xml.EscapeText(&sb, []byte(o.Command))
	sb.WriteString("</command>")
	return sb.String()
}

// Call is the record of an outstanding RPC. It lives in the dispatch table
// from RPC until its complete frame is routed.
type Call struct {
	MuxID   uint64
	Target  string
	Op      string
	Payload string
	Started time.Time

	handlers Handlers
	onClose  func(*Call, error)
}

// Handles reports whether the call has a handler for op.
func (c *Call) Handles(op string) bool {
	_, ok := c.handlers[op]
	return ok
}

func (c *Call) String() string {
	return fmt.Sprintf("{Call MuxID:%d Op:%s Target:%s}", c.MuxID, c.Op, c.Target)
}

type rawOptions struct {
	Target  string `mapstructure:"target"`
	Payload string `mapstructure:"payload"`
	Command string `mapstructure:"command"`
	Op      string `mapstructure:"op"`
}

// OptionsFrom decodes loosely typed options, such as parsed command line
// arguments, into CallOptions. Keys other than target, payload, command
// and op become extra attributes, in key order.
func OptionsFrom(m map[string]interface{}) (CallOptions, error) {
	var raw rawOptions
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata:         &md,
		WeaklyTypedInput: true,
		Result:           &raw,
	})
	if err != nil {
		return CallOptions{}, err
	}
	if err := dec.Decode(m); err != nil {
		return CallOptions{}, fmt.Errorf("mux: decoding call options: %w", err)
	}

	opts := CallOptions{
		Target:  raw.Target,
		Payload: raw.Payload,
		Command: raw.Command,
		Op:      raw.Op,
	}
	sort.Strings(md.Unused)
	for _, key := range md.Unused {
		opts.Attrs = append(opts.Attrs, frame.Attr{Key: key, Value: fmt.Sprint(m[key])})
	}
	return opts, nil
}
