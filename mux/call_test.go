package mux

import (
	"testing"

	"github.com/juise/clira/mux/frame"
	"github.com/stretchr/testify/require"
)

func TestOptionsFrom(t *testing.T) {
	opts, err := OptionsFrom(map[string]interface{}{
		"target":  "router1",
		"command": "show version",
		"format":  "text",
		"count":   3,
		"create":  false,
	})
	require.NoError(t, err)
	require.Equal(t, "router1", opts.Target)
	require.Equal(t, "", opts.Op)
	require.Equal(t, "<command>show version</command>", opts.payload())
	require.Equal(t, frame.Attrs{
		{Key: "count", Value: "3"},
		{Key: "create", Value: "false"},
		{Key: "format", Value: "text"},
	}, opts.Attrs)

	opts, err = OptionsFrom(map[string]interface{}{
		"target":  42,
		"payload": "<get-software-information/>",
		"command": "ignored",
		"op":      "htmlrpc",
	})
	require.NoError(t, err)
	require.Equal(t, "42", opts.Target)
	require.Equal(t, frame.OpHTMLRPC, opts.Op)
	require.Equal(t, "<get-software-information/>", opts.payload())
	require.Empty(t, opts.Attrs)

	_, err = OptionsFrom(map[string]interface{}{"target": []string{"a", "b"}})
	require.Error(t, err)
}

func TestHandlersOn(t *testing.T) {
	var h Handlers
	h = h.On(frame.OpReply, func(*Call, frame.Frame) {})
	c := &Call{MuxID: 1, Target: "r1", Op: frame.OpRPC, handlers: h}
	require.True(t, c.Handles(frame.OpReply))
	require.False(t, c.Handles(frame.OpComplete))
	require.Equal(t, "{Call MuxID:1 Op:rpc Target:r1}", c.String())
}
