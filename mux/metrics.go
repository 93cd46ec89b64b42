package mux

var (
	keyFramesSent     = []string{"clira", "mux", "frames", "sent"}
	keyFramesReceived = []string{"clira", "mux", "frames", "received"}
	keyUnknownMuxID   = []string{"clira", "mux", "frames", "dropped", "unknown_muxid"}
	keyUnknownOp      = []string{"clira", "mux", "frames", "dropped", "unknown_op"}
	keyProtocolError  = []string{"clira", "mux", "protocol_error"}
	keyCallsStarted   = []string{"clira", "mux", "calls", "started"}
	keyCallsCompleted = []string{"clira", "mux", "calls", "completed"}
	keyCallDuration   = []string{"clira", "mux", "call", "duration"}
	keyTraceDropped   = []string{"clira", "mux", "trace", "dropped"}
)
