package frame

import "fmt"

// ProtocolError reports a frame that cannot be parsed. The stream it came
// from is out of sync and must not be read any further.
type ProtocolError struct {
	Reason string
	Header []byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("frame: protocol error: %s (header %q)", e.Reason, e.Header)
}

func protocolError(hdr []byte, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{
		Reason: fmt.Sprintf(format, args...),
		Header: append([]byte(nil), hdr...),
	}
}

// EncodingError reports an outbound field that does not fit the wire format.
// Nothing has been sent when it is returned.
type EncodingError struct {
	Field  string
	Value  string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("frame: cannot encode %s %q: %s", e.Field, e.Value, e.Reason)
}
