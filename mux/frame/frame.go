// Package frame implements encoding and decoding of mixer frames.
//
// A frame is a fixed 31 byte ASCII header followed by an attributes line
// and a payload:
//
//	"#01." <len:8> "." <op:8> "." <muxid:8> "." <attrs> "\n" <payload>
//
// The length field counts every byte of the frame, header included.
package frame

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// Version is the marker every frame starts with.
	Version = "#01."

	// FieldWidth is the width of the length, op and muxid fields.
	FieldWidth = 8

	// HeaderSize is the size of the fixed header, trailing separator included.
	HeaderSize = len(Version) + 3*(FieldWidth+1)

	// MaxLength is the largest frame the length field can describe.
	MaxLength = 99999999

	// MaxMuxID is the largest muxid the muxid field can hold.
	MaxMuxID = 99999999
)

// field offsets within the header
const (
	offLength = len(Version)
	offOp     = offLength + FieldWidth + 1
	offMuxID  = offOp + FieldWidth + 1
)

// Operations used by the mixer. The set is open; any token is a valid op.
const (
	OpRPC        = "rpc"
	OpHTMLRPC    = "htmlrpc"
	OpComplete   = "complete"
	OpError      = "error"
	OpHostkey    = "hostkey"
	OpPassphrase = "psphrase"
	OpPassword   = "psword"
	OpReply      = "reply"
	OpData       = "data"
	OpAuthInit   = "authinit"
)

// Header holds the fixed fields of a frame.
type Header struct {
	Length int
	Op     string
	MuxID  uint64
}

// Frame is one self-contained unit on the wire.
type Frame struct {
	Op      string
	MuxID   uint64
	Attrs   Attrs
	Payload []byte
}

func (f Frame) String() string {
	return fmt.Sprintf("{Frame Op:%s MuxID:%d Attrs:%s Payload:%d bytes}",
		f.Op, f.MuxID, f.Attrs, len(f.Payload))
}

// Len returns the encoded length of the frame.
func (f Frame) Len() int {
	return HeaderSize + len(f.Attrs.String()) + 1 + len(f.Payload)
}

// Encode renders f in wire format.
func Encode(f Frame) ([]byte, error) {
	if err := checkOp(f.Op); err != nil {
		return nil, err
	}
	if f.MuxID > MaxMuxID {
		return nil, &EncodingError{Field: "muxid", Value: strconv.FormatUint(f.MuxID, 10), Reason: "exceeds field width"}
	}
	for _, a := range f.Attrs {
		if !isToken(a.Key) {
			return nil, &EncodingError{Field: "attrs", Value: a.Key, Reason: "invalid attribute name"}
		}
	}
	attrs := f.Attrs.String()
	length := HeaderSize + len(attrs) + 1 + len(f.Payload)
	if length > MaxLength {
		return nil, &EncodingError{Field: "length", Value: strconv.Itoa(length), Reason: "exceeds field width"}
	}

	buf := bytes.NewBuffer(make([]byte, 0, length))
	fmt.Fprintf(buf, "%s%0*d.%-*s.%0*d.", Version,
		FieldWidth, length, FieldWidth, f.Op, FieldWidth, f.MuxID)
	buf.WriteString(attrs)
	buf.WriteByte('\n')
	buf.Write(f.Payload)
	return buf.Bytes(), nil
}

// DecodeHeader parses the fixed header at the start of b. A header that
// does not parse means the stream is out of sync and is reported as a
// *ProtocolError.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, io.ErrUnexpectedEOF
	}
	hdr := b[:HeaderSize]
	if string(hdr[:len(Version)]) != Version {
		return Header{}, protocolError(hdr, "bad version marker %q", hdr[:len(Version)])
	}
	for _, off := range []int{offOp - 1, offMuxID - 1, HeaderSize - 1} {
		if hdr[off] != '.' {
			return Header{}, protocolError(hdr, "missing separator at offset %d", off)
		}
	}

	length, err := parseField(hdr[offLength : offLength+FieldWidth])
	if err != nil {
		return Header{}, protocolError(hdr, "bad length field: %v", err)
	}
	if length < uint64(HeaderSize+1) {
		return Header{}, protocolError(hdr, "length %d shorter than header", length)
	}
	muxid, err := parseField(hdr[offMuxID : offMuxID+FieldWidth])
	if err != nil {
		return Header{}, protocolError(hdr, "bad muxid field: %v", err)
	}
	op := strings.TrimRight(string(hdr[offOp:offOp+FieldWidth]), " ")
	if !isToken(op) {
		return Header{}, protocolError(hdr, "bad op field %q", op)
	}

	return Header{
		Length: int(length),
		Op:     op,
		MuxID:  muxid,
	}, nil
}

// Decode parses b, which must hold exactly one complete frame.
// The payload is copied out of b.
func Decode(b []byte) (Frame, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return Frame{}, err
	}
	if len(b) != h.Length {
		return Frame{}, protocolError(b[:HeaderSize], "frame is %d bytes, header says %d", len(b), h.Length)
	}

	rest := b[HeaderSize:]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 {
		return Frame{}, protocolError(b[:HeaderSize], "missing attributes terminator")
	}
	attrs, err := ParseAttrs(string(rest[:nl]))
	if err != nil {
		return Frame{}, protocolError(b[:HeaderSize], "%v", err)
	}

	return Frame{
		Op:      h.Op,
		MuxID:   h.MuxID,
		Attrs:   attrs,
		Payload: append([]byte(nil), rest[nl+1:]...),
	}, nil
}

func parseField(b []byte) (uint64, error) {
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-digit %q", c)
		}
	}
	return strconv.ParseUint(string(b), 10, 64)
}

func checkOp(op string) error {
	switch {
	case op == "":
		return &EncodingError{Field: "op", Value: op, Reason: "empty"}
	case len(op) > FieldWidth:
		return &EncodingError{Field: "op", Value: op, Reason: "exceeds field width"}
	case !isToken(op):
		return &EncodingError{Field: "op", Value: op, Reason: "not a token"}
	}
	return nil
}

func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
