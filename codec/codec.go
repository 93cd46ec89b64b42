// Package codec gives clira one shape for the encodings it streams: CBOR
// for transport traces written by mux.Trace and read back by ReadTrace,
// and JSON for the auth prompt documents the mixer sends and for the
// CLI's --json output.
package codec

import (
	"io"
)

// Encoder writes a stream of values, such as trace records.
type Encoder interface {
	// Encode writes an encoding of v to its Writer.
	Encode(v interface{}) error
}

// Decoder reads a stream of values until io.EOF.
type Decoder interface {
	// Decode reads the next encoded value from its Reader and stores it in the value pointed to by v.
	Decode(v interface{}) error
}

// Codec returns an Encoder or Decoder given a Writer or Reader.
type Codec interface {
	Encoder(w io.Writer) Encoder
	Decoder(r io.Reader) Decoder
}
