package codec

import (
	"encoding/json"
	"io"
)

// JSONCodec encodes one JSON document per value. It decodes auth prompts
// and prints frames for decode --json and replay --json.
type JSONCodec struct{}

// Encoder returns a JSON encoder that ends each document with a newline.
func (c JSONCodec) Encoder(w io.Writer) Encoder {
	return json.NewEncoder(w)
}

// Decoder returns a JSON decoder reading consecutive documents from r.
func (c JSONCodec) Decoder(r io.Reader) Decoder {
	return json.NewDecoder(r)
}
