package frame

import (
	"io"
	"sync"
)

// Encoder encodes frames given an io.Writer
type Encoder struct {
	w io.Writer
	sync.Mutex
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes f as a single Write call.
func (enc *Encoder) Encode(f Frame) error {
	b, err := Encode(f)
	if err != nil {
		return err
	}

	enc.Lock()
	defer enc.Unlock()

	_, err = enc.w.Write(b)
	return err
}
