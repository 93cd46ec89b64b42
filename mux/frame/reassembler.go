package frame

// Reassembler turns arbitrarily chunked transport messages into frames.
// A chunk may hold any number of frames and a frame may span any number of
// chunks. It is not safe for concurrent use.
//
// The zero value is idle and ready to use.
type Reassembler struct {
	buf []byte

	// remaining is the number of bytes still needed to complete the frame
	// at the front of buf, or zero when idle.
	remaining int

	err error
}

// Feed appends p and calls emit for every frame it completes, in order.
// A *ProtocolError is sticky: buffered bytes are dropped and every later
// call returns the same error without emitting. If emit returns an error,
// Feed stops and returns it; unprocessed bytes stay buffered.
func (r *Reassembler) Feed(p []byte, emit func(Frame) error) error {
	if r.err != nil {
		return r.err
	}
	r.buf = append(r.buf, p...)

	if r.remaining > 0 {
		r.remaining -= len(p)
		if r.remaining > 0 {
			return nil
		}
		r.remaining = 0
	}

	for len(r.buf) >= HeaderSize {
		h, err := DecodeHeader(r.buf)
		if err != nil {
			return r.fail(err)
		}
		if len(r.buf) < h.Length {
			r.remaining = h.Length - len(r.buf)
			return nil
		}
		f, err := Decode(r.buf[:h.Length])
		if err != nil {
			return r.fail(err)
		}
		r.buf = r.buf[h.Length:]
		if len(r.buf) == 0 {
			r.buf = nil
		}
		if err := emit(f); err != nil {
			return err
		}
	}
	return nil
}

// Remaining returns how many more bytes the current partial frame needs,
// or zero when no frame header has been seen yet.
func (r *Reassembler) Remaining() int {
	return r.remaining
}

// Buffered returns the number of bytes held for incomplete frames.
func (r *Reassembler) Buffered() int {
	return len(r.buf)
}

// Err returns the protocol error that stopped the reassembler, if any.
func (r *Reassembler) Err() error {
	return r.err
}

// Reset drops all buffered bytes and any sticky error.
func (r *Reassembler) Reset() {
	r.buf = nil
	r.remaining = 0
	r.err = nil
}

func (r *Reassembler) fail(err error) error {
	r.err = err
	r.buf = nil
	r.remaining = 0
	return err
}
