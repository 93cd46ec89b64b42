package frame

import (
	"errors"
	"io"
	"os"
	"sync"
	"syscall"
)

const readChunk = 32 * 1024

// Decoder decodes frames given an io.Reader
type Decoder struct {
	r     io.Reader
	re    Reassembler
	queue []Frame
	buf   []byte
	sync.Mutex
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode returns the next frame read from the underlying reader. It returns
// io.EOF when the reader ends on a frame boundary and io.ErrUnexpectedEOF
// when it ends inside a frame.
func (dec *Decoder) Decode() (Frame, error) {
	dec.Lock()
	defer dec.Unlock()

	if dec.buf == nil {
		dec.buf = make([]byte, readChunk)
	}
	for len(dec.queue) == 0 {
		n, err := dec.r.Read(dec.buf)
		if n > 0 {
			if ferr := dec.re.Feed(dec.buf[:n], dec.push); ferr != nil {
				return Frame{}, ferr
			}
		}
		if err != nil {
			if len(dec.queue) > 0 {
				break
			}
			var syscallErr *os.SyscallError
			if errors.As(err, &syscallErr) && syscallErr.Err == syscall.ECONNRESET {
				err = io.EOF
			}
			if err == io.EOF && dec.re.Buffered() > 0 {
				return Frame{}, io.ErrUnexpectedEOF
			}
			return Frame{}, err
		}
	}

	f := dec.queue[0]
	dec.queue = dec.queue[1:]
	return f, nil
}

func (dec *Decoder) push(f Frame) error {
	dec.queue = append(dec.queue, f)
	return nil
}
