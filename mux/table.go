package mux

import (
	"sort"
	"strconv"
	"sync"

	"github.com/juise/clira/mux/frame"
)

// table maps muxids to outstanding calls.
type table struct {
	mu    sync.Mutex
	calls map[uint64]*Call
	last  uint64
}

func newTable() *table {
	return &table{calls: make(map[uint64]*Call)}
}

// allocate returns the next muxid. Ids never wrap: running out of field
// width is an encoding error rather than a risk of colliding with a call
// that is still outstanding.
func (t *table) allocate() (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last >= frame.MaxMuxID {
		return 0, &frame.EncodingError{
			Field:  "muxid",
			Value:  strconv.FormatUint(t.last+1, 10),
			Reason: "muxid space exhausted",
		}
	}
	t.last++
	return t.last, nil
}

func (t *table) register(c *Call) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.calls[c.MuxID]; ok {
		return ErrDuplicateCall
	}
	t.calls[c.MuxID] = c
	return nil
}

func (t *table) lookup(muxid uint64) (*Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[muxid]
	return c, ok
}

func (t *table) release(muxid uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.calls, muxid)
}

func (t *table) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// snapshot returns the outstanding calls ordered by muxid.
func (t *table) snapshot() []*Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	calls := make([]*Call, 0, len(t.calls))
	for _, c := range t.calls {
		calls = append(calls, c)
	}
	sort.Slice(calls, func(i, j int) bool {
		return calls[i].MuxID < calls[j].MuxID
	})
	return calls
}
