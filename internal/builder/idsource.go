package builder

import (
	"sync"

	"github.com/xDarkicex/vannoy/internal/idalloc"
)

// idSource hands node ids to one tree's construction: a free list
// populated single-threaded before construction begins, falling back to
// idalloc.Counter's atomic monotonic counter once the free list is
// exhausted. Every tree numbers its nodes locally from zero; the merge
// phase rebases them onto their final store positions in tree-index
// order.
type idSource struct {
	mu      sync.Mutex
	free    []uint32
	counter *idalloc.Counter
}

func newIDSource(watermark uint32, free []uint32) *idSource {
	return &idSource{free: free, counter: idalloc.New(watermark)}
}

// Next returns an id from the free list if one is available, otherwise
// the next unused id above the watermark. Safe for concurrent callers.
func (s *idSource) Next() uint32 {
	s.mu.Lock()
	if n := len(s.free); n > 0 {
		id := s.free[n-1]
		s.free = s.free[:n-1]
		s.mu.Unlock()
		return id
	}
	s.mu.Unlock()
	return s.counter.Next()
}
