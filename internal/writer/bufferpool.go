package writer

import "sync"

// recordBufferPool pools the byte buffers formatRecord builds each line
// into, sized for the common case, with graceful fallback for larger
// records (a metric carrying many tags). Adapted from the teacher's
// tiered sync.Pool buffer pool; this package only needs one tier since a
// record line is bounded by ingest's per-metric limits, not arbitrary
// message sizes.
type recordBufferPoolT struct {
	pool sync.Pool
}

var recordBufPool = &recordBufferPoolT{
	pool: sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 0, 256)
			return &buf
		},
	},
}

func (p *recordBufferPoolT) get() *[]byte {
	buf := p.pool.Get().(*[]byte)
	*buf = (*buf)[:0]
	return buf
}

func (p *recordBufferPoolT) put(buf *[]byte) {
	const maxRetained = 64 * 1024
	if cap(*buf) > maxRetained {
		return
	}
	p.pool.Put(buf)
}
