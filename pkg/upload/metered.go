package upload

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// meteredReader reports the cumulative read offset of the dump after every
// read and optionally throttles reads with a token bucket. Seeking is passed
// through so transports that rewind the body (S3 checksums) keep working.
type meteredReader struct {
	ctx     context.Context
	r       io.ReadSeeker
	limiter *rate.Limiter
	offset  int64
	report  func(int64)
}

var _ io.ReadSeeker = (*meteredReader)(nil)

func newMeteredReader(
	ctx context.Context,
	r io.ReadSeeker,
	limiter *rate.Limiter,
	report func(int64),
) *meteredReader {
	return &meteredReader{
		ctx:     ctx,
		r:       r,
		limiter: limiter,
		report:  report,
	}
}

func (m *meteredReader) Read(p []byte) (int, error) {
	if m.limiter != nil && len(p) > 0 {
		if burst := m.limiter.Burst(); len(p) > burst {
			p = p[:burst]
		}

		if err := m.limiter.WaitN(m.ctx, len(p)); err != nil {
			return 0, err
		}
	}

	n, err := m.r.Read(p)
	if n > 0 {
		m.offset += int64(n)
		m.report(m.offset)
	}

	return n, err
}

func (m *meteredReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := m.r.Seek(offset, whence)
	if err == nil {
		m.offset = pos
	}

	return pos, err
}
