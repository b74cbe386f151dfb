package upload

import "time"

// Status is the terminal outcome of a transfer session.
type Status string

const (
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// ErrorEvent describes a failed transfer. It is delivered at most once per
// session, after all progress events and before the finished event.
type ErrorEvent struct {
	Code ErrorCode

	// RemoteStatus is the HTTP status or FTP reply code, when the
	// collector answered at all.
	RemoteStatus int
	Err          error
}

// Result is carried by the finished event and returned by Session.Wait.
type Result struct {
	File      string
	Endpoint  string
	Transport string
	Status    Status

	// Body is the full collector response, possibly empty.
	Body         []byte
	RemoteStatus int

	Code ErrorCode
	Err  error

	BytesSent  int64
	BytesTotal int64
	StartedAt  time.Time
	Duration   time.Duration

	// Deleted reports whether the local dump was removed after delivery.
	Deleted bool
}

// Succeeded reports whether the dump was delivered.
func (r *Result) Succeeded() bool {
	return r.Status == StatusFinished
}

// Handler receives the events of a transfer session. Events of one session
// are delivered sequentially in the order
//
//	OnProgress* -> OnError? -> OnFinished
//
// and nothing is delivered after OnFinished. Handlers must not block for
// long: progress events are delivered while the upload body is streaming.
type Handler interface {
	OnProgress(sent, total int64)
	OnError(ev ErrorEvent)
	OnFinished(res *Result)
}

// HandlerFuncs adapts optional functions to a Handler. Nil fields are
// skipped.
type HandlerFuncs struct {
	Progress func(sent, total int64)
	Error    func(ev ErrorEvent)
	Finished func(res *Result)
}

var _ Handler = HandlerFuncs{}

func (h HandlerFuncs) OnProgress(sent, total int64) {
	if h.Progress != nil {
		h.Progress(sent, total)
	}
}

func (h HandlerFuncs) OnError(ev ErrorEvent) {
	if h.Error != nil {
		h.Error(ev)
	}
}

func (h HandlerFuncs) OnFinished(res *Result) {
	if h.Finished != nil {
		h.Finished(res)
	}
}

type multiHandler []Handler

// MultiHandler fans every event out to all non-nil handlers, in order.
func MultiHandler(handlers ...Handler) Handler {
	m := make(multiHandler, 0, len(handlers))

	for _, h := range handlers {
		if h != nil {
			m = append(m, h)
		}
	}

	return m
}

func (m multiHandler) OnProgress(sent, total int64) {
	for _, h := range m {
		h.OnProgress(sent, total)
	}
}

func (m multiHandler) OnError(ev ErrorEvent) {
	for _, h := range m {
		h.OnError(ev)
	}
}

func (m multiHandler) OnFinished(res *Result) {
	for _, h := range m {
		h.OnFinished(res)
	}
}
