package upload

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// State is the lifecycle state of an Uploader.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateProgressing
	StateFinished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateProgressing:
		return "progressing"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// maxThrottleBurst bounds a single throttled read.
const maxThrottleBurst = 32 * 1024

// Options configures an Uploader.
type Options struct {
	Product Product

	// Fields are extra metadata fields sent after the product fields.
	Fields []Field

	// BytesPerSecond throttles the upload body. Zero means unlimited.
	BytesPerSecond int64
}

// Uploader owns at most one transfer session at a time. A submission made
// while a session is outstanding is rejected, never queued.
type Uploader struct {
	log        logrus.FieldLogger
	opts       Options
	transports map[string]Transport
	limiter    *rate.Limiter

	mu       sync.Mutex
	endpoint *url.URL
	state    State
	active   *Session
}

// New creates an Uploader that dispatches to the given transports by the
// endpoint's URL scheme.
func New(log logrus.FieldLogger, opts Options, transports ...Transport) *Uploader {
	u := &Uploader{
		log:        log.WithField("component", "uploader"),
		opts:       opts,
		transports: make(map[string]Transport, len(transports)*2),
	}

	for _, t := range transports {
		for _, scheme := range t.Schemes() {
			u.transports[scheme] = t
		}
	}

	if opts.BytesPerSecond > 0 {
		burst := int(opts.BytesPerSecond)
		if burst > maxThrottleBurst {
			burst = maxThrottleBurst
		}

		u.limiter = rate.NewLimiter(rate.Limit(opts.BytesPerSecond), burst)
	}

	return u
}

// SetURL sets the endpoint used by the next submission. A session that is
// already running keeps the endpoint it was started with.
func (u *Uploader) SetURL(endpoint string) error {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parsing endpoint %q: %w", endpoint, err)
	}

	u.mu.Lock()
	u.endpoint = parsed
	u.mu.Unlock()

	return nil
}

// URL returns the configured endpoint, or "" when none is set.
func (u *Uploader) URL() string {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.endpoint == nil {
		return ""
	}

	return u.endpoint.String()
}

// State returns the current lifecycle state.
func (u *Uploader) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.state
}

// Submit starts a transfer session for the dump at path and returns without
// waiting for the network exchange. Events are delivered to h; the finished
// event is the only completion signal. ctx bounds the whole session.
//
// Submit fails without any network activity or events when a session is
// already active, no endpoint is set, the scheme has no transport, or the
// dump cannot be opened.
func (u *Uploader) Submit(ctx context.Context, path string, h Handler) (*Session, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.active != nil {
		return nil, ErrSessionActive
	}

	if u.endpoint == nil {
		return nil, ErrNoEndpoint
	}

	transport, ok := u.transports[strings.ToLower(u.endpoint.Scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.endpoint.Scheme)
	}

	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	f, size, err := openDump(path)
	if err != nil {
		return nil, err
	}

	if h == nil {
		h = HandlerFuncs{}
	}

	endpoint := *u.endpoint

	s := &Session{
		File:      path,
		Endpoint:  endpoint.Redacted(),
		Transport: transport.Name(),
		total:     size,
		handler:   h,
		done:      make(chan struct{}),
	}
	s.onFirstProgress = func() { u.markProgressing(s) }

	u.active = s
	u.state = StateRequesting

	go u.run(ctx, s, transport, f, &endpoint)

	return s, nil
}

func (u *Uploader) run(ctx context.Context, s *Session, t Transport, f *os.File, endpoint *url.URL) {
	log := u.log.WithFields(logrus.Fields{
		"file":      s.File,
		"endpoint":  s.Endpoint,
		"transport": s.Transport,
	})

	log.WithField("size", s.total).Debug("Upload started")

	res := &Result{
		File:       s.File,
		Endpoint:   s.Endpoint,
		Transport:  s.Transport,
		BytesTotal: s.total,
		StartedAt:  time.Now(),
	}

	reply, err := t.Send(ctx, &Payload{
		URL:      endpoint,
		Body:     newMeteredReader(ctx, f, u.limiter, s.progress),
		Size:     s.total,
		FileName: filepath.Base(s.File),
		Product:  u.opts.Product,
		Fields:   u.opts.Fields,
	})

	if cerr := f.Close(); cerr != nil {
		log.WithError(cerr).Debug("Closing dump file")
	}

	res.Duration = time.Since(res.StartedAt)

	if reply != nil {
		res.Body = reply.Body
		res.RemoteStatus = reply.Status
	}

	if err != nil {
		code, status := classify(err)
		if status != 0 {
			res.RemoteStatus = status
		}

		res.Status = StatusFailed
		res.Code = code
		res.Err = err

		log.WithError(err).WithFields(logrus.Fields{
			"code":   code,
			"status": res.RemoteStatus,
			"answer": string(res.Body),
		}).Warn("Upload failed")
	} else {
		res.Status = StatusFinished

		// The collector has the dump, local retention is no longer needed.
		if rmErr := os.Remove(s.File); rmErr != nil {
			log.WithError(rmErr).Warn("Failed to remove delivered dump")
		} else {
			res.Deleted = true
		}

		log.WithFields(logrus.Fields{
			"status":   res.RemoteStatus,
			"duration": res.Duration,
			"answer":   string(res.Body),
		}).Info("Upload succeeded")
	}

	res.BytesSent = s.stop()

	if res.Status == StatusFailed {
		u.setState(StateFailed)
		s.handler.OnError(ErrorEvent{
			Code:         res.Code,
			RemoteStatus: res.RemoteStatus,
			Err:          res.Err,
		})
	} else {
		u.setState(StateFinished)
	}

	s.handler.OnFinished(res)

	u.mu.Lock()
	u.active = nil
	u.state = StateIdle
	u.mu.Unlock()

	s.result = res
	close(s.done)
}

func (u *Uploader) setState(state State) {
	u.mu.Lock()
	u.state = state
	u.mu.Unlock()
}

func (u *Uploader) markProgressing(s *Session) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.active == s && u.state == StateRequesting {
		u.state = StateProgressing
	}
}

// openDump opens path read-only and returns the file with its size.
func openDump(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, &DumpError{Path: path, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()

		return nil, 0, &DumpError{Path: path, Err: err}
	}

	if !info.Mode().IsRegular() {
		_ = f.Close()

		return nil, 0, &DumpError{Path: path, Err: fmt.Errorf("not a regular file")}
	}

	return f, info.Size(), nil
}

// Session is one submission attempt, from request construction to the
// finished event.
type Session struct {
	File      string
	Endpoint  string
	Transport string

	total   int64
	handler Handler

	mu              sync.Mutex
	sent            int64
	started         bool
	terminal        bool
	onFirstProgress func()

	done   chan struct{}
	result *Result
}

// Done is closed after the finished event has been delivered.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session finishes or ctx is done.
func (s *Session) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-s.done:
		return s.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the session result, or nil while it is still running.
func (s *Session) Result() *Result {
	select {
	case <-s.done:
		return s.result
	default:
		return nil
	}
}

// progress forwards a cumulative byte count. Counts that do not advance,
// and anything reported after the session went terminal, are dropped so the
// handler sees a strictly increasing sequence bounded by the dump size.
func (s *Session) progress(sent int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal {
		return
	}

	if sent > s.total {
		sent = s.total
	}

	if sent <= s.sent {
		return
	}

	s.sent = sent

	if !s.started {
		s.started = true
		s.onFirstProgress()
	}

	s.handler.OnProgress(sent, s.total)
}

// stop marks the session terminal and returns the last reported count.
func (s *Session) stop() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.terminal = true

	return s.sent
}
