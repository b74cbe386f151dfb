package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
)

var (
	// ErrSessionActive is returned by Submit while a transfer session is
	// still outstanding on the same uploader.
	ErrSessionActive = errors.New("upload session already active")

	// ErrNoEndpoint is returned by Submit when no upload URL is configured.
	ErrNoEndpoint = errors.New("no upload endpoint configured")

	// ErrUnsupportedScheme is returned by Submit when no transport serves
	// the endpoint's URL scheme.
	ErrUnsupportedScheme = errors.New("unsupported endpoint scheme")

	// ErrDumpNotFound matches a DumpError for a dump file that does not exist.
	ErrDumpNotFound = errors.New("dump file not found")
)

// Transport moves a single dump to a remote collector. Implementations
// perform one request/response exchange per Send call and never retry.
type Transport interface {
	// Name identifies the transport in logs, metrics and the ledger.
	Name() string

	// Schemes lists the URL schemes served by the transport.
	Schemes() []string

	// Send transmits the payload. On remote rejection the reply is returned
	// together with a *TransferError so the response body is not lost.
	Send(ctx context.Context, p *Payload) (*Reply, error)
}

// Field is an ordered key/value metadata field.
type Field struct {
	Name  string
	Value string
}

// Product identifies the application the dump belongs to.
type Product struct {
	Name    string
	Version string
}

// UserAgent returns the "<name>/<version>" identifier sent by HTTP uploads.
func (p Product) UserAgent() string {
	return p.Name + "/" + p.Version
}

// Payload is the unit of work handed to a Transport.
type Payload struct {
	URL *url.URL

	// Body streams the dump contents. Reads through it are metered for
	// progress reporting and throttled when a rate limit is configured.
	Body io.ReadSeeker

	// Size is the dump size in bytes, as seen when the session opened it.
	Size int64

	// FileName is the base name of the dump.
	FileName string

	Product Product
	Fields  []Field
}

// Reply is the collector's answer to a transfer.
type Reply struct {
	// Status is the protocol status code (HTTP status or FTP reply code).
	Status int
	Body   []byte
}

// TransferError is returned by transports for failures they can classify
// themselves, such as a rejected upload or failed authentication.
type TransferError struct {
	Code   ErrorCode
	Status int
	Err    error
}

func (e *TransferError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Code, e.Status, e.Err)
	}

	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// DumpError reports a dump file that could not be opened for submission.
type DumpError struct {
	Path string
	Err  error
}

func (e *DumpError) Error() string {
	return fmt.Sprintf("opening dump %s: %v", e.Path, e.Err)
}

func (e *DumpError) Unwrap() error {
	return e.Err
}

// Is reports ErrDumpNotFound for missing files.
func (e *DumpError) Is(target error) bool {
	return target == ErrDumpNotFound && isNotExist(e.Err)
}
