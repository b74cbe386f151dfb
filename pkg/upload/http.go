package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/ethpandaops/dumpoor/pkg/config"
	"github.com/sirupsen/logrus"
)

// FileFieldName is the multipart field carrying the dump.
const FileFieldName = "upload_file_minidump"

// fieldNames holds the product field names a collector expects.
type fieldNames struct {
	product string
	version string
}

var conventionFields = map[string]fieldNames{
	config.ConventionSocorro: {product: "ProductName", version: "Version"},
	config.ConventionCaliper: {product: "prod", version: "ver"},
	config.ConventionGeneric: {product: "prod", version: "ver"},
}

// httpTransport posts dumps as multipart/form-data.
type httpTransport struct {
	log        logrus.FieldLogger
	client     *http.Client
	convention string
	names      fieldNames
}

var _ Transport = (*httpTransport)(nil)

// NewHTTPTransport creates the HTTP multipart transport. A nil client uses
// a client with the configured timeout.
func NewHTTPTransport(
	log logrus.FieldLogger,
	cfg *config.HTTPUploadConfig,
	client *http.Client,
) (Transport, error) {
	names, ok := conventionFields[cfg.Convention]
	if !ok {
		return nil, fmt.Errorf("unknown collector convention %q", cfg.Convention)
	}

	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &httpTransport{
		log:        log.WithField("component", "http-transport"),
		client:     client,
		convention: cfg.Convention,
		names:      names,
	}, nil
}

func (t *httpTransport) Name() string { return "http" }

func (t *httpTransport) Schemes() []string { return []string{"http", "https"} }

// Send streams a three-part form (product, version, dump) plus any extra
// fields, with an exact Content-Length.
func (t *httpTransport) Send(ctx context.Context, p *Payload) (*Reply, error) {
	head, tail, contentType, err := t.envelope(p)
	if err != nil {
		return nil, &TransferError{Code: CodeProtocolFailure, Err: err}
	}

	body := io.MultiReader(bytes.NewReader(head), p.Body, bytes.NewReader(tail))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL.String(), body)
	if err != nil {
		return nil, &TransferError{Code: CodeProtocolFailure, Err: err}
	}

	req.ContentLength = int64(len(head)) + p.Size + int64(len(tail))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", p.Product.UserAgent())

	if t.convention == config.ConventionSocorro {
		req.Host = strings.ToLower(p.Product.Name) + "_reports"
		req.Header.Set("Accept", "*/*")
	}

	t.log.WithFields(logrus.Fields{
		"url":            p.URL.Redacted(),
		"content_length": req.ContentLength,
	}).Debug("Posting dump")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() { _ = resp.Body.Close() }()

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Reply{Status: resp.StatusCode, Body: answer},
			fmt.Errorf("reading response: %w", err)
	}

	reply := &Reply{Status: resp.StatusCode, Body: answer}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return reply, &TransferError{
			Code:   CodeRemoteRejected,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("collector responded %s", resp.Status),
		}
	}

	return reply, nil
}

// envelope renders everything around the dump bytes: the metadata parts and
// the file part header before it, the closing boundary after it.
func (t *httpTransport) envelope(p *Payload) (head, tail []byte, contentType string, err error) {
	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	fields := make([]Field, 0, len(p.Fields)+2)
	fields = append(fields,
		Field{Name: t.names.product, Value: p.Product.Name},
		Field{Name: t.names.version, Value: p.Product.Version},
	)
	fields = append(fields, p.Fields...)

	for _, f := range fields {
		if err := mw.WriteField(f.Name, f.Value); err != nil {
			return nil, nil, "", fmt.Errorf("writing field %s: %w", f.Name, err)
		}
	}

	// CreateFormFile declares application/octet-stream.
	if _, err := mw.CreateFormFile(FileFieldName, p.FileName); err != nil {
		return nil, nil, "", fmt.Errorf("writing file part header: %w", err)
	}

	head = append([]byte(nil), buf.Bytes()...)
	buf.Reset()

	if err := mw.Close(); err != nil {
		return nil, nil, "", fmt.Errorf("closing multipart body: %w", err)
	}

	tail = append([]byte(nil), buf.Bytes()...)

	return head, tail, mw.FormDataContentType(), nil
}
