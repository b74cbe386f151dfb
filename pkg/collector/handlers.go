package collector

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethpandaops/dumpoor/pkg/upload"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// crashIDPrefix matches the ids handed out by Socorro collectors.
	crashIDPrefix = "bp-"

	// maxFieldLength bounds a single non-file form value.
	maxFieldLength = 64 * 1024
)

var (
	errMissingDump   = errors.New("missing " + upload.FileFieldName + " part")
	errDuplicateDump = errors.New("more than one " + upload.FileFieldName + " part")
)

// Product field names per collector convention.
var productFieldNames = [][2]string{
	{"ProductName", "Version"},
	{"prod", "ver"},
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleSubmit stores one multipart crash report and answers with the
// CrashID line clients log as the collector's reply.
func (s *server) handleSubmit(route string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxReport)

		report := &Report{
			ID:         uuid.NewString(),
			Route:      route,
			Fields:     make(map[string]string, 8),
			RemoteAddr: clientIP(r),
			UserAgent:  r.UserAgent(),
			ReceivedAt: time.Now().UTC(),
		}

		log := s.log.WithFields(logrus.Fields{
			"id":     report.ID,
			"route":  route,
			"remote": report.RemoteAddr,
		})

		if err := s.receive(r, report); err != nil {
			s.store.discard(report.ID)
			s.countReport(route, false)

			status := http.StatusBadRequest

			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				status = http.StatusRequestEntityTooLarge
			}

			log.WithError(err).Warn("Rejected crash report")
			http.Error(w, err.Error(), status)

			return
		}

		if err := s.store.writeMeta(report); err != nil {
			s.store.discard(report.ID)
			s.countReport(route, false)

			log.WithError(err).Error("Failed to store crash report")
			http.Error(w, "failed to store report", http.StatusInternalServerError)

			return
		}

		s.countReport(route, true)

		log.WithFields(logrus.Fields{
			"product": report.Product,
			"version": report.Version,
			"size":    report.Size,
		}).Info("Stored crash report")

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "CrashID=%s%s\n", crashIDPrefix, report.ID)
	}
}

// receive walks the multipart body, streaming the dump part to disk and
// collecting the remaining fields into report.
func (s *server) receive(r *http.Request, report *Report) error {
	mr, err := r.MultipartReader()
	if err != nil {
		return fmt.Errorf("expected multipart/form-data: %w", err)
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fmt.Errorf("reading multipart body: %w", err)
		}

		name := part.FormName()

		if name == upload.FileFieldName {
			if report.FileName != "" {
				return errDuplicateDump
			}

			n, err := s.store.writeDump(report.ID, part)
			if err != nil {
				return fmt.Errorf("receiving dump: %w", err)
			}

			report.FileName = part.FileName()
			if report.FileName == "" {
				report.FileName = report.ID + ".dmp"
			}

			report.Size = n

			continue
		}

		value, err := io.ReadAll(io.LimitReader(part, maxFieldLength+1))
		if err != nil {
			return fmt.Errorf("reading field %q: %w", name, err)
		}

		if len(value) > maxFieldLength {
			return fmt.Errorf("field %q exceeds %d bytes", name, maxFieldLength)
		}

		if name != "" {
			report.Fields[name] = string(value)
		}
	}

	if report.FileName == "" {
		return errMissingDump
	}

	for _, names := range productFieldNames {
		if product, ok := report.Fields[names[0]]; ok {
			report.Product = product
			report.Version = report.Fields[names[1]]

			break
		}
	}

	return nil
}

func (s *server) countReport(route string, stored bool) {
	if s.metrics != nil {
		s.metrics.ReportReceived(route, stored)
	}
}
