package upload

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"syscall"
)

// ErrorCode classifies why a transfer session failed.
type ErrorCode int

const (
	CodeNone ErrorCode = iota
	CodeConnectionRefused
	CodeHostNotFound
	CodeTimeout
	CodeCanceled
	CodeAuthenticationFailed
	CodeRemoteRejected
	CodeProtocolFailure
	CodeUnknown
)

var errorCodeNames = map[ErrorCode]string{
	CodeNone:                 "none",
	CodeConnectionRefused:    "connection_refused",
	CodeHostNotFound:         "host_not_found",
	CodeTimeout:              "timeout",
	CodeCanceled:             "canceled",
	CodeAuthenticationFailed: "authentication_failed",
	CodeRemoteRejected:       "remote_rejected",
	CodeProtocolFailure:      "protocol_failure",
	CodeUnknown:              "unknown",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}

	return "unknown"
}

// classify maps a transport error to an ErrorCode and remote status.
func classify(err error) (ErrorCode, int) {
	if err == nil {
		return CodeNone, 0
	}

	var te *TransferError
	if errors.As(err, &te) {
		return te.Code, te.Status
	}

	if errors.Is(err, context.Canceled) {
		return CodeCanceled, 0
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout, 0
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return CodeTimeout, 0
		}

		return CodeHostNotFound, 0
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return CodeConnectionRefused, 0
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout, 0
	}

	return CodeUnknown, 0
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
