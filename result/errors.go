package result

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// Category classifies the outcome of a link check.
type Category string

const (
	CategoryOK              Category = "OK"
	CategoryHTTPError       Category = "HTTP_ERROR"
	CategoryDNSFailure      Category = "DNS_FAILURE"
	CategorySSLError        Category = "SSL_ERROR"
	CategoryTimeout         Category = "TIMEOUT"
	CategoryConnectionError Category = "CONNECTION_ERROR"
	CategoryUnknown         Category = "UNKNOWN_ERROR"
)

// Categories returns every category in display order (most to least actionable).
func Categories() []Category {
	return []Category{
		CategoryHTTPError,
		CategoryDNSFailure,
		CategorySSLError,
		CategoryTimeout,
		CategoryConnectionError,
		CategoryUnknown,
		CategoryOK,
	}
}

// Transient reports whether a check that ended in this category may succeed
// if attempted again. OK and HTTP_ERROR are definitive answers.
func (c Category) Transient() bool {
	switch c {
	case CategoryOK, CategoryHTTPError:
		return false
	default:
		return true
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// connectionErrnos are the socket errors that mean the transport was
// refused, reset or unreachable after name resolution succeeded.
var connectionErrnos = []syscall.Errno{
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.ECONNABORTED,
	syscall.EHOSTUNREACH,
	syscall.ENETUNREACH,
	syscall.EPIPE,
}

// ClassifyError maps the outcome of one attempt to a Category.
// When err is nil the HTTP status code decides. Otherwise the error chain is
// inspected against a closed set of failure kinds; anything not recognised
// is CategoryUnknown.
func ClassifyError(err error, statusCode int) Category {
	if err == nil {
		switch {
		case statusCode >= 200 && statusCode <= 399:
			return CategoryOK
		case statusCode >= 400 && statusCode <= 599:
			return CategoryHTTPError
		default:
			return CategoryUnknown
		}
	}

	// Name resolution is checked first: a resolver timeout is still a DNS failure.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CategoryDNSFailure
	}

	if isTLSError(err) {
		return CategorySSLError
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}

	for _, errno := range connectionErrnos {
		if errors.Is(err, errno) {
			return CategoryConnectionError
		}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return CategoryConnectionError
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CategoryConnectionError
	}

	return CategoryUnknown
}

func isTLSError(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) {
		return true
	}
	var authorityErr x509.UnknownAuthorityError
	if errors.As(err, &authorityErr) {
		return true
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return true
	}
	var invalidErr x509.CertificateInvalidError
	if errors.As(err, &invalidErr) {
		return true
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var alertErr tls.AlertError
	return errors.As(err, &alertErr)
}

// FormatCategory returns a human-readable label for a category.
func FormatCategory(cat Category) string {
	switch cat {
	case CategoryOK:
		return "OK"
	case CategoryHTTPError:
		return "HTTP Errors"
	case CategoryDNSFailure:
		return "DNS Failures"
	case CategorySSLError:
		return "TLS/Certificate Errors"
	case CategoryTimeout:
		return "Timeouts"
	case CategoryConnectionError:
		return "Connection Errors"
	default:
		return "Other Errors"
	}
}
