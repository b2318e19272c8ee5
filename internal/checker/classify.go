package checker

import (
	"crypto/tls"
	"errors"
	"net"
	"syscall"
)

// connFailure names well-known connection errors. ok is false for
// anything it does not recognise.
func connFailure(err error) (string, bool) {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection refused", true
	case errors.Is(err, syscall.ECONNRESET):
		return "connection reset", true
	case errors.Is(err, syscall.EHOSTUNREACH):
		return "host unreachable", true
	case errors.Is(err, syscall.ENETUNREACH):
		return "network unreachable", true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout", true
	}
	return "", false
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isTLSError(err error) bool {
	var (
		verifyErr *tls.CertificateVerificationError
		recordErr tls.RecordHeaderError
		alertErr  tls.AlertError
	)
	return errors.As(err, &verifyErr) || errors.As(err, &recordErr) || errors.As(err, &alertErr)
}

// httpFailure maps a transport error to a short category.
func httpFailure(err error) string {
	if isDNSError(err) {
		return "dns failure: " + err.Error()
	}
	if reason, ok := connFailure(err); ok {
		return reason
	}
	if isTLSError(err) {
		return "tls failure: " + err.Error()
	}
	return "network error: " + err.Error()
}
