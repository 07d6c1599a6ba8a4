package metrics

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"syscall"
)

// ErrorClass labels why a request produced no HTTP status.
type ErrorClass string

const (
	ErrorClassTimeout           ErrorClass = "timeout"
	ErrorClassConnectionRefused ErrorClass = "connection-refused"
	ErrorClassConnectionReset   ErrorClass = "connection-reset"
	ErrorClassDNS               ErrorClass = "dns"
	ErrorClassCanceled          ErrorClass = "canceled"
	ErrorClassOther             ErrorClass = "other"
)

var friendlyClassNames = map[ErrorClass]string{
	ErrorClassTimeout:           "Request timed out",
	ErrorClassConnectionRefused: "Connection refused",
	ErrorClassConnectionReset:   "Connection reset by peer",
	ErrorClassDNS:               "DNS lookup failed",
	ErrorClassCanceled:          "Canceled before completion",
	ErrorClassOther:             "Transport error",
}

// ClassifyError maps a transport error onto its failure class. A nil error has
// no class.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ""
	}

	// Canceled is checked first: a drained request's context is canceled, not
	// expired, and must not be counted as a timeout.
	if errors.Is(err, context.Canceled) {
		return ErrorClassCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrorClassTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrorClassConnectionRefused
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return ErrorClassConnectionReset
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return ErrorClassTimeout
		}
		return ErrorClassDNS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}

	// Some platforms surface refusals only through the message text.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"):
		return ErrorClassConnectionRefused
	case strings.Contains(msg, "connection reset"):
		return ErrorClassConnectionReset
	}
	return ErrorClassOther
}

// FriendlyErrorName returns a human-friendly label for a failure class.
func FriendlyErrorName(class string) string {
	cleaned := strings.TrimSpace(class)
	if cleaned == "" {
		return "Unknown error"
	}
	if name, ok := friendlyClassNames[ErrorClass(cleaned)]; ok {
		return name
	}
	return cleaned
}
