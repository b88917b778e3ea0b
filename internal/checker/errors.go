package checker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"

	"giftcheck/internal/model"
)

// CheckError is the structured failure a checker operation returns instead
// of letting transport errors cross package boundaries. Callers switch on
// Outcome/Category rather than on concrete error types.
type CheckError struct {
	Outcome  model.OutcomeKind
	Category model.ErrorCategory
	Message  string
	Err      error
}

func (e *CheckError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *CheckError) Unwrap() error {
	return e.Err
}

func newCheckError(outcome model.OutcomeKind, category model.ErrorCategory, message string) *CheckError {
	return &CheckError{Outcome: outcome, Category: category, Message: message}
}

// classifyTransportError maps an error from an HTTP call to the taxonomy.
// Classification happens at the call site, while the concrete error type is
// still known.
func classifyTransportError(err error) *CheckError {
	var (
		netErr      net.Error
		dnsErr      *net.DNSError
		certErr     *tls.CertificateVerificationError
		unkAuthErr  x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		recordErr   tls.RecordHeaderError
		urlErr      *url.Error
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()):
		return &CheckError{model.OutcomeAPIException, model.ErrTimeout, "request timed out", err}
	case errors.As(err, &certErr) || errors.As(err, &unkAuthErr) || errors.As(err, &hostnameErr) || errors.As(err, &recordErr):
		return &CheckError{model.OutcomeAPIException, model.ErrSSL, "TLS certificate error", err}
	case errors.As(err, &dnsErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return &CheckError{model.OutcomeAPIException, model.ErrConnection, "connection failed", err}
	case errors.As(err, &urlErr):
		if strings.Contains(urlErr.Err.Error(), "stopped after") {
			return &CheckError{model.OutcomeAPIException, model.ErrRedirect, "too many redirects", err}
		}
		if strings.Contains(urlErr.Err.Error(), "x509") || strings.Contains(urlErr.Err.Error(), "tls") {
			return &CheckError{model.OutcomeAPIException, model.ErrSSL, "TLS certificate error", err}
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return &CheckError{model.OutcomeAPIException, model.ErrConnection, "connection failed", err}
		}
		return &CheckError{model.OutcomeAPIException, model.ErrRequest, "request failed", err}
	default:
		return &CheckError{model.OutcomeSystemException, model.ErrUnknown, "unexpected error", err}
	}
}

// failureResult normalizes a CheckError into an AnalysisResult row.
func failureResult(sourceURL, redirectURL string, category model.LinkCategory, cerr *CheckError) *model.AnalysisResult {
	return &model.AnalysisResult{
		SourceURL:     sourceURL,
		Outcome:       cerr.Outcome,
		RedirectURL:   redirectURL,
		Category:      category,
		ErrorCategory: cerr.Category,
		Message:       cerr.Message,
		CheckedAt:     nowFn(),
	}
}
