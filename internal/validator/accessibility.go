package validator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/tunewave/tunewave/internal/domain"
)

// CheckResult is the outcome of a single checker probe.
type CheckResult struct {
	IsValid bool
	Err     *domain.ValidationError
}

// AccessibilityChecker determines basic reachability of a stream URL,
// independent of media decoding.
type AccessibilityChecker interface {
	CheckAccessibility(ctx context.Context, url string, timeout time.Duration) CheckResult
}

// HTTPAccessibilityChecker probes stream endpoints with a short-lived GET.
// Outbound probes share a rate limiter so a large batch cannot hammer
// stream hosts beyond the configured rate.
type HTTPAccessibilityChecker struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewHTTPAccessibilityChecker creates an accessibility checker.
// probeRate is probes per second; probeBurst the burst allowance.
func NewHTTPAccessibilityChecker(userAgent string, probeRate float64, probeBurst int) *HTTPAccessibilityChecker {
	if probeRate <= 0 {
		probeRate = 20
	}
	if probeBurst <= 0 {
		probeBurst = 40
	}
	return &HTTPAccessibilityChecker{
		// No client-level timeout; each probe carries its own deadline.
		client:    &http.Client{},
		limiter:   rate.NewLimiter(rate.Limit(probeRate), probeBurst),
		userAgent: userAgent,
	}
}

// CheckAccessibility issues a GET for url with a hard deadline of
// min(timeout, 3s). Receiving response headers with a success status is
// enough: the body transfer is cancelled immediately, because the goal is
// to confirm the endpoint answers, not to download a stream.
func (c *HTTPAccessibilityChecker) CheckAccessibility(ctx context.Context, rawURL string, timeout time.Duration) CheckResult {
	if timeout <= 0 || timeout > maxAccessibilityTimeout {
		timeout = maxAccessibilityTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return CheckResult{Err: &domain.ValidationError{
			Kind:      domain.ErrorKindTimeout,
			Message:   "probe deadline exceeded while rate limited",
			Retryable: true,
		}}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return CheckResult{Err: &domain.ValidationError{
			Kind:      domain.ErrorKindNetwork,
			Message:   fmt.Sprintf("invalid stream URL: %v", err),
			Retryable: false,
		}}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "audio/*")
	req.Header.Set("Icy-MetaData", "1")

	resp, err := c.client.Do(req)
	if err != nil {
		return CheckResult{Err: classifyTransportError(err, true)}
	}
	// Headers received; stop the body transfer right away.
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return CheckResult{IsValid: true}
	}

	return CheckResult{Err: &domain.ValidationError{
		Kind:       domain.ErrorKindHTTP,
		Message:    fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		HTTPStatus: resp.StatusCode,
		Retryable:  resp.StatusCode >= 500,
	}}
}

// classifyTransportError maps a transport-level failure to a typed
// validation error: deadline hits become Timeout, everything else a
// connection-level NetworkError.
func classifyTransportError(err error, retryable bool) *domain.ValidationError {
	if isTimeout(err) {
		return &domain.ValidationError{
			Kind:      domain.ErrorKindTimeout,
			Message:   "probe deadline exceeded",
			Retryable: retryable,
		}
	}
	return &domain.ValidationError{
		Kind:      domain.ErrorKindNetwork,
		Message:   err.Error(),
		Retryable: retryable,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return false
}
