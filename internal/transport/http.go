package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options configures an HTTPAdapter
type Options struct {
	BaseURL string
	// InsecureTLS skips certificate verification for this adapter only.
	InsecureTLS   bool
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	RatePerSecond float64
	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64
}

// DefaultMaxBodyBytes bounds response bodies when Options.MaxBodyBytes is unset
const DefaultMaxBodyBytes = 8 << 20

// ErrBodyTooLarge reports a response body past the configured limit
var ErrBodyTooLarge = errors.New("response body too large")

// Request is a GET against a path relative to the base URL
type Request struct {
	Path  string
	Query url.Values
	// Timeout overrides Options.Timeout when non-zero.
	Timeout time.Duration
}

// Response is the raw result of a request
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Latency    time.Duration
	Attempts   int
}

// Adapter sends GET requests to the API under test
type Adapter interface {
	Get(ctx context.Context, req Request) (*Response, error)
}

// Error is an infrastructure failure: the request never produced a response.
type Error struct {
	URL      string
	Attempts int
	// Deadline is the per-request bound that was in force.
	Deadline time.Duration
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport error after %d attempt(s) for %s: %v", e.Attempts, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the request ran past its deadline
func (e *Error) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// HTTPAdapter is the net/http implementation of Adapter
type HTTPAdapter struct {
	baseURL *url.URL
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
	maxBody int64
	retries int
	delay   time.Duration
	logger  *zap.Logger
}

// NewHTTPAdapter creates an adapter. TLS relaxation is a property of the
// adapter's own transport and never touches process-wide defaults.
func NewHTTPAdapter(opts Options, logger *zap.Logger) (*HTTPAdapter, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https, got %q", opts.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: opts.InsecureTLS} //nolint:gosec // opt-in per adapter

	a := &HTTPAdapter{
		baseURL: base,
		client:  &http.Client{Transport: tr},
		timeout: opts.Timeout,
		maxBody: opts.MaxBodyBytes,
		retries: opts.RetryAttempts,
		delay:   opts.RetryDelay,
		logger:  logger,
	}
	if a.timeout <= 0 {
		a.timeout = 10 * time.Second
	}
	if a.maxBody <= 0 {
		a.maxBody = DefaultMaxBodyBytes
	}
	if a.retries < 0 {
		a.retries = 0
	}
	if opts.RatePerSecond > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	return a, nil
}

// Get sends the request. Non-2xx statuses are returned as responses, not
// errors; only failures to obtain a response are errors. Those are retried
// at most RetryAttempts times and never when the deadline was hit.
func (a *HTTPAdapter) Get(ctx context.Context, req Request) (*Response, error) {
	target := a.buildURL(req)
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = a.timeout
	}

	var resp *Response
	attempts := 0
	op := func() error {
		attempts++
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		r, err := a.do(ctx, target, timeout)
		if err != nil {
			if !retryable(ctx, err) {
				return backoff.Permanent(err)
			}
			a.logger.Warn("transport error",
				zap.String("url", redact(target)),
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
			return err
		}
		resp = r
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(a.delay), uint64(a.retries)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, &Error{URL: redact(target), Attempts: attempts, Deadline: timeout, Err: err}
	}

	resp.Attempts = attempts
	a.logger.Debug("request complete",
		zap.String("url", redact(target)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", resp.Latency),
	)
	return resp, nil
}

func (a *HTTPAdapter) do(ctx context.Context, target *url.URL, timeout time.Duration) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > a.maxBody {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, a.maxBody)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Latency:    time.Since(start),
	}, nil
}

func (a *HTTPAdapter) buildURL(req Request) *url.URL {
	u := a.baseURL.JoinPath(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}
	return u
}

// retryable separates connection-level faults from deadline hits,
// certificate failures and oversized bodies.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, ErrBodyTooLarge) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	var certErr *tls.CertificateVerificationError
	return !errors.As(err, &certErr)
}

// redact hides the API key in logged URLs
func redact(u *url.URL) string {
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		c := *u
		c.RawQuery = q.Encode()
		return c.String()
	}
	return u.String()
}
