package checker

import (
	"context"
	"net/http"
	"time"
)

const userAgent = "devprobe"

// defaultClient never follows redirects: the first response decides the
// outcome. Deadlines come from the request context.
var defaultClient = newProbeClient()

func newProbeClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableKeepAlives = true
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

type httpChecker struct {
	desc    Descriptor
	timeout time.Duration
	client  *http.Client
}

func newHTTPChecker(d Descriptor, timeout time.Duration) *httpChecker {
	return &httpChecker{desc: d, timeout: timeout, client: defaultClient}
}

// NewHTTPCheckerWithClient creates an HTTP checker with a custom client (for testing).
func NewHTTPCheckerWithClient(d Descriptor, timeout time.Duration, client *http.Client) Checker {
	return &httpChecker{desc: d, timeout: orDefault(timeout), client: client}
}

// ProbeHTTP issues a GET against rawURL.
func ProbeHTTP(ctx context.Context, rawURL string, timeout time.Duration) CheckResult {
	return newHTTPChecker(HTTPService(rawURL, rawURL), orDefault(timeout)).Check(ctx)
}

// Check reports up for any HTTP response, whatever its status code. The
// body is never read.
func (c *httpChecker) Check(ctx context.Context) CheckResult {
	result := NewResult(c.desc)

	u, err := c.desc.URL()
	if err != nil {
		result.Status = StatusError
		result.Detail = err.Error()
		return result
	}

	pctx, cancel := context.WithTimeoutCause(ctx, c.timeout, ErrProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(pctx, http.MethodGet, u.String(), nil)
	if err != nil {
		result.Status = StatusError
		result.Detail = "creating request: " + err.Error()
		return result
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if pctx.Err() != nil {
			return finishCancelled(pctx, result, c.timeout, elapsed)
		}
		result.Status = StatusDown
		result.Detail = httpFailure(err)
		return result.WithLatency(elapsed)
	}
	resp.Body.Close()

	result.Status = StatusUp
	result.StatusCode = resp.StatusCode
	result.Detail = resp.Status
	return result.WithLatency(elapsed)
}
