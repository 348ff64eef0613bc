package metrics

import (
	"net/http"
	"time"
)

// InstrumentedTransport wraps an http.RoundTripper and records outbound request metrics.
// If base is nil, http.DefaultTransport is used. A nil Metrics disables recording.
func InstrumentedTransport(m *Metrics, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &instrumentedTransport{base: base, metrics: m}
}

type instrumentedTransport struct {
	base    http.RoundTripper
	metrics *Metrics
}

// RoundTrip executes the request and records its status class and duration.
// Transport errors are recorded with status code 0 ("unknown").
func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	if t.metrics != nil {
		statusCode := 0
		if err == nil {
			statusCode = resp.StatusCode
		}
		t.metrics.RecordHTTPRequest(req.URL.Host, req.Method, statusCode, time.Since(start).Seconds())
	}
	return resp, err
}
