package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type scriptedTransport struct {
	errs     []error
	statuses []int
	calls    int
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	defer func() { s.calls++ }()
	if s.calls < len(s.errs) && s.errs[s.calls] != nil {
		return nil, s.errs[s.calls]
	}
	status := http.StatusOK
	if s.calls < len(s.statuses) {
		status = s.statuses[s.calls]
	}
	return &http.Response{StatusCode: status, Body: http.NoBody, Request: req}, nil
}

func TestRetryTransportRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	base := &scriptedTransport{errs: []error{timeoutErr{}, timeoutErr{}}}
	rt := &retryTransport{base: base, backoff: []time.Duration{0, 0, 0}}

	req := httptest.NewRequest(http.MethodGet, "https://wars.vote4.hk/en/", nil)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, base.calls)
}

func TestRetryTransportStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	base := &scriptedTransport{errs: []error{errors.New("connection refused")}}
	rt := &retryTransport{base: base, backoff: []time.Duration{0, 0, 0}}

	req := httptest.NewRequest(http.MethodGet, "https://wars.vote4.hk/en/", nil)
	_, err := rt.RoundTrip(req)
	require.Error(t, err)
	assert.Equal(t, 1, base.calls)
}

func TestRetryTransportGivesUpAfterBackoff(t *testing.T) {
	t.Parallel()

	base := &scriptedTransport{errs: []error{timeoutErr{}, timeoutErr{}, timeoutErr{}, timeoutErr{}}}
	rt := &retryTransport{base: base, backoff: []time.Duration{0, 0, 0}}

	req := httptest.NewRequest(http.MethodGet, "https://wars.vote4.hk/en/", nil)
	_, err := rt.RoundTrip(req)
	require.Error(t, err)
	assert.Equal(t, 4, base.calls)
}

func TestRetryTransportRetriesGatewayStatuses(t *testing.T) {
	t.Parallel()

	base := &scriptedTransport{statuses: []int{http.StatusBadGateway, http.StatusServiceUnavailable}}
	rt := &retryTransport{base: base, backoff: []time.Duration{0, 0, 0}}

	resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://wars.vote4.hk/en/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, base.calls)
}

func TestRetryTransportReturnsLastGatewayStatus(t *testing.T) {
	t.Parallel()

	base := &scriptedTransport{statuses: []int{503, 503, 503, 504}}
	rt := &retryTransport{base: base, backoff: []time.Duration{0, 0, 0}}

	resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://wars.vote4.hk/en/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	assert.Equal(t, 4, base.calls)
}

func TestRetryTransportLeavesNotFoundAlone(t *testing.T) {
	t.Parallel()

	base := &scriptedTransport{statuses: []int{http.StatusNotFound}}
	rt := &retryTransport{base: base, backoff: []time.Duration{0, 0, 0}}

	resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://wars.vote4.hk/en/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 1, base.calls)
}

func TestIsTransientError(t *testing.T) {
	t.Parallel()

	assert.True(t, isTransientError(context.DeadlineExceeded))
	assert.True(t, isTransientError(timeoutErr{}))
	assert.True(t, isTransientError(errors.New("remote error: tls: handshake timeout")))
	assert.False(t, isTransientError(context.Canceled))
	assert.False(t, isTransientError(errors.New("no such host")))
	assert.False(t, isTransientError(nil))
}
