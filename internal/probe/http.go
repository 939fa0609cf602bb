package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

const DefaultTimeout = 10 * time.Second

// Error reports a probe that could not connect or got an unexpected status.
type Error struct {
	URL        string
	StatusCode int
	Expected   int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("GET %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("GET %s: expected HTTP %d, got %d", e.URL, e.Expected, e.StatusCode)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTP issues a single GET and checks the response status.
type HTTP struct {
	Client       *http.Client
	ExpectStatus int
}

// New returns an HTTP probe expecting 200 with the given request timeout.
func New(timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTP{
		Client:       &http.Client{Timeout: timeout},
		ExpectStatus: http.StatusOK,
	}
}

// URL builds the probe address for a published port.
func URL(host string, port int, path string) string {
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + path
}

// Get requests url once and returns the status code. Any status other than
// the expected one is an *Error; nothing is retried.
func (p *HTTP) Get(ctx context.Context, url string) (int, error) {
	expect := p.ExpectStatus
	if expect == 0 {
		expect = http.StatusOK
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &Error{URL: url, Expected: expect, Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, &Error{URL: url, Expected: expect, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode != expect {
		return resp.StatusCode, &Error{URL: url, StatusCode: resp.StatusCode, Expected: expect}
	}
	return resp.StatusCode, nil
}
