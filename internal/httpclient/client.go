// Package httpclient builds the pooled HTTP client shared by all workers of a process.
package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/nuvla/job-engine-sub001/errors"
)

// headroom covers connections used outside worker loops (login, distribution loops).
const headroom = 4

// Options configures the shared client.
type Options struct {
	Timeout  time.Duration
	Workers  int  // pool is sized to this plus headroom
	Insecure bool // skip TLS verification (self-signed control planes)
}

// New creates an HTTP client whose connection pool is sized to the worker count
// so concurrent workers do not starve each other. A cookie jar keeps the
// session established at login.
func New(opts Options) (*http.Client, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cookie jar")
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	conns := opts.Workers + headroom

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          conns,
		MaxIdleConnsPerHost:   conns,
		MaxConnsPerHost:       conns,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if opts.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via api.insecure
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
		Jar:       jar,
	}, nil
}
