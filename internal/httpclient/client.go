// Package httpclient provides the shared outbound HTTP client. One Client is
// created per process, handed to every SDK that talks HTTP, and closed on
// shutdown.
package httpclient

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"
)

// Config tunes the underlying transport.
type Config struct {
	Timeout             time.Duration
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	MaxIdleConns        int
	IdleConnTimeout     time.Duration
}

// DefaultConfig mirrors the transport settings used for outbound calls.
func DefaultConfig() Config {
	return Config{
		Timeout:             60 * time.Second,
		DialTimeout:         10 * time.Second,
		TLSHandshakeTimeout: 15 * time.Second,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// ErrClosed is returned by requests issued after Close.
var ErrClosed = errors.New("http client closed")

// Client wraps an *http.Client whose transport logs every round trip at
// debug level.
type Client struct {
	http      *http.Client
	transport *http.Transport
	logger    *zap.Logger

	mu       sync.RWMutex
	closed   bool
	children []*Client
}

// New builds a Client. A nil logger disables request tracing.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return newClient(newTransport(cfg), cfg.Timeout, logger)
}

func newClient(transport *http.Transport, timeout time.Duration, logger *zap.Logger) *Client {
	c := &Client{transport: transport, logger: logger}
	c.http = &http.Client{
		Timeout:   timeout,
		Transport: &tracingTransport{base: transport, client: c},
	}
	return c
}

// WithTransportOptions returns a traced *Client built on a clone of c's
// transport with opts applied. c is left untouched; closing c also closes
// the returned client.
func (c *Client) WithTransportOptions(opts ...func(*http.Transport)) aws.HTTPClient {
	return c.derive(opts...)
}

func (c *Client) derive(opts ...func(*http.Transport)) *Client {
	transport := c.transport.Clone()
	for _, opt := range opts {
		opt(transport)
	}
	child := newClient(transport, c.http.Timeout, c.logger)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		child.closed = true
	}
	c.children = append(c.children, child)
	return child
}

// Do satisfies the smithy and AWS SDK HTTPClient interface.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req) //nolint:wrapcheck
}

// HTTP exposes the underlying client for libraries that want one.
func (c *Client) HTTP() *http.Client {
	return c.http
}

// Close drops idle connections and rejects further requests. It is safe to
// call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.transport.CloseIdleConnections()
	for _, child := range c.children {
		child.Close()
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

type tracingTransport struct {
	base   http.RoundTripper
	client *Client
}

func (t *tracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("tracing transport received nil request")
	}
	if t.client.isClosed() {
		return nil, ErrClosed
	}
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		t.client.logger.Debug("http request failed",
			zap.String("method", req.Method),
			zap.String("host", req.URL.Host),
			zap.String("path", req.URL.Path),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, fmt.Errorf("round trip %s %s: %w", req.Method, req.URL.Host, err)
	}
	t.client.logger.Debug("http request",
		zap.String("method", req.Method),
		zap.String("host", req.URL.Host),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed),
	)
	return resp, nil
}

func newTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          cfg.MaxIdleConns,
		IdleConnTimeout:       cfg.IdleConnTimeout,
	}
}
