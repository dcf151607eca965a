package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestClientTracesRequests(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	c := New(DefaultConfig(), zap.New(core))
	defer c.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/ping", nil)
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/ping", fields["path"])
	assert.EqualValues(t, http.StatusTeapot, fields["status"])
}

func TestClientLogsTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	c := New(DefaultConfig(), zap.New(core))
	defer c.Close()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	_, err = c.Do(req)
	require.Error(t, err)
	assert.Equal(t, 1, logs.FilterMessage("http request failed").Len())
}

func TestClientRejectsAfterClose(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	c := New(DefaultConfig(), nil)
	c.Close()
	c.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	_, err = c.HTTP().Do(req)
	require.ErrorIs(t, err, ErrClosed)
}

func TestWithTransportOptionsTrustsCustomRoots(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	parent := New(DefaultConfig(), zap.New(core))
	defer parent.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	_, err = parent.Do(req)
	require.Error(t, err, "self-signed server must be rejected without custom roots")

	roots := x509.NewCertPool()
	roots.AddCert(srv.Certificate())
	derived := parent.WithTransportOptions(func(tr *http.Transport) {
		tr.TLSClientConfig = &tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12}
	})
	child, ok := derived.(*Client)
	require.True(t, ok)
	require.NotSame(t, parent, child)

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/trusted", nil)
	require.NoError(t, err)
	resp, err := child.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	traced := logs.FilterMessage("http request").All()
	require.Len(t, traced, 1)
	assert.Equal(t, "/trusted", traced[0].ContextMap()["path"])

	parent.Close()
	_, err = child.Do(req)
	require.ErrorIs(t, err, ErrClosed)
}
