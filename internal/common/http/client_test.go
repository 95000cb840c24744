package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultClientConfig(t *testing.T) {
	config := DefaultClientConfig()

	assert.Equal(t, 30*time.Second, config.Timeout)
	assert.Equal(t, 10*time.Second, config.ConnectTimeout)
	assert.Equal(t, 100, config.MaxIdleConns)
	assert.Equal(t, 10, config.MaxIdleConnsPerHost)
	assert.False(t, config.DisableKeepAlives)
	assert.Nil(t, config.Transport)
}

func TestClientOptions(t *testing.T) {
	config := DefaultClientConfig()
	for _, opt := range []ClientOption{
		WithTimeout(10 * time.Second),
		WithConnectTimeout(5 * time.Second),
		WithMaxIdleConnsPerHost(4),
		WithoutKeepAlives(),
	} {
		opt(&config)
	}

	assert.Equal(t, 10*time.Second, config.Timeout)
	assert.Equal(t, 5*time.Second, config.ConnectTimeout)
	assert.Equal(t, 4, config.MaxIdleConnsPerHost)
	assert.True(t, config.DisableKeepAlives)
	assert.Equal(t, 100, config.MaxIdleConns)
}

func TestNewHTTPClient_DefaultTransport(t *testing.T) {
	client := NewHTTPClient(WithTimeout(10*time.Second), WithConnectTimeout(5*time.Second))

	assert.Equal(t, 10*time.Second, client.Timeout)
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.NotNil(t, transport.DialContext)
	assert.Equal(t, 5*time.Second, transport.TLSHandshakeTimeout)
}

func TestNewHTTPClient_CustomTransportAndNilOption(t *testing.T) {
	custom := &http.Transport{}
	client := NewHTTPClient(nil, WithTransport(custom))

	assert.Same(t, custom, client.Transport)
}

func TestHTTPClient_Integration_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(WithTimeout(50 * time.Millisecond))

	_, err := client.Get(server.URL)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Client.Timeout exceeded")
}

func TestHTTPClient_Integration_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewHTTPClient(WithTimeout(5 * time.Second))

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
