package harness

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_RequestConfig_Build(t *testing.T) {
	target := Target{Host: "127.0.0.1", Port: 8080}

	for _, tc := range []struct {
		name     string
		req      RequestConfig
		expected string
	}{
		{
			name:     "default",
			req:      DefaultRequestConfig(),
			expected: "GET / HTTP/1.1\r\nHost: 127.0.0.1:8080\r\nConnection: keep-alive\r\n\r\n",
		},
		{
			name: "connection close with host override",
			req: RequestConfig{
				Method:     "HEAD",
				Path:       "/healthz",
				Host:       "example.org",
				Connection: ConnectionClose,
			},
			expected: "HEAD /healthz HTTP/1.1\r\nHost: example.org\r\nConnection: close\r\n\r\n",
		},
		{
			name: "headers are sorted and the body is framed",
			req: RequestConfig{
				Method:     "POST",
				Path:       "/ingest",
				Connection: ConnectionKeepAlive,
				Headers:    map[string]string{"X-Tenant": "a", "Accept": "*/*"},
				Body:       "hello",
			},
			expected: "POST /ingest HTTP/1.1\r\nHost: 127.0.0.1:8080\r\nConnection: keep-alive\r\n" +
				"Accept: */*\r\nX-Tenant: a\r\n" +
				"Content-Type: text/plain\r\nContent-Length: 5\r\n\r\nhello",
		},
		{
			name: "explicit content type",
			req: RequestConfig{
				Method:      "PUT",
				Path:        "/",
				ContentType: "application/json",
				Body:        "{}",
			},
			expected: "PUT / HTTP/1.1\r\nHost: 127.0.0.1:8080\r\nContent-Type: application/json\r\nContent-Length: 2\r\n\r\n{}",
		},
		{
			name:     "raw payload is sent verbatim",
			req:      RequestConfig{Method: "GET", Path: "/", Raw: []byte("PING\n")},
			expected: "PING\n",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, tc.req.Validate())
			assert.Equal(t, tc.expected, string(tc.req.Build(target)))
		})
	}
}

func Test_RequestConfig_Validate(t *testing.T) {
	req := RequestConfig{
		Method:  "GET NOW",
		Path:    "",
		Headers: map[string]string{"X-Evil": "a\r\nInjected: 1"},
	}
	err := req.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid request method")
	assert.Contains(t, err.Error(), "invalid request path")
	assert.Contains(t, err.Error(), "invalid header")

	// Raw payloads are not inspected.
	req.Raw = []byte("anything")
	assert.NoError(t, req.Validate())
}

func Test_RequestConfig_Load(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/body.json", []byte(`{"a":1}`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/raw.txt", []byte("PING\r\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/empty", nil, 0o644))

	req := DefaultRequestConfig()
	req.BodyFile = "/body.json"
	require.NoError(t, req.Load(fs))
	assert.Equal(t, `{"a":1}`, req.Body)

	req = DefaultRequestConfig()
	req.RawFile = "/raw.txt"
	require.NoError(t, req.Load(fs))
	assert.Equal(t, "PING\r\n", string(req.Build(Target{Host: "h", Port: 1})))

	req = DefaultRequestConfig()
	req.Body = "inline"
	req.BodyFile = "/body.json"
	require.Error(t, req.Load(fs))

	req = DefaultRequestConfig()
	req.RawFile = "/empty"
	require.Error(t, req.Load(fs))

	req = DefaultRequestConfig()
	req.BodyFile = "/missing"
	require.Error(t, req.Load(fs))
}
