package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchURL_ExtractsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>Doc</title><script>var x=1;</script></head>
			<body><article><h1>Heading</h1><p>Useful body text about the topic.</p></article></body></html>`)
	}))
	defer srv.Close()

	tool := NewFetchURLTool(5 * time.Second)
	out, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)

	payload := out.(map[string]any)
	content := payload["content"].(string)
	assert.Contains(t, content, "Useful body text")
	assert.NotContains(t, content, "var x=1", "script bodies must be stripped")
	assert.False(t, payload["truncated"].(bool))
}

func TestFetchURL_ClipsAtTenThousandChars(t *testing.T) {
	long := strings.Repeat("paragraph of filler text ", 2000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "<html><body><article><p>%s</p></article></body></html>", long)
	}))
	defer srv.Close()

	tool := NewFetchURLTool(5 * time.Second)
	out, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)

	payload := out.(map[string]any)
	assert.Len(t, payload["content"].(string), fetchClipChars)
	assert.True(t, payload["truncated"].(bool))
}

func TestFetchURL_HTTPErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	tool := NewFetchURLTool(5 * time.Second)
	_, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	assert.ErrorContains(t, err, "HTTP 403")
}

func TestFetchURL_MissingURLParam(t *testing.T) {
	tool := NewFetchURLTool(time.Second)
	_, err := tool.Execute(context.Background(), map[string]any{})
	assert.ErrorContains(t, err, "url parameter is required")
}

func TestStripHTML(t *testing.T) {
	html := `<html><style>p{color:red}</style><body><p>keep this</p><div>and this</div></body></html>`
	assert.Equal(t, "keep this and this", stripHTML(html))
}
