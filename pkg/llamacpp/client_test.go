package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, status int, content interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, completionsPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Messages, 1)

		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{
				map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}))
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient("")
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, c.baseURL)

	_, err = NewClient("localhost:8080")
	assert.Error(t, err)
}

func TestAnalyzeImage(t *testing.T) {
	srv := newTestServer(t, http.StatusOK,
		`{"objects":[{"label":"car","confidence":0.95,"box":{"x1":0.2,"y1":0.3,"x2":0.9,"y2":0.8}}],"description":"car"}`)
	defer srv.Close()

	c, err := NewClient(srv.URL + "/")
	require.NoError(t, err)

	result, err := c.AnalyzeImage(context.Background(), "m", "p", "aGVsbG8=")
	require.NoError(t, err)
	require.Len(t, result.Objects, 1)
	assert.Equal(t, "car", result.Objects[0].Label)
	assert.InDelta(t, 0.95, result.Objects[0].Confidence, 1e-9)
}

func TestSimpleQueryContentParts(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, []any{map[string]any{"type": "text", "text": "a car on a road"}})
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	text, err := c.SimpleQuery(context.Background(), "m", "what is this?", "")
	require.NoError(t, err)
	assert.Equal(t, "a car on a road", text)
}

func TestAnalyzeImageServerError(t *testing.T) {
	srv := newTestServer(t, http.StatusInternalServerError, "boom")
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.AnalyzeImage(context.Background(), "m", "p", "")
	assert.ErrorContains(t, err, "status 500")
}
