package genclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newFakeChatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": content}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestClient_Compress_ReturnsModelContentOnSuccess(t *testing.T) {
	srv := newFakeChatServer(t, "这是融合后的上下文")
	defer srv.Close()

	c, err := New("test-key", srv.URL, "test-model", zerolog.Nop())
	require.NoError(t, err)

	out := c.Compress(t.Context(), "", []string{"用户: 你好"}, "你好吗", DefaultOptions())
	require.Equal(t, "这是融合后的上下文", out)
}

func TestClient_Compress_FallsBackOnTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New("test-key", srv.URL, "test-model", zerolog.Nop())
	require.NoError(t, err)
	c.retry.MaxAttempts = 1
	c.retry.InitialDelay = 0

	out := c.Compress(t.Context(), "", []string{"用户: 历史片段一"}, "问题", DefaultOptions())
	require.Contains(t, out, "片段 1")
	require.Contains(t, out, "历史片段一")
}

func TestClient_New_RejectsMissingCredentials(t *testing.T) {
	_, err := New("", "http://example.invalid", "model", zerolog.Nop())
	require.Error(t, err)

	_, err = New("key", "", "model", zerolog.Nop())
	require.Error(t, err)
}
