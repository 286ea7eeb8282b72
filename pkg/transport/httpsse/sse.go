package httpsse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jetgogoing/sage-memory/pkg/toolserver"
)

const maxBodyBytes = 32 * 1024 * 1024

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

// writeSSE emits a single response frame followed by a terminal [DONE]
// frame, per the data:<json>\n\n convention. The stream always carries
// exactly one JSON-RPC response before closing.
func writeSSE(w http.ResponseWriter, resp toolserver.Response) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	body, err := json.Marshal(resp)
	if err != nil {
		fmt.Fprintf(w, "data: %s\n\n", `{"error":{"code":-32603,"message":"internal error"}}`)
		flusher.Flush()
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", body)
	flusher.Flush()

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}
