// Package stdio implements the newline-delimited JSON-RPC transport: read
// framed requests from stdin, write framed responses to stdout. Stdout is
// reserved for protocol frames; every log line goes to stderr or a file
// instead.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jetgogoing/sage-memory/pkg/toolserver"
)

// initialBufferSize seeds the scanner; maxBufferSize is the ceiling a
// single line may grow to before Scan gives up. Tool call payloads (saved
// conversations, embeddings) can run well past bufio's 64K default.
const (
	initialBufferSize = 1024 * 1024
	maxBufferSize     = 32 * 1024 * 1024
)

// readyFrame is emitted once on startup so the parent process knows the
// server is accepting requests.
var readyFrame = []byte(`{"type":"ready"}` + "\n")

// Transport pumps JSON-RPC requests from r to the tool server and writes
// responses to w, one line at a time.
type Transport struct {
	server *toolserver.Server
	log    zerolog.Logger

	writeMu sync.Mutex
	w       io.Writer
}

// New builds a Transport bound to server.
func New(server *toolserver.Server, log zerolog.Logger) *Transport {
	return &Transport{server: server, log: log.With().Str("component", "stdio").Logger()}
}

// Run reads newline-delimited JSON-RPC requests from r until EOF or ctx is
// canceled, writing one response line per request to w. Each request is
// handled in its own goroutine; the mutex-guarded writer keeps concurrent
// responses from interleaving partial frames. Returns nil on a clean EOF.
func (t *Transport) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	t.w = w
	if err := t.writeLine(readyFrame); err != nil {
		return err
	}

	sc := bufio.NewScanner(r)
	buf := make([]byte, 0, initialBufferSize)
	sc.Buffer(buf, maxBufferSize)

	var wg sync.WaitGroup
	defer wg.Wait()

	for sc.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := sc.Bytes()
		if len(bytesTrimSpace(line)) == 0 {
			continue
		}
		// Copy before handing off: sc.Bytes()'s backing array is reused by
		// the next Scan.
		frame := append([]byte(nil), line...)

		wg.Add(1)
		go func() {
			defer wg.Done()
			t.handle(ctx, frame)
		}()
	}
	return sc.Err()
}

func (t *Transport) handle(ctx context.Context, frame []byte) {
	resp := t.server.Handle(ctx, frame)
	body, err := json.Marshal(resp)
	if err != nil {
		t.log.Error().Err(err).Msg("marshal response")
		return
	}
	body = append(body, '\n')
	if err := t.writeLine(body); err != nil {
		t.log.Error().Err(err).Msg("write response frame")
	}
}

func (t *Transport) writeLine(b []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err := t.w.Write(b)
	return err
}

func bytesTrimSpace(b []byte) []byte {
	start := 0
	for start < len(b) && isSpace(b[start]) {
		start++
	}
	end := len(b)
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
