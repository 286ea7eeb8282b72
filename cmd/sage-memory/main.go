// Command sage-memory is the composition root for the conversational
// memory service: it wires config, storage, embedding/generator clients,
// and the tool server together, then serves either the stdio transport
// (default) or the HTTP/SSE transport (--http).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/jetgogoing/sage-memory/pkg/config"
	"github.com/jetgogoing/sage-memory/pkg/coreservice"
	"github.com/jetgogoing/sage-memory/pkg/toolserver"
	"github.com/jetgogoing/sage-memory/pkg/transport/httpsse"
	"github.com/jetgogoing/sage-memory/pkg/transport/stdio"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		httpMode   = flag.Bool("http", false, "serve the HTTP/SSE transport instead of stdio")
		host       = flag.String("host", "", "HTTP bind host (overrides HOST)")
		port       = flag.Int("port", 0, "HTTP bind port (overrides PORT)")
		configPath = flag.String("config", "", "optional YAML config file")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		return 1
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}

	log := newLogger(cfg.LogDir)

	svc := coreservice.New(cfg, log)
	coreservice.Set(svc)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := svc.Initialize(ctx); err != nil {
		log.Error().Err(err).Msg("initialize core service")
		return 1
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer shutdownCancel()
		if err := svc.Cleanup(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("cleanup core service")
		}
	}()

	tool := toolserver.New(svc, cfg.MaxResults, log)

	if *httpMode {
		return runHTTP(ctx, cfg, svc, tool, log)
	}
	return runStdio(ctx, tool, log)
}

func runStdio(ctx context.Context, tool *toolserver.Server, log zerolog.Logger) int {
	tr := stdio.New(tool, log)
	if err := tr.Run(ctx, os.Stdin, os.Stdout); err != nil {
		if ctx.Err() != nil {
			return 130
		}
		log.Error().Err(err).Msg("stdio transport")
		return 1
	}
	return 0
}

func runHTTP(ctx context.Context, cfg *config.Config, svc *coreservice.Service, tool *toolserver.Server, log zerolog.Logger) int {
	hcfg := httpsse.DefaultConfig()
	hcfg.Host = cfg.Host
	hcfg.Port = cfg.Port
	hcfg.RequireAuth = cfg.RequireAuth
	hcfg.AuthToken = cfg.AuthToken

	srv := httpsse.New(hcfg, svc, tool, log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown http/sse transport")
			return 1
		}
		return 0
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http/sse transport")
			return 1
		}
		return 0
	}
}

// newLogger builds the root logger. Logs always go to stderr or
// SAGE_LOG_DIR, never stdout, since the stdio transport reserves stdout for
// JSON-RPC frames. An interactive stderr gets zerolog's pretty console
// writer; anything else (a log file, a piped stderr) gets plain JSON.
func newLogger(logDir string) zerolog.Logger {
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err == nil {
			if f, err := os.OpenFile(logDir+"/sage-memory.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
				return zerolog.New(f).With().Timestamp().Logger()
			}
		}
	}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		return zerolog.New(cw).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

const cleanupTimeout = 30 * time.Second
