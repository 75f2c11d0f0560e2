package cli

import (
	"context"
	"fmt"

	"github.com/aretw0/sluice"
	"github.com/aretw0/sluice/internal/logging"
	"github.com/aretw0/sluice/internal/presentation/tui"
	mcpadapter "github.com/aretw0/sluice/pkg/adapters/mcp"
)

// ServeOptions configures the standalone dev server.
type ServeOptions struct {
	BaseDir string
	Host    string
	Port    int
	Banner  bool
}

// Serve runs the dev server with the JSON API until ctx is cancelled.
func Serve(ctx context.Context, opts Options, so ServeOptions) error {
	logger := logging.ForDebug(opts.Debug)
	reporter := tui.NewReporter(opts.stdout(), opts.NoColor)
	engine, closeStore, err := createEngine(opts, logger, sluice.WithLifecycleHooks(reporter.Hooks()))
	if err != nil {
		return err
	}
	defer closeStore()

	if so.Banner {
		tui.PrintBanner(opts.stdout(), sluice.Version)
	}
	err = engine.Serve(ctx, so.BaseDir, so.Host, so.Port, func(addr string) {
		fmt.Fprintf(opts.stdout(), "Serving %s at http://%s\n", so.BaseDir, addr)
		fmt.Fprintf(opts.stdout(), "API docs at http://%s/swagger\n", addr)
	})
	return handleExecutionError(ctx, err, reporter)
}

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// MCP exposes the project's tasks to an MCP client.
func MCP(ctx context.Context, opts Options, transport string, port int) error {
	// Stdout carries the protocol on stdio, so task output goes to stderr.
	opts.Stdout = opts.stderr()
	logger := logging.ForDebug(opts.Debug)
	engine, closeStore, err := createEngine(opts, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	srv := mcpadapter.NewServer(engine, sluice.Version, logger)
	switch transport {
	case "", TransportStdio:
		return srv.ServeStdio()
	case TransportSSE:
		fmt.Fprintf(opts.stderr(), "MCP server listening on http://localhost:%d/sse\n", port)
		return srv.ServeSSE(ctx, port)
	default:
		return fmt.Errorf("unknown transport %q (want %s or %s)", transport, TransportStdio, TransportSSE)
	}
}
