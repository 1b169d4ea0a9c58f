// Command openroboctl starts one OpenROBO subsystem process: either the
// Task Planner (the bootstrap rendezvous point) or a peer, wires its
// demo operation table, and runs the dispatcher until a roster peer
// disconnects or the process is signalled.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/openrobo/openrobo/internal/rlog"
	"github.com/openrobo/openrobo/runtime"
	"github.com/openrobo/openrobo/runtime/admin"
)

func main() {
	var (
		name       = pflag.String("name", "", "this subsystem's name (required)")
		role       = pflag.String("role", "peer", `"tp" (Task Planner) or "peer"`)
		acceptPort = pflag.Uint16("accept-port", runtime.DefaultPort, "accept port for this process")
		tpAddr     = pflag.String("tp-addr", "", "Task Planner ip:port (peers only)")
		peers      = pflag.StringSlice("peers", nil, "expected peer subsystem names (Task Planner only)")
		logFile    = pflag.String("log-file", "", "rotate logs to this file instead of the console")
		adminAddr  = pflag.String("admin-addr", "", "bind address for the read-only admin HTTP server, disabled if empty")
		debug      = pflag.Bool("debug", false, "verbose logging and fatal-on-unknown-message dispatch")
	)
	pflag.Parse()

	if *name == "" {
		fmt.Fprintln(os.Stderr, "openroboctl: --name is required")
		os.Exit(2)
	}

	log, err := rlog.New(*name, rlog.Config{FilePath: *logFile, Debug: *debug})
	if err != nil {
		fmt.Fprintln(os.Stderr, "openroboctl: logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	rt := runtime.New(*name, log)
	rt.Strict = *debug
	registerDemoOperations(rt)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch strings.ToLower(*role) {
	case "tp":
		if err := rt.AcceptConnection(ctx, *acceptPort, *peers); err != nil {
			log.Sugar().Fatalw("bootstrap failed", "error", err)
		}
	case "peer":
		if *tpAddr == "" {
			fmt.Fprintln(os.Stderr, "openroboctl: --tp-addr is required for --role=peer")
			os.Exit(2)
		}
		ip, port, err := splitHostPort(*tpAddr)
		if err != nil {
			log.Sugar().Fatalw("invalid --tp-addr", "error", err)
		}
		if err := rt.MakeConnection(ctx, ip, port, *acceptPort); err != nil {
			log.Sugar().Fatalw("bootstrap failed", "error", err)
		}
	default:
		fmt.Fprintln(os.Stderr, "openroboctl: --role must be \"tp\" or \"peer\"")
		os.Exit(2)
	}

	if *adminAddr != "" {
		srv := admin.New(rt)
		srv.AsyncStart(ctx, *adminAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if err := rt.Main(ctx); err != nil {
		log.Sugar().Warnw("dispatcher exited", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		log.Sugar().Warnw("shutdown errors", "error", err)
	}
}

func splitHostPort(addr string) (ip string, port uint16, err error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	p, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, err
	}
	return host, uint16(p), nil
}
