package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/buffquant/simrun/internal/config"
	"github.com/buffquant/simrun/internal/httpapi"
)

var version = "0.0.0-dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "simrund: failed to load configuration: %v\n", err)
		return 1
	}

	listenAddr := os.Getenv("SIMRUND_LISTEN")
	if listenAddr == "" {
		listenAddr = "127.0.0.1:8088"
	}

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simrund: failed to bind %s: %v\n", listenAddr, err)
		return 1
	}

	srv := &http.Server{
		Handler:      httpapi.Router(cfg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	fmt.Fprintf(os.Stdout, "simrund %s listening on %s (runs_root=%s)\n", version, ln.Addr(), cfg.RunsRoot)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "simrund: shutdown error: %v\n", err)
			return 1
		}
		return 0
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "simrund: server error: %v\n", err)
			return 1
		}
		return 0
	}
}
