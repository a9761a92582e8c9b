package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
)

func newHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}
}

func listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := &net.ListenConfig{
		KeepAliveConfig: net.KeepAliveConfig{
			Enable: true,
		},
	}

	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}

	return listener, nil
}

// serve closes ready and serves listener until the server is shut down.
func serve(ctx context.Context, logger *slog.Logger, server *http.Server, listener net.Listener, ready chan struct{}) {
	logger.InfoContext(ctx, "listening", "addr", listener.Addr().String())

	go func() {
		close(ready)

		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "serve failed", "reason", err)
		}
	}()
}

func shutdownServer(ctx context.Context, logger *slog.Logger, server *http.Server) error {
	if server == nil {
		return nil
	}

	logger.InfoContext(ctx, "shutting down")

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown %s: %w", server.Addr, err)
	}

	logger.InfoContext(ctx, "closed properly")

	return nil
}

// pingReady reports ErrServerNotReady until ready is closed.
func pingReady(ctx context.Context, ready <-chan struct{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ready:
		return nil
	default:
		return ErrServerNotReady
	}
}
