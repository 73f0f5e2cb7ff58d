package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eve-dealfinder/internal/logger"
)

const readHeaderTimeout = 5 * time.Second

// Server exposes /metrics until its context ends.
type Server struct {
	listenAddress string
}

func NewServer(listenAddress string) Server {
	return Server{listenAddress: listenAddress}
}

// Handler returns the /metrics mux.
func (s Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.listenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		if err := httpServer.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("Metrics", "shutdown failed", logger.Err(err))
		}
	}()

	logger.Info("Metrics", "prometheus server started", "addr", s.listenAddress)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("httpServer.ListenAndServe: %w", err)
	}
	return nil
}
