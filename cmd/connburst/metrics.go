package main

import (
	"context"
	"net"
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsServer struct {
	listener net.Listener
	server   *http.Server
	done     chan struct{}
}

// startMetricsServer exposes the registry on /metrics until stop is called.
func startMetricsServer(addr string, reg prometheus.Gatherer, logger log.Logger) (*metricsServer, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	}).Methods(http.MethodGet)

	s := &metricsServer{
		listener: l,
		server:   &http.Server{Handler: r},
		done:     make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			level.Error(logger).Log("msg", "metrics server failed", "err", err)
		}
	}()
	level.Info(logger).Log("msg", "serving metrics", "addr", l.Addr().String())
	return s, nil
}

func (s *metricsServer) addr() string { return s.listener.Addr().String() }

func (s *metricsServer) stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	<-s.done
	return err
}
