// Package prometheus serves the metrics endpoint and a service health
// check backed by the runtime service registry.
package prometheus

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/babylonlabs-io/sentinel/runtime"
)

var log = logrus.WithField("prefix", "prometheus")

// Service provides Prometheus metrics and a healthz endpoint reporting
// the status of every registered service.
type Service struct {
	server      *http.Server
	svcRegistry *runtime.ServiceRegistry
	failStatus  error
}

// NewService sets up a new instance for a given address.
func NewService(addr string, svcRegistry *runtime.ServiceRegistry) *Service {
	s := &Service{svcRegistry: svcRegistry}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.healthzHandler)
	s.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return s
}

func (s *Service) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	healthy := true
	var body string
	for svc, status := range s.svcRegistry.Statuses() {
		if status == nil {
			body += fmt.Sprintf("%s: OK\n", svc)
			continue
		}
		healthy = false
		body += fmt.Sprintf("%s: ERROR %v\n", svc, status)
	}
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		log.WithError(err).Debug("Could not write healthz response")
	}
}

// Start the prometheus service.
func (s *Service) Start() {
	go func() {
		log.WithField("address", s.server.Addr).Debug("Starting prometheus service")
		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Could not listen to host:port")
			s.failStatus = err
		}
	}()
}

// Stop the service gracefully.
func (s *Service) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Status checks for any service failure conditions.
func (s *Service) Status() error {
	return s.failStatus
}
