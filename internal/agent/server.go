package agent

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hairocraft/callsync/internal/store"
	"github.com/hairocraft/callsync/internal/sync"
	"github.com/hairocraft/callsync/pkg/log"
	"go.uber.org/zap"
)

/*
Server is the local control plane of the sync agent:
- /api/v1/call-events accepts finished calls from the event source
- /api/v1/status reports queue depth and connectivity
- /api/v1/sync forces a scheduling pass
- /metrics exposes the Prometheus registry
*/
type Server struct {
	port          int
	baseCtx       context.Context
	orchestrator  *sync.Orchestrator
	store         store.Store
	healthChecker *HealthChecker
	restServer    *http.Server
}

func NewServer(baseCtx context.Context, port int, orchestrator *sync.Orchestrator, st store.Store, healthChecker *HealthChecker) *Server {
	return &Server{
		port:          port,
		baseCtx:       baseCtx,
		orchestrator:  orchestrator,
		store:         st,
		healthChecker: healthChecker,
	}
}

func (s *Server) Start() {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(log.Logger(zap.L(), "server"))

	RegisterApi(router, s)

	s.restServer = &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", s.port), Handler: router}

	// Run the server
	err := s.restServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		zap.S().Named("server").Fatalf("failed to start server: %v", err)
	}
}

func (s *Server) Stop(stopCh chan any) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	doneCh := make(chan any)

	go func() {
		err := s.restServer.Shutdown(shutdownCtx)
		if err != nil {
			zap.S().Named("server").Errorf("failed to graceful shutdown the server: %s", err)
		}
		close(doneCh)
	}()

	<-doneCh

	close(stopCh)
}
