package agent

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hairocraft/callsync/internal/auth"
	"github.com/hairocraft/callsync/internal/client"
	"github.com/hairocraft/callsync/internal/compress"
	"github.com/hairocraft/callsync/internal/config"
	"github.com/hairocraft/callsync/internal/matcher"
	"github.com/hairocraft/callsync/internal/mediaindex"
	"github.com/hairocraft/callsync/internal/store"
	"github.com/hairocraft/callsync/internal/sync"
	"github.com/hairocraft/callsync/pkg/metrics"
	"github.com/lthibault/jitterbug/v2"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// This varible is set during build time.
// It contains the version of the code.
// For more info take a look into Makefile.
var version string

// New creates a new agent.
func New(cfg *config.Config) *Agent {
	return &Agent{
		config:            cfg,
		healthCheckStopCh: make(chan chan any),
	}
}

type Agent struct {
	config            *config.Config
	store             store.Store
	orchestrator      *sync.Orchestrator
	watcher           *mediaindex.Watcher
	server            *Server
	healthCheckStopCh chan chan any
}

func (a *Agent) Run(ctx context.Context) error {
	log := zap.S().Named("agent")
	log.Infof("starting callsync agent: %s", version)
	defer log.Info("agent stopped")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.start(ctx); err != nil {
		return err
	}

	select {
	case <-sig:
	case <-ctx.Done():
	}

	log.Info("stopping agent...")
	a.Stop()

	return nil
}

func (a *Agent) start(ctx context.Context) error {
	log := zap.S().Named("agent")

	db, err := store.InitDB(a.config)
	if err != nil {
		return err
	}
	a.store = store.NewStore(db, logrus.WithField("component", "store"))
	if err := a.store.InitialMigration(); err != nil {
		return err
	}

	index := mediaindex.NewIndex(db)
	if err := index.InitialMigration(); err != nil {
		return err
	}

	metrics.RegisterQueueStatsCollector(a.store)

	api := client.New(client.NewDefault(a.config.Service.BaseUrl))
	creds := auth.NewFileProvider(a.config.Service.DataDir)

	phones := matcher.PhoneConfig{
		CountryCode: a.config.Matching.CountryCode,
		TrunkPrefix: a.config.Matching.TrunkPrefix,
	}
	scanner := matcher.NewDirScanner(a.config.Matching.StorageRoot)
	m := matcher.New(index, scanner, phones)

	a.orchestrator = sync.NewOrchestrator(
		a.store,
		sync.NewExecutor(api, creds),
		creds,
		m,
		phones,
		compress.NewFFmpeg(a.config.CacheDir()),
		a.config.Sync.CompletedRetention,
	)

	a.watcher, err = mediaindex.NewWatcher(index, a.config.Matching.StorageRoot)
	if err != nil {
		return err
	}
	if err := a.watcher.Start(ctx); err != nil {
		return err
	}

	// Flush the queue the moment connectivity comes back.
	healthChecker, err := NewHealthChecker(api, a.config.Service.DataDir, a.config.Sync.HealthCheckInterval, func() {
		a.orchestrator.TriggerSync(ctx)
	})
	if err != nil {
		return err
	}
	healthChecker.Start(ctx, a.healthCheckStopCh)

	a.server = NewServer(ctx, a.config.Service.AgentPort, a.orchestrator, a.store, healthChecker)
	go a.server.Start()

	// Periodic sync with a little jitter so a fleet of agents does not
	// stampede the service at the same instant.
	syncTicker := jitterbug.New(a.config.Sync.UpdateInterval, &jitterbug.Norm{Stdev: 30 * time.Second, Mean: 0})

	go func() {
		defer syncTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-syncTicker.C:
			}

			//	check for health. Send requests only if we have connectivity
			if healthChecker.State() == HealthStateUnreachable {
				continue
			}

			if err := a.orchestrator.RunDueJobs(ctx); err != nil {
				log.Errorf("periodic sync failed: %v", err)
			}
		}
	}()

	return nil
}

func (a *Agent) Stop() {
	log := zap.S().Named("agent")

	serverCh := make(chan any)
	a.server.Stop(serverCh)
	<-serverCh
	log.Info("server stopped")

	c := make(chan any)
	a.healthCheckStopCh <- c
	<-c
	log.Info("health check stopped")

	a.watcher.Stop()

	// Let in-flight recording searches queue their jobs before the store
	// goes away.
	a.orchestrator.WaitSearches()

	if err := a.store.Close(); err != nil {
		log.Errorf("failed to close store: %v", err)
	}
}
