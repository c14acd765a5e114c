// Package engine wires together the store, generator, connection pool,
// scheduler, duplicate detector, persistence layer, metrics, and HTTP
// server into one running session.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xtalopt/engine/internal/candidate"
	"github.com/xtalopt/engine/internal/config"
	"github.com/xtalopt/engine/internal/connpool"
	"github.com/xtalopt/engine/internal/duplicate"
	"github.com/xtalopt/engine/internal/enginerr"
	"github.com/xtalopt/engine/internal/generator"
	"github.com/xtalopt/engine/internal/haltwatch"
	"github.com/xtalopt/engine/internal/logging"
	"github.com/xtalopt/engine/internal/metrics"
	"github.com/xtalopt/engine/internal/optimizer"
	"github.com/xtalopt/engine/internal/persistence"
	"github.com/xtalopt/engine/internal/prompter"
	"github.com/xtalopt/engine/internal/scheduler"
	"github.com/xtalopt/engine/internal/server"
	"github.com/xtalopt/engine/internal/store"
)

// Engine owns every long-lived component of a running session.
type Engine struct {
	cfg        *config.Config
	sessionCfg *config.SessionConfig
	logger     *logging.Logger

	st   *store.Store
	pool *connpool.Pool
	sch  *scheduler.Scheduler
	hw   *haltwatch.Watcher

	httpServer *http.Server
}

// New constructs every component but does not start the session; call Run
// to begin. plugin is the already-configured optimizer backend selected by
// sessionCfg.OptimizerPlugin.
func New(cfg *config.Config, sessionCfg *config.SessionConfig, logger *logging.Logger, plugin optimizer.Plugin, ask prompter.Prompter) (*Engine, error) {
	// Every log line for this run carries the same session_id so operators
	// can grep one run's worth of output out of a shared log stream.
	logger = logger.WithField("session_id", uuid.New().String())

	st := store.New(256)

	reg := prometheus.NewRegistry()
	mx := metrics.New(reg)

	pool := connpool.New(sessionCfg.NumConnections, cfg.SSH.KnownHostsPath)
	if sessionCfg.RemoteHost != "" {
		pass, err := ask.AskPassword(fmt.Sprintf("Password for %s@%s", sessionCfg.RemoteUser, sessionCfg.RemoteHost))
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := pool.MakeConnections(ctx, sessionCfg.RemoteHost, sessionCfg.RemoteUser, pass, sessionCfg.RemotePort, sessionCfg.NumConnections); err != nil {
			return nil, err
		}
	}

	comp := candidate.Composition(sessionCfg.Composition)

	// The engine, not the operator, is the source of truth for the
	// "Composition" data key every optimizer plugin's pre-flight check
	// compares against; plugin_data only ever seeds backend-specific keys
	// like VASP's "POTCAR info".
	plugin.SetData("Composition", comp.CanonicalString())
	for k, v := range sessionCfg.PluginData {
		plugin.SetData(k, v)
	}

	gen := generator.New(sessionCfg, comp)
	dup := duplicate.New(st, sessionCfg.TolEnthalpy, sessionCfg.TolVolume)
	naming := &generator.NamingMutex{}

	rng := rand.New(rand.NewSource(1))

	sch := scheduler.New(st, pool, plugin, gen, dup, naming, sessionCfg, mx, logger, sessionCfg.SessionRoot, rng)

	hw, err := haltwatch.New(sessionCfg.SessionRoot, logger)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(logger))
	r.Use(middleware.Timeout(60 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := server.NewServer(cfg, logger, st, gen, dup, sessionCfg.SessionRoot)
	srv.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &Engine{
		cfg: cfg, sessionCfg: sessionCfg, logger: logger,
		st: st, pool: pool, sch: sch, hw: hw, httpServer: httpServer,
	}, nil
}

// Run starts the HTTP server and the scheduler loop, blocking until a halt
// sentinel appears, an OS interrupt is received, or ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		e.logger.Info("starting server", map[string]interface{}{"address": e.httpServer.Addr})
		if err := e.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.logger.Fatal("failed to start server", map[string]interface{}{"error": err.Error()})
		}
	}()

	resumed, err := e.loadExistingSession()
	if err != nil {
		return err
	}
	if !resumed {
		if err := e.sch.InitialFill(runCtx); err != nil {
			return err
		}
	}

	schedulerDone := make(chan error, 1)
	go func() { schedulerDone <- e.sch.Run(runCtx) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		e.logger.Info("received interrupt, shutting down")
	case <-e.hw.Halted:
		e.logger.Info("halt sentinel observed, shutting down")
	case err := <-schedulerDone:
		if err != nil {
			e.logger.WithError(err).Error("scheduler stopped")
		}
	}

	cancel()
	<-schedulerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), e.cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := e.httpServer.Shutdown(shutdownCtx); err != nil {
		e.logger.WithError(err).Error("server forced to shutdown")
	}

	e.pool.Close()
	_ = e.hw.Close()

	return persistence.SaveSession(e.sessionCfg.SessionRoot, persistence.SessionState{
		Version:        1,
		SessionRoot:    e.sessionCfg.SessionRoot,
		CandidateCount: e.st.Size(),
	})
}

// loadExistingSession implements load(path): it refuses to resume unless a
// successful session state exists, then republishes every candidate it can
// read back, sorted by its persisted index, letting Store.Append reassign
// 0..n-1 defensively as it does for a freshly generated population.
func (e *Engine) loadExistingSession() (bool, error) {
	root := e.sessionCfg.SessionRoot
	if !persistence.SessionStateExists(root) {
		return false, nil
	}

	state, err := persistence.LoadSession(root)
	if err != nil {
		return false, err
	}
	if !state.SaveSuccessful {
		return false, enginerr.New(enginerr.CorruptState, "session state marked unsuccessful, refusing to resume").WithOperation("loadExistingSession")
	}

	candStates, err := persistence.LoadAllCandidates(root)
	if err != nil {
		return false, err
	}
	sort.SliceStable(candStates, func(i, j int) bool { return candStates[i].Index < candStates[j].Index })

	for _, cs := range candStates {
		c := candidate.New(cs.Cell)
		c.IDNumber = cs.IDNumber
		c.Generation = cs.Generation
		c.Parents = cs.Parents
		c.Atoms = cs.Atoms
		c.Energy = cs.Energy
		c.Enthalpy = cs.Enthalpy
		c.PV = cs.PV
		c.Status = cs.Status
		c.CurrentStep = cs.CurrentStep
		c.FailCount = cs.FailCount
		c.Fingerprint.Spacegroup = cs.Spacegroup
		c.DuplicateOf = cs.DuplicateOf
		c.LocalPath = cs.LocalPath
		c.RemotePath = cs.RemotePath
		e.st.Append(c)
	}

	e.logger.Info("resumed session from disk", map[string]interface{}{"candidates": len(candStates)})
	return true, nil
}
