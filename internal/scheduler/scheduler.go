// Package scheduler drives the engine's main loop: keeping enough
// candidates in flight, submitting and polling optimizer jobs over the
// remote-exec pool, breeding new candidates once the population is large
// enough, running the duplicate scan, and applying the session's failure
// policy.
package scheduler

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

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
	"github.com/xtalopt/engine/internal/store"
)

// tickInterval is how often the main loop reassesses submission, polling,
// and breeding.
const tickInterval = 2 * time.Second

// job tracks one candidate's in-flight remote optimization.
type job struct {
	candidate *candidate.Candidate
	conn      *connpool.Connection
	remoteDir string
	jobID     string
}

// Scheduler owns the main loop for one session.
type Scheduler struct {
	st     *store.Store
	pool   *connpool.Pool
	plugin optimizer.Plugin
	gen    *generator.Generator
	dup    *duplicate.Detector
	naming *generator.NamingMutex
	cfg    *config.SessionConfig
	mx     *metrics.Registry
	log    *logging.Logger
	root   string
	rng    *rand.Rand

	jobs []*job
}

// New creates a Scheduler for one session. rng must not be shared with any
// other goroutine; it is this session's single seeded source of randomness.
func New(
	st *store.Store,
	pool *connpool.Pool,
	plugin optimizer.Plugin,
	gen *generator.Generator,
	dup *duplicate.Detector,
	naming *generator.NamingMutex,
	cfg *config.SessionConfig,
	mx *metrics.Registry,
	log *logging.Logger,
	root string,
	rng *rand.Rand,
) *Scheduler {
	return &Scheduler{
		st: st, pool: pool, plugin: plugin, gen: gen, dup: dup,
		naming: naming, cfg: cfg, mx: mx, log: log, root: root, rng: rng,
	}
}

// InitialFill generates num_initial random candidates and publishes them
// to the store, retrying structure-build failures with a fresh draw.
func (s *Scheduler) InitialFill(ctx context.Context) error {
	generation := 1
	for i := 0; i < s.cfg.NumInitial; i++ {
		for {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c, err := s.gen.GenerateRandom(s.rng, generation)
			if err != nil {
				continue
			}
			if !s.gen.Check(c) {
				continue
			}
			s.gen.InitializeAndAdd(s.naming, s.st, c)
			if s.mx != nil {
				s.mx.StructuresGenerated.Inc()
			}
			break
		}
	}
	return nil
}

// Run drives the main loop until ctx is cancelled (a halt request or
// process shutdown).
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.pollInFlight(ctx)
	s.submitWaiting(ctx)
	s.breedIfNeeded(ctx)
	s.dup.Scan(ctx)
}

// submitWaiting checks out connections for WaitingForOptimization
// candidates until the session's target_in_flight count is reached. GULP
// candidates run in-process and never touch the connection pool.
func (s *Scheduler) submitWaiting(ctx context.Context) {
	local := s.plugin.IDString() == "GULP"
	inFlight := len(s.jobs)
	for inFlight < s.cfg.TargetInFlight {
		c := s.nextWaiting()
		if c == nil {
			return
		}

		var conn *connpool.Connection
		if !local {
			var err error
			conn, err = s.pool.GetFreeConnection(ctx)
			if err != nil {
				return
			}
		}

		remoteDir := c.GxI()
		if err := s.plugin.WriteInputFiles(c, s.localDir(c)); err != nil {
			s.fail(c, err)
			s.releaseConn(conn)
			continue
		}
		if err := s.checkOptimizerPreflight(); err != nil {
			s.fail(c, err)
			s.releaseConn(conn)
			continue
		}
		if err := s.plugin.BuildAuxiliaryFiles(c, s.localDir(c)); err != nil {
			s.fail(c, err)
			s.releaseConn(conn)
			continue
		}

		jobID, err := s.plugin.StartJob(ctx, conn, remoteDir)
		if err != nil {
			s.fail(c, err)
			s.releaseConn(conn)
			continue
		}

		c.Lock()
		c.Status = candidate.Submitted
		c.RemotePath = remoteDir
		c.OptTimerStart = time.Now()
		c.Unlock()

		if s.mx != nil {
			s.mx.JobsSubmitted.Inc()
		}

		s.jobs = append(s.jobs, &job{candidate: c, conn: conn, remoteDir: remoteDir, jobID: jobID})
		inFlight++
	}
}

// releaseConn returns conn to the pool, a no-op for GULP jobs whose conn is
// always nil.
func (s *Scheduler) releaseConn(conn *connpool.Connection) {
	if conn != nil {
		s.pool.UnlockConnection(conn)
	}
}

// checkOptimizerPreflight enforces the VASP data-key invariants: "POTCAR
// info" must be non-empty, and "Composition" must match the session's
// composition exactly. Every other backend is a no-op here.
func (s *Scheduler) checkOptimizerPreflight() error {
	if s.plugin.IDString() != "VASP" {
		return nil
	}

	potcar, ok := s.plugin.GetData("POTCAR info")
	if !ok || strings.TrimSpace(potcar) == "" {
		return enginerr.New(enginerr.PluginFailure, `VASP requires a non-empty "POTCAR info" data key`).WithOperation("checkOptimizerPreflight").WithComponent("VASP")
	}

	want := s.gen.Composition().CanonicalString()
	got, ok := s.plugin.GetData("Composition")
	if !ok || got != want {
		return enginerr.Newf(enginerr.PluginFailure, `VASP "Composition" data key %q does not match session composition %q`, got, want).WithOperation("checkOptimizerPreflight").WithComponent("VASP")
	}
	return nil
}

func (s *Scheduler) nextWaiting() *candidate.Candidate {
	for _, c := range s.st.List() {
		c.RLock()
		status := c.Status
		c.RUnlock()
		if status == candidate.WaitingForOptimization {
			return c
		}
	}
	return nil
}

func (s *Scheduler) localDir(c *candidate.Candidate) string {
	return s.root + "/" + c.GxI()
}

// pollInFlight checks every in-flight job and reads results from the
// candidate's local directory for anything the backend reports finished.
func (s *Scheduler) pollInFlight(ctx context.Context) {
	remaining := s.jobs[:0]
	for _, j := range s.jobs {
		j.candidate.Lock()
		j.candidate.Status = candidate.InProcess
		j.candidate.Unlock()

		state, err := s.plugin.Poll(ctx, j.conn, j.remoteDir, j.jobID)
		if err != nil {
			s.fail(j.candidate, err)
			s.releaseConn(j.conn)
			continue
		}

		switch state {
		case optimizer.JobFinished:
			if err := s.plugin.Read(j.candidate, s.localDir(j.candidate)); err != nil {
				s.fail(j.candidate, err)
				s.releaseConn(j.conn)
				continue
			}

			j.candidate.Lock()
			j.candidate.Status = candidate.StepOptimized
			j.candidate.Fingerprint.Enthalpy = j.candidate.Enthalpy
			j.candidate.Fingerprint.Volume = j.candidate.Volume()
			step := j.candidate.CurrentStep
			j.candidate.Unlock()

			if step < s.plugin.Steps() {
				// This optimization step converged but the step list has
				// more stages; loop back through submitWaiting against the
				// candidate's own relaxed output.
				j.candidate.Lock()
				j.candidate.CurrentStep++
				j.candidate.Status = candidate.WaitingForOptimization
				j.candidate.Unlock()
			} else {
				j.candidate.Lock()
				j.candidate.Status = candidate.Optimized
				j.candidate.OptTimerEnd = time.Now()
				j.candidate.Unlock()
				s.gen.FindSpaceGroup(j.candidate)
			}
			_ = persistence.SaveCandidate(s.root, j.candidate)
			s.releaseConn(j.conn)
		case optimizer.JobError:
			s.fail(j.candidate, nil)
			s.releaseConn(j.conn)
		default:
			remaining = append(remaining, j)
		}
	}
	s.jobs = remaining
}

// breedIfNeeded tops up the waiting queue from the optimized population
// once there are enough parents to sample from.
func (s *Scheduler) breedIfNeeded(ctx context.Context) {
	waitingCount := 0
	var optimized []*candidate.Candidate
	for _, c := range s.st.List() {
		c.RLock()
		switch c.Status {
		case candidate.WaitingForOptimization:
			waitingCount++
		case candidate.Optimized:
			optimized = append(optimized, c)
		}
		c.RUnlock()
	}
	if waitingCount >= s.cfg.TargetInFlight || len(optimized) < 3 {
		return
	}

	child, err := s.gen.Breed(s.rng, optimized)
	if err != nil {
		// Breed's own retry budget is exhausted; this is expected often
		// enough under tight bounds that it doesn't warrant Error, but is
		// worth a structured trace for anyone tuning operator weights.
		if s.log != nil {
			logging.NewZapLogger(s.log).Debug("breed exhausted its retry budget", zap.Error(err), zap.Int("optimized_pool", len(optimized)))
		}
		return
	}
	if !s.gen.Check(child) {
		return
	}
	s.gen.InitializeAndAdd(s.naming, s.st, child)
	if s.mx != nil {
		s.mx.StructuresGenerated.Inc()
	}
}

// fail records a candidate failure and applies the session's failure
// policy once its retry budget is exhausted.
func (s *Scheduler) fail(c *candidate.Candidate, cause error) {
	c.Lock()
	c.FailCount++
	failCount := c.FailCount
	c.Status = candidate.Error
	c.Unlock()

	if s.mx != nil {
		s.mx.JobsFailed.Inc()
	}
	if s.log != nil && cause != nil {
		s.log.WithError(cause).Error("candidate job failed")
	}

	if failCount < s.cfg.MaxFailuresBeforeAction {
		c.Lock()
		c.Status = candidate.WaitingForOptimization
		c.Unlock()
		return
	}

	switch s.cfg.FailureAction {
	case config.FailureReplace:
		reason := "exceeded failure budget"
		if cause != nil {
			reason = cause.Error()
		}
		if err := s.gen.ReplaceWithRandom(s.rng, c, reason); err != nil && s.log != nil {
			s.log.WithError(err).Error("replace_with_random failed")
		}
	case config.FailureKillCandidate:
		c.Lock()
		c.Status = candidate.Killed
		c.Unlock()
	case config.FailureKillSession:
		c.Lock()
		c.Status = candidate.Killed
		c.Unlock()
		// Unlike FailureKillCandidate, this candidate's exhausted retry
		// budget takes the whole session down: drop the same sentinel file
		// the HTTP halt endpoint and CLI halt command use, so the engine's
		// haltwatch.Watcher picks it up and begins the normal cooperative
		// shutdown.
		if err := haltwatch.WriteSentinel(s.root); err != nil && s.log != nil {
			s.log.WithError(err).Error("kill_session: failed to write halt sentinel")
		}
	}
}
