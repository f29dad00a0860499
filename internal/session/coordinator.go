package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentrastack/sentra-diag/internal/engine"
	"github.com/sentrastack/sentra-diag/internal/metrics"
	"github.com/sentrastack/sentra-diag/internal/models"
	"github.com/sentrastack/sentra-diag/internal/utils"
)

// Coordinator schedules analysis jobs over a bounded worker set and answers
// status/result queries. It is the only writer of session state.
type Coordinator struct {
	logger    *slog.Logger
	store     Store
	pipeline  *engine.Pipeline
	slots     chan struct{}
	retention time.Duration
	workRoot  string
	latencies *utils.LatencyTracker

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewCoordinator constructs a Coordinator with maxConcurrent worker slots.
func NewCoordinator(logger *slog.Logger, store Store, pipeline *engine.Pipeline, maxConcurrent int, retention time.Duration, workRoot string) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if retention <= 0 {
		retention = 30 * time.Minute
	}
	if workRoot == "" {
		workRoot = os.TempDir()
	}
	return &Coordinator{
		logger:    logger,
		store:     store,
		pipeline:  pipeline,
		slots:     make(chan struct{}, maxConcurrent),
		retention: retention,
		workRoot:  workRoot,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Submit validates the request, allocates a session, and starts the job.
// It fails immediately with KindCapacityExceeded when all worker slots are
// busy; excess submissions never queue unboundedly.
func (c *Coordinator) Submit(req models.AnalyzeRequest) (string, error) {
	const op = "session.Submit"

	if !c.pipeline.SupportsAnalysisType(req.AnalysisType) {
		return "", utils.NewAppError(op, utils.KindInvalidArgument,
			fmt.Sprintf("unknown analysis type %q", req.AnalysisType), nil)
	}
	if len(req.Files) == 0 {
		return "", utils.NewAppError(op, utils.KindInvalidArgument, "no files submitted", nil)
	}

	select {
	case c.slots <- struct{}{}:
	default:
		return "", utils.NewAppError(op, utils.KindCapacityExceeded, "concurrent session limit reached", nil)
	}

	id := uuid.NewString()
	workDir, err := c.stageBundle(id, req.Files)
	if err != nil {
		<-c.slots
		return "", utils.NewAppError(op, utils.KindInternal, "allocate session workspace", err)
	}

	session := models.Session{
		ID:           id,
		AnalysisType: req.AnalysisType,
		Status:       models.StatusQueued,
		CreatedAt:    time.Now().UTC(),
		WorkDir:      workDir,
	}
	if err := c.store.Create(session); err != nil {
		<-c.slots
		os.RemoveAll(workDir)
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.cancels == nil {
		c.cancels = make(map[string]context.CancelFunc)
	}
	c.cancels[id] = cancel
	c.mu.Unlock()

	bundle := models.LogBundle{ID: id, Files: req.Files}
	go c.run(ctx, id, bundle, req.AnalysisType)
	return id, nil
}

// Status answers a poll. Expired sessions are indistinguishable from unknown
// ones at the boundary.
func (c *Coordinator) Status(id string) (models.StatusResponse, error) {
	session, ok := c.store.Get(id)
	if !ok || session.Status == models.StatusExpired {
		return models.StatusResponse{}, utils.NewAppError("session.Status", utils.KindNotFound, "unknown session "+id, nil)
	}
	return models.StatusResponse{
		SessionID: session.ID,
		Status:    session.Status,
		Stage:     session.Stage,
		Percent:   session.Percent,
	}, nil
}

// Result returns the stored report once the session completed.
func (c *Coordinator) Result(id string) (*models.AnalysisReport, error) {
	const op = "session.Result"
	session, ok := c.store.Get(id)
	if !ok || session.Status == models.StatusExpired {
		return nil, utils.NewAppError(op, utils.KindNotFound, "unknown session "+id, nil)
	}
	switch session.Status {
	case models.StatusCompleted:
		return session.Report, nil
	case models.StatusFailed:
		return nil, utils.NewAppError(op, utils.KindInternal, session.Error, nil)
	default:
		return nil, utils.NewAppError(op, utils.KindNotReady,
			fmt.Sprintf("session %s is %s", id, session.Status), nil)
	}
}

// Cancel marks a session cancelled. The cancellation takes effect at the
// next stage boundary; an in-flight LLM call is left to finish and its
// result is discarded.
func (c *Coordinator) Cancel(id string) error {
	session, ok := c.store.Get(id)
	if !ok || session.Status == models.StatusExpired {
		return utils.NewAppError("session.Cancel", utils.KindNotFound, "unknown session "+id, nil)
	}
	if session.Status.Terminal() {
		return nil
	}
	if err := c.store.Update(id, func(s *models.Session) { s.Cancelled = true }); err != nil {
		return err
	}
	c.mu.Lock()
	cancel, ok := c.cancels[id]
	c.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// Cleanup disposes a session's temporary files and report ahead of the
// retention reaper. Active sessions are cancelled first.
func (c *Coordinator) Cleanup(id string) error {
	session, ok := c.store.Get(id)
	if !ok {
		return utils.NewAppError("session.Cleanup", utils.KindNotFound, "unknown session "+id, nil)
	}
	if !session.Status.Terminal() {
		if err := c.Cancel(id); err != nil {
			return err
		}
	}
	if session.WorkDir != "" {
		if err := os.RemoveAll(session.WorkDir); err != nil {
			c.logger.Warn("workspace removal failed", slog.String("session", id), slog.Any("error", err))
		}
	}
	c.store.Delete(id)
	return nil
}

// StartReaper expires terminal sessions past the retention window until ctx
// is done. Expiry clears the report and temp files; the record itself is
// dropped one pass later.
func (c *Coordinator) StartReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.reap(time.Now().UTC())
			}
		}
	}()
}

func (c *Coordinator) reap(now time.Time) {
	for _, session := range c.store.List() {
		if session.Status == models.StatusExpired {
			c.store.Delete(session.ID)
			continue
		}
		if !session.Status.Terminal() || session.CompletedAt.IsZero() {
			continue
		}
		if now.Sub(session.CompletedAt) < c.retention {
			continue
		}
		workDir := session.WorkDir
		if err := c.store.Update(session.ID, func(s *models.Session) {
			s.Status = models.StatusExpired
			s.Report = nil
			s.WorkDir = ""
		}); err != nil {
			continue
		}
		if workDir != "" {
			if err := os.RemoveAll(workDir); err != nil {
				c.logger.Warn("workspace removal failed", slog.String("session", session.ID), slog.Any("error", err))
			}
		}
		c.logger.Debug("session expired", slog.String("session", session.ID))
	}
}

// run executes one job. A panic or error inside a stage fails the session;
// it never crashes the coordinator.
func (c *Coordinator) run(ctx context.Context, id string, bundle models.LogBundle, analysisType string) {
	start := time.Now()
	defer func() {
		<-c.slots
		c.mu.Lock()
		delete(c.cancels, id)
		c.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("pipeline panic", slog.String("session", id), slog.Any("panic", r))
			c.fail(id, fmt.Sprintf("internal error: %v", r))
			metrics.ObserveAnalysis(time.Since(start), metrics.OutcomeError, "")
		}
	}()

	c.store.Update(id, func(s *models.Session) {
		s.Status = models.StatusRunning
		s.Stage = models.StageParsing
	})

	progress := func(stage models.Stage, percent int) {
		c.store.Update(id, func(s *models.Session) {
			s.Stage = stage
			s.Percent = percent
		})
	}

	report, err := c.pipeline.Run(ctx, bundle, analysisType, progress)
	duration := time.Since(start)

	if session, ok := c.store.Get(id); ok && session.Cancelled {
		// Discard any result produced while the cancellation raced a stage.
		c.fail(id, "analysis cancelled")
		metrics.ObserveAnalysis(duration, metrics.OutcomeError, "")
		return
	}
	if err != nil {
		c.logger.Error("analysis failed", slog.String("session", id), slog.Any("error", err))
		c.fail(id, err.Error())
		metrics.ObserveAnalysis(duration, metrics.OutcomeError, "")
		return
	}

	c.store.Update(id, func(s *models.Session) {
		s.Status = models.StatusCompleted
		s.Stage = models.StageFinalizing
		s.Percent = 100
		s.CompletedAt = time.Now().UTC()
		s.Report = report
	})

	c.latencies.Observe(duration)
	metrics.ObserveAnalysis(duration, metrics.OutcomeSuccess, string(report.DegradationLevel))
	if count := c.latencies.Count(); count >= 20 && count%20 == 0 {
		c.logger.Info("analysis latency", slog.Duration("p95", c.latencies.Percentile(95)), slog.Int("samples", count))
	}
	c.logger.Info("analysis completed",
		slog.String("session", id),
		slog.String("degradation", string(report.DegradationLevel)),
		slog.Duration("duration", duration))
}

func (c *Coordinator) fail(id, message string) {
	c.store.Update(id, func(s *models.Session) {
		s.Status = models.StatusFailed
		s.Error = message
		s.CompletedAt = time.Now().UTC()
	})
}

// stageBundle writes the uploaded files into a per-session directory so the
// raw upload buffers can be released while the job is queued.
func (c *Coordinator) stageBundle(id string, files []models.BundleFile) (string, error) {
	workDir := filepath.Join(c.workRoot, "sentra-diag", id)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", err
	}
	for _, file := range files {
		name := filepath.Base(file.Name)
		if name == "." || name == string(filepath.Separator) {
			name = "upload.log"
		}
		if err := os.WriteFile(filepath.Join(workDir, name), file.Data, 0o644); err != nil {
			os.RemoveAll(workDir)
			return "", err
		}
	}
	return workDir, nil
}
