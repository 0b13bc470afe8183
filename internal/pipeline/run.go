// Package pipeline captions a folder of images with bounded concurrency.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/oukeidos/ocap/internal/apperrors"
	"github.com/oukeidos/ocap/internal/logger"
	"github.com/oukeidos/ocap/internal/ollama"
	"github.com/oukeidos/ocap/internal/sidecar"
	"github.com/oukeidos/ocap/internal/supervisor"
)

// State is the lifecycle stage of a Run.
type State string

const (
	StateIdle        State = "Idle"
	StateEnumerating State = "Enumerating"
	StateDispatching State = "Dispatching"
	StateAggregating State = "Aggregating"
	StateDone        State = "Done"
)

// Deps are the collaborators of a run. Generator is required.
type Deps struct {
	Generator ollama.Generator
	Restarter supervisor.Restarter
	// ReadFile defaults to os.ReadFile.
	ReadFile func(string) ([]byte, error)
	// Now defaults to time.Now.
	Now func() time.Time
}

type noopRestarter struct{}

func (noopRestarter) Restart(context.Context) {}

// Run is a single execution of the pipeline. It is not reusable.
type Run struct {
	id   string
	cfg  Config
	deps Deps

	stop     atomic.Bool
	restarts atomic.Int64

	mu    sync.Mutex
	state State
}

func NewRun(cfg Config, deps Deps) *Run {
	if deps.Restarter == nil {
		deps.Restarter = noopRestarter{}
	}
	if deps.ReadFile == nil {
		deps.ReadFile = os.ReadFile
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Run{
		id:    uuid.NewString(),
		cfg:   cfg,
		deps:  deps,
		state: StateIdle,
	}
}

func (r *Run) ID() string { return r.id }

// RequestStop lets in-flight jobs finish and cancels those not yet started.
// It cannot be undone.
func (r *Run) RequestStop() {
	if !r.stop.Swap(true) {
		logger.Warn("Stop requested; waiting for in-flight captions", "run_id", r.id)
	}
}

// StopRequested reports whether RequestStop has been called.
func (r *Run) StopRequested() bool { return r.stop.Load() }

func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Run) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Execute validates the configuration, captions every enumerated image and
// returns the report. Job failures never abort the run; canceling ctx aborts
// in-flight model calls.
func (r *Run) Execute(ctx context.Context) (Report, error) {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return Report{}, fmt.Errorf("run %s already executed", r.id)
	}
	r.state = StateEnumerating
	r.mu.Unlock()

	cfg, notes := r.cfg.Normalize()
	for _, note := range notes {
		logger.Warn("Config normalized", "detail", note)
	}
	if err := cfg.Validate(); err != nil {
		r.setState(StateDone)
		return Report{}, err
	}
	if r.deps.Generator == nil {
		r.setState(StateDone)
		return Report{}, errors.New("pipeline: no model client configured")
	}
	r.cfg = cfg

	report := Report{
		RunID:     r.id,
		Dir:       cfg.Dir,
		Model:     cfg.Model,
		StartedAt: r.deps.Now(),
	}

	var paths []string
	if len(cfg.Files) > 0 {
		paths = resolveFiles(cfg.Dir, cfg.Files)
	} else {
		var err error
		if paths, err = Enumerate(cfg.Dir); err != nil {
			r.setState(StateDone)
			return Report{}, err
		}
	}

	var pending []Job
	for _, job := range newJobs(cfg, paths) {
		if job.SidecarExists && job.Policy == sidecar.PolicySkip {
			report.Results = append(report.Results, skippedResult(job))
			continue
		}
		pending = append(pending, job)
	}
	log := logger.With("run_id", r.id)
	log.Info("Starting caption run",
		"dir", cfg.Dir,
		"model", cfg.Model,
		"images", len(paths),
		"skipped", len(report.Results),
		"queued", len(pending),
		"concurrency", cfg.Concurrency,
		"policy", cfg.Policy,
		"hardware", cfg.Hardware,
	)

	r.setState(StateDispatching)
	report.Results = append(report.Results, r.dispatch(ctx, pending)...)

	r.setState(StateAggregating)
	report.FinishedAt = r.deps.Now()
	report.Restarts = int(r.restarts.Load())
	report.tally()
	log.Info("Caption run finished",
		"status", report.Status,
		"succeeded", report.Succeeded,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"canceled", report.Canceled,
		"restarts", report.Restarts,
		"elapsed", report.FinishedAt.Sub(report.StartedAt).Round(time.Second),
	)
	r.setState(StateDone)
	return report, nil
}

func (r *Run) dispatch(ctx context.Context, jobs []Job) []CaptionResult {
	if len(jobs) == 0 {
		return nil
	}
	tracker := NewTracker(len(jobs)).StopWith(func() bool {
		return r.stop.Load() || ctx.Err() != nil
	})

	queue := make(chan Job, len(jobs))
	for _, job := range jobs {
		queue <- job
	}
	close(queue)

	workers := r.cfg.Concurrency
	if workers > len(jobs) {
		workers = len(jobs)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]CaptionResult, 0, len(jobs))
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				res := r.process(ctx, job, tracker)
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return results
}

func (r *Run) process(ctx context.Context, job Job, tracker *Tracker) CaptionResult {
	if !tracker.Begin() {
		return canceledBeforeStart(job)
	}
	start := r.deps.Now()
	res := r.safeCaption(ctx, job)
	res.Elapsed = r.deps.Now().Sub(start)

	p := tracker.Record(res.Elapsed)
	logger.Info("Caption progress",
		"elapsed", FormatETA(p.Elapsed),
		"completed", p.Completed,
		"total", p.Total,
		"eta", FormatETA(p.ETA),
	)
	if r.cfg.OnProgress != nil {
		r.cfg.OnProgress(p)
	}
	return res
}

func (r *Run) safeCaption(ctx context.Context, job Job) (res CaptionResult) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("Caption job panicked", "path", job.SourcePath, "panic", p)
			res = failedResult(job, fmt.Errorf("internal error: %v", p))
		}
	}()

	text, err := r.caption(ctx, job)
	if err != nil {
		if apperrors.IsCanceled(err) || ctx.Err() != nil {
			logger.Warn("Caption canceled", "path", job.SourcePath)
			return canceledResult(job, err)
		}
		logger.Error("Caption failed", "path", job.SourcePath, "error", err)
		return failedResult(job, err)
	}

	out, err := sidecar.Apply(job.SidecarPath, text, job.Policy)
	if err != nil {
		logger.Error("Failed to write sidecar", "path", job.SidecarPath, "error", err)
		return failedResult(job, err)
	}
	if out.Mode == sidecar.ModeSkipped {
		return skippedResult(job)
	}
	logger.Debug("Caption saved", "path", job.SidecarPath, "mode", out.Mode, "preview", preview(text))
	return writtenResult(job, text, out.Mode)
}

func (r *Run) caption(ctx context.Context, job Job) (string, error) {
	d, err := r.describe(ctx, job)
	if err != nil {
		return "", err
	}
	return d.Final(), nil
}

// describe runs the primary, tag and refine calls for one image. All calls
// of the job draw on one restart budget.
func (r *Run) describe(ctx context.Context, job Job) (Description, error) {
	img, err := r.deps.ReadFile(job.SourcePath)
	if err != nil {
		return Description{}, apperrors.New(apperrors.KindValidation, "Image could not be read.", err)
	}
	images := [][]byte{img}
	budget := &restartBudget{left: r.cfg.RestartBudget}

	var d Description
	d.Caption, err = r.generate(ctx, budget, ollama.GenerateRequest{
		Model:    job.Model,
		Prompt:   job.PrimaryPrompt,
		Images:   images,
		Hardware: job.Hardware,
	})
	if err != nil {
		return Description{}, err
	}
	if job.RefineModel == "" {
		return d, nil
	}

	d.Tags = make([]string, 0, len(job.TagModels))
	for _, model := range job.TagModels {
		tag, err := r.generate(ctx, budget, ollama.GenerateRequest{
			Model:    model,
			Prompt:   job.PrimaryPrompt,
			Images:   images,
			Hardware: job.Hardware,
		})
		if err != nil {
			return Description{}, err
		}
		d.Tags = append(d.Tags, tag)
	}

	req := ollama.GenerateRequest{
		Model:    job.RefineModel,
		Prompt:   BuildRefinePrompt(job.RefinePrompt, d.Caption, d.Tags),
		Hardware: job.Hardware,
	}
	if job.AttachImageToRefine {
		req.Images = images
	}
	if d.Refined, err = r.generate(ctx, budget, req); err != nil {
		return Description{}, err
	}
	return d, nil
}

// restartBudget is what remains of a job's server restarts.
type restartBudget struct {
	left, used int
}

// generate calls the model and answers read timeouts with a server restart
// while the job's budget lasts.
func (r *Run) generate(ctx context.Context, budget *restartBudget, req ollama.GenerateRequest) (string, error) {
	for {
		gen, err := r.deps.Generator.Generate(ctx, req)
		if err == nil {
			return gen.Text, nil
		}
		if !apperrors.IsReadTimeout(err) || ctx.Err() != nil {
			return "", err
		}
		if budget.left <= 0 {
			logger.Error("Model call failed after server restarts", "model", req.Model, "restarts", budget.used)
			return "", err
		}
		budget.left--
		budget.used++
		r.restarts.Add(1)
		logger.Warn("Model server timed out; restarting", "model", req.Model, "restart", budget.used, "budget", r.cfg.RestartBudget)
		r.deps.Restarter.Restart(ctx)
	}
}
