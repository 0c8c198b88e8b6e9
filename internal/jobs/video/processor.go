// Package video runs generation jobs from the durable video_job table against
// a rate-limited external service.
package video

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
	"gorm.io/datatypes"

	jobrepo "github.com/yungbote/avatarworld/internal/data/repos/jobs"
	types "github.com/yungbote/avatarworld/internal/domain/jobs"
	"github.com/yungbote/avatarworld/internal/notify"
	"github.com/yungbote/avatarworld/internal/pkg/dbctx"
	apperr "github.com/yungbote/avatarworld/internal/pkg/errors"
	"github.com/yungbote/avatarworld/internal/pkg/opresult"
	"github.com/yungbote/avatarworld/internal/platform/ctxutil"
	"github.com/yungbote/avatarworld/internal/platform/httpx"
	"github.com/yungbote/avatarworld/internal/platform/logger"
	"github.com/yungbote/avatarworld/internal/ratelimit"
)

var tracer = otel.Tracer("github.com/yungbote/avatarworld/internal/jobs/video")

// Generator does the actual work for a claimed job. The returned value is
// stored as the job result.
type Generator interface {
	Generate(ctx context.Context, job *types.VideoJob) (any, error)
}

type GeneratorFunc func(ctx context.Context, job *types.VideoJob) (any, error)

func (f GeneratorFunc) Generate(ctx context.Context, job *types.VideoJob) (any, error) {
	return f(ctx, job)
}

type Config struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	MaxAttempts    int           `yaml:"max_attempts"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	BackoffCap     time.Duration `yaml:"backoff_cap"`
	Lease          time.Duration `yaml:"lease"`
	RateLimitDefer time.Duration `yaml:"rate_limit_defer"`
	Resource       string        `yaml:"resource"`
}

func DefaultConfig() Config {
	return Config{
		PollInterval:   15 * time.Second,
		MaxAttempts:    3,
		MaxConcurrent:  1,
		BackoffBase:    time.Minute,
		BackoffCap:     15 * time.Minute,
		Lease:          10 * time.Minute,
		RateLimitDefer: time.Minute,
		Resource:       "video",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = d.BackoffCap
	}
	if c.Lease <= 0 {
		c.Lease = d.Lease
	}
	if c.RateLimitDefer <= 0 {
		c.RateLimitDefer = d.RateLimitDefer
	}
	if strings.TrimSpace(c.Resource) == "" {
		c.Resource = d.Resource
	}
	return c
}

// Backoff is the retry delay after the given number of failed attempts:
// base*attempts, never above ceiling.
func Backoff(base time.Duration, attempts int, ceiling time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := base * time.Duration(attempts)
	if d > ceiling || d < 0 {
		return ceiling
	}
	return d
}

type JobSpec struct {
	Type   string `json:"type"`
	Prompt string `json:"prompt"`
	Inputs any    `json:"inputs,omitempty"`
	Config any    `json:"config,omitempty"`
	// Notify is the destination told about the outcome, e.g. a channel id.
	Notify string `json:"notify,omitempty"`
}

type Option func(*Processor)

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

type Processor struct {
	log      *logger.Logger
	repo     jobrepo.VideoJobRepo
	limiter  ratelimit.Limiter
	notifier notify.Notifier
	gen      Generator
	cfg      Config
	now      func() time.Time

	sem     *semaphore.Weighted
	running atomic.Bool
	closing atomic.Bool
	wg      sync.WaitGroup

	runCtx    context.Context
	cancelRun context.CancelFunc
}

func NewProcessor(
	baseLog *logger.Logger,
	repo jobrepo.VideoJobRepo,
	limiter ratelimit.Limiter,
	notifier notify.Notifier,
	gen Generator,
	cfg Config,
	opts ...Option,
) *Processor {
	cfg = cfg.withDefaults()
	runCtx, cancel := context.WithCancel(context.Background())
	p := &Processor{
		log:       baseLog.With("component", "VideoJobProcessor"),
		repo:      repo,
		limiter:   limiter,
		notifier:  notifier,
		gen:       gen,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		runCtx:    runCtx,
		cancelRun: cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) Config() Config { return p.cfg }

// Enqueue stores new jobs as queued and runnable now.
func (p *Processor) Enqueue(ctx context.Context, specs ...JobSpec) opresult.Result[[]*types.VideoJob] {
	rows := make([]*types.VideoJob, 0, len(specs))
	for _, s := range specs {
		typ := strings.TrimSpace(s.Type)
		if typ == "" {
			typ = "video"
		}
		inputs, err := toJSON(s.Inputs)
		if err != nil {
			return opresult.Result[[]*types.VideoJob]{Err: fmt.Errorf("%w: encode inputs: %w", apperr.ErrInvalidArgument, err)}
		}
		conf, err := toJSON(s.Config)
		if err != nil {
			return opresult.Result[[]*types.VideoJob]{Err: fmt.Errorf("%w: encode config: %w", apperr.ErrInvalidArgument, err)}
		}
		rows = append(rows, &types.VideoJob{
			Type:   typ,
			Prompt: s.Prompt,
			Inputs: inputs,
			Config: conf,
			Notify: s.Notify,
		})
	}
	created, err := p.repo.Create(dbctx.New(ctx), rows)
	if err != nil {
		p.log.Warn("Enqueue video jobs failed", "count", len(rows), "error", err)
		return opresult.Degrade[[]*types.VideoJob]("enqueue video jobs", err)
	}
	for _, j := range created {
		p.log.Info("Video job queued", "job_id", j.ID, "type", j.Type)
	}
	return opresult.OK(created)
}

func (p *Processor) Get(ctx context.Context, id uuid.UUID) opresult.Result[*types.VideoJob] {
	job, err := p.repo.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return opresult.Degrade[*types.VideoJob]("get video job", err)
	}
	return opresult.OK(job)
}

func (p *Processor) Stats(ctx context.Context) opresult.Result[map[types.Status]int64] {
	counts, err := p.repo.CountByStatus(dbctx.New(ctx))
	if err != nil {
		return opresult.Degrade[map[types.Status]int64]("count video jobs", err)
	}
	return opresult.OK(counts)
}

// Tick claims runnable jobs until the concurrency ceiling is reached and
// dispatches each one without waiting for it. It returns how many jobs were
// claimed. A Tick that overlaps a running one returns 0 immediately.
func (p *Processor) Tick(ctx context.Context) (int, error) {
	if !p.running.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer p.running.Store(false)

	claimed := 0
	for {
		if ctx.Err() != nil || p.closing.Load() {
			return claimed, nil
		}
		if !p.sem.TryAcquire(1) {
			return claimed, nil
		}
		job, err := p.repo.ClaimNextRunnable(dbctx.New(ctx), p.cfg.Lease)
		if err != nil {
			p.sem.Release(1)
			p.log.Warn("ClaimNextRunnable failed", "error", err)
			return claimed, opresult.Degrade[int]("claim video job", err).Err
		}
		if job == nil {
			p.sem.Release(1)
			return claimed, nil
		}
		claimed++
		p.wg.Add(1)
		go p.execute(job)
	}
}

// Shutdown stops claiming and waits for in-flight jobs. If ctx ends first the
// remaining jobs are cancelled; their leases expire and another worker
// reclaims them.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.closing.Store(true)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancelRun()
		return nil
	case <-ctx.Done():
		p.cancelRun()
		<-done
		return ctx.Err()
	}
}

func (p *Processor) execute(job *types.VideoJob) {
	defer p.wg.Done()
	defer p.sem.Release(1)

	ctx, span := tracer.Start(p.runCtx, "video.execute")
	span.SetAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("job.type", job.Type),
		attribute.Int("job.attempts", job.Attempts),
	)
	defer span.End()

	ctx = ctxutil.WithTraceData(ctx, &ctxutil.TraceData{TraceID: job.ID.String(), WorkerID: "video"})
	log := p.log.With("job_id", job.ID, "type", job.Type, "attempts", job.Attempts)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Video job panic", "panic", r)
			span.SetStatus(codes.Error, "panic")
			p.fail(ctx, log, job, fmt.Errorf("panic: %v", r))
		}
	}()

	allowed, err := p.limiter.Allow(ctx, p.cfg.Resource)
	if err != nil {
		log.Warn("Rate limiter unavailable, deferring", "error", err)
	}
	if err != nil || !allowed {
		p.deferJob(ctx, log, job, p.cfg.RateLimitDefer)
		span.SetAttributes(attribute.Bool("job.deferred", true))
		return
	}

	result, runErr := p.generate(ctx, job)

	if wait, limited := httpx.RateLimited(runErr); limited {
		if wait <= 0 {
			wait = p.cfg.RateLimitDefer
		}
		log.Warn("Generator rate limited, deferring", "retry_after", wait)
		p.deferJob(ctx, log, job, wait)
		span.SetAttributes(attribute.Bool("job.deferred", true))
		return
	}
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		p.fail(ctx, log, job, runErr)
		return
	}
	p.succeed(ctx, log, job, result)
}

// deferJob puts a rate-limited job back without spending an attempt.
func (p *Processor) deferJob(ctx context.Context, log *logger.Logger, job *types.VideoJob, wait time.Duration) {
	runAt := p.now().Add(wait)
	ok, err := p.repo.UpdateFieldsIfClaimed(dbctx.New(ctx), job.ID, job.ClaimID, map[string]interface{}{
		"status":       types.StatusQueued,
		"next_run_at":  runAt,
		"heartbeat_at": nil,
		"claim_id":     "",
	})
	if err != nil {
		log.Warn("Defer video job failed", "error", err)
		return
	}
	if ok {
		log.Info("Video job deferred by rate limit", "next_run_at", runAt)
	}
}

func (p *Processor) succeed(ctx context.Context, log *logger.Logger, job *types.VideoJob, result any) {
	raw, err := toJSON(result)
	if err != nil {
		p.fail(ctx, log, job, fmt.Errorf("encode result: %w", err))
		return
	}
	ok, err := p.repo.UpdateFieldsIfClaimed(dbctx.New(ctx), job.ID, job.ClaimID, map[string]interface{}{
		"status":       types.StatusDone,
		"result":       raw,
		"next_run_at":  nil,
		"heartbeat_at": nil,
		"claim_id":     "",
	})
	if err != nil {
		log.Warn("Mark video job done failed", "error", err)
		return
	}
	if !ok {
		log.Warn("Video job claim lost, result dropped")
		return
	}
	log.Info("Video job done")
	p.notify(ctx, log, job, notify.EventVideoReady, map[string]any{"job_id": job.ID, "result": raw})
}

func (p *Processor) fail(ctx context.Context, log *logger.Logger, job *types.VideoJob, cause error) {
	now := p.now()
	attempts := job.Attempts + 1
	updates := map[string]interface{}{
		"attempts":      attempts,
		"last_error":    cause.Error(),
		"last_error_at": now,
		"heartbeat_at":  nil,
		"claim_id":      "",
	}
	terminal := attempts >= p.cfg.MaxAttempts
	if terminal {
		updates["status"] = types.StatusFailed
		updates["next_run_at"] = nil
	} else {
		updates["status"] = types.StatusQueued
		updates["next_run_at"] = now.Add(Backoff(p.cfg.BackoffBase, attempts, p.cfg.BackoffCap))
	}
	ok, err := p.repo.UpdateFieldsIfClaimed(dbctx.New(ctx), job.ID, job.ClaimID, updates)
	if err != nil {
		log.Warn("Record video job failure failed", "error", err)
		return
	}
	if !ok {
		log.Warn("Video job claim lost, failure dropped", "error", cause)
		return
	}
	if terminal {
		log.Warn("Video job failed permanently", "attempts", attempts, "error", cause)
		p.notify(ctx, log, job, notify.EventVideoFailed, map[string]any{"job_id": job.ID, "error": cause.Error()})
		return
	}
	log.Info("Video job requeued", "attempts", attempts, "next_run_at", updates["next_run_at"], "error", cause)
}

func (p *Processor) notify(ctx context.Context, log *logger.Logger, job *types.VideoJob, ev notify.Event, data any) {
	if p.notifier == nil || job.Notify == "" {
		return
	}
	if err := p.notifier.Notify(ctx, notify.Message{Destination: job.Notify, Event: ev, Data: data}); err != nil {
		log.Warn("Notify failed", "destination", job.Notify, "event", ev, "error", err)
	}
}

func (p *Processor) generate(ctx context.Context, job *types.VideoJob) (any, error) {
	stop := p.heartbeat(ctx, job)
	defer stop()
	return p.gen.Generate(ctx, job)
}

// heartbeat keeps the lease alive while the generator runs. It stops once the
// claim is lost; the final write is then rejected as well.
func (p *Processor) heartbeat(ctx context.Context, job *types.VideoJob) func() {
	every := p.cfg.Lease / 3
	if every < time.Second {
		every = time.Second
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				ok, err := p.repo.Heartbeat(dbctx.New(ctx), job.ID, job.ClaimID, p.cfg.Lease)
				if err != nil {
					p.log.Warn("Heartbeat failed", "job_id", job.ID, "error", err)
					continue
				}
				if !ok {
					p.log.Warn("Video job lease lost", "job_id", job.ID)
					return
				}
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

func toJSON(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case datatypes.JSON:
		return t, nil
	case json.RawMessage:
		return datatypes.JSON(t), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
