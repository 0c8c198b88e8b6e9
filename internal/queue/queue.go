// Package queue is the durable assignment work queue.
//
// Every operation is best-effort: store failures are logged and reported as a
// degraded opresult.Result carrying the neutral value, so planner and worker
// loops keep running and simply retry on their next tick.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	repos "github.com/yungbote/avatarworld/internal/data/repos/assignments"
	types "github.com/yungbote/avatarworld/internal/domain/assignments"
	"github.com/yungbote/avatarworld/internal/pkg/dbctx"
	"github.com/yungbote/avatarworld/internal/pkg/opresult"
	"github.com/yungbote/avatarworld/internal/platform/ctxutil"
	"github.com/yungbote/avatarworld/internal/platform/logger"
)

var tracer = otel.Tracer("github.com/yungbote/avatarworld/internal/queue")

type Config struct {
	DedupeTTL time.Duration `yaml:"dedupe_ttl"`
}

func DefaultConfig() Config {
	return Config{DedupeTTL: 10 * time.Second}
}

type Queue struct {
	repo   repos.AssignmentRepo
	log    *logger.Logger
	recent *recentKeys
	now    func() time.Time
}

type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func New(repo repos.AssignmentRepo, baseLog *logger.Logger, cfg Config, opts ...Option) *Queue {
	q := &Queue{
		repo:   repo,
		log:    baseLog.With("component", "WorkQueue"),
		recent: newRecentKeys(cfg.DedupeTTL),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue inserts items as pending without any dedupe.
func (q *Queue) Enqueue(ctx context.Context, items []*types.Assignment) opresult.Result[int] {
	ctx, span := tracer.Start(ctx, "queue.Enqueue")
	defer span.End()
	span.SetAttributes(attribute.Int("queue.items", len(items)))

	if len(items) == 0 {
		return opresult.OK(0)
	}
	n, err := q.repo.Create(dbctx.New(ctx), items)
	if err != nil {
		q.logWarn(ctx, "Enqueue failed", "items", len(items), "error", err)
		return opresult.Degrade[int]("enqueue", err)
	}
	return opresult.OK(n)
}

// EnqueueUnique inserts only items whose (type, channel, avatar) triple has no
// pending or claimed assignment. Duplicates inside items collapse to the first
// occurrence. If the existence query fails it falls back to Enqueue.
func (q *Queue) EnqueueUnique(ctx context.Context, items []*types.Assignment) opresult.Result[int] {
	ctx, span := tracer.Start(ctx, "queue.EnqueueUnique")
	defer span.End()

	now := q.now()
	candidates := make([]*types.Assignment, 0, len(items))
	keys := make([]types.Key, 0, len(items))
	inBatch := map[types.Key]bool{}
	for _, item := range items {
		if item == nil {
			continue
		}
		key := item.DedupeKey()
		if inBatch[key] || q.recent.has(key, now) {
			continue
		}
		inBatch[key] = true
		candidates = append(candidates, item)
		keys = append(keys, key)
	}
	span.SetAttributes(
		attribute.Int("queue.items", len(items)),
		attribute.Int("queue.candidates", len(candidates)),
	)
	if len(candidates) == 0 {
		return opresult.OK(0)
	}

	active, err := q.repo.FindActiveKeys(dbctx.New(ctx), keys)
	if err != nil {
		q.logWarn(ctx, "Dedupe query failed, enqueueing without dedupe", "candidates", len(candidates), "error", err)
		return q.Enqueue(ctx, candidates)
	}

	residual := make([]*types.Assignment, 0, len(candidates))
	residualKeys := make([]types.Key, 0, len(candidates))
	for _, item := range candidates {
		key := item.DedupeKey()
		if active[key] {
			continue
		}
		residual = append(residual, item)
		residualKeys = append(residualKeys, key)
	}
	if len(residual) == 0 {
		return opresult.OK(0)
	}

	res := q.Enqueue(ctx, residual)
	if !res.Degraded() {
		q.recent.add(residualKeys, now)
	}
	return res
}

// ClaimNext hands one pending assignment of the given types to workerID.
// A nil Value means nothing is pending (or the store was unavailable).
func (q *Queue) ClaimNext(ctx context.Context, workerID string, kinds []types.Type) opresult.Result[*types.Assignment] {
	ctx, span := tracer.Start(ctx, "queue.ClaimNext")
	defer span.End()
	span.SetAttributes(attribute.String("queue.worker_id", workerID))

	a, err := q.repo.ClaimNext(dbctx.New(ctx), workerID, kinds)
	if err != nil {
		q.logWarn(ctx, "ClaimNext failed", "worker_id", workerID, "error", err)
		return opresult.Degrade[*types.Assignment]("claim", err)
	}
	if a != nil {
		span.SetAttributes(attribute.String("queue.assignment_id", a.ID.String()))
	}
	return opresult.OK(a)
}

// Complete marks id done. Re-applying it, or applying it to a failed row, is a no-op.
func (q *Queue) Complete(ctx context.Context, id uuid.UUID, result any) opresult.Result[bool] {
	updates := map[string]interface{}{"status": types.StatusDone}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			q.log.Warn("Complete: result not serializable, storing without it", "assignment_id", id, "error", err)
		} else {
			updates["result"] = datatypes.JSON(raw)
		}
	}
	return q.finish(ctx, "complete", id, updates)
}

// Fail marks id failed with cause. Terminal rows are left untouched.
func (q *Queue) Fail(ctx context.Context, id uuid.UUID, cause error) opresult.Result[bool] {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return q.finish(ctx, "fail", id, map[string]interface{}{
		"status": types.StatusFailed,
		"error":  msg,
	})
}

func (q *Queue) finish(ctx context.Context, op string, id uuid.UUID, updates map[string]interface{}) opresult.Result[bool] {
	ctx, span := tracer.Start(ctx, "queue."+op)
	defer span.End()
	span.SetAttributes(attribute.String("queue.assignment_id", id.String()))

	updates["updated_at"] = q.now()
	changed, err := q.repo.UpdateFieldsUnlessStatus(dbctx.New(ctx), id, types.TerminalStatuses, updates)
	if err != nil {
		q.logWarn(ctx, "Terminal transition failed", "op", op, "assignment_id", id, "error", err)
		return opresult.Degrade[bool](op, err)
	}
	if !changed {
		q.log.Debug("Terminal transition was a no-op", "op", op, "assignment_id", id)
	}
	return opresult.OK(changed)
}

// Get returns the assignment or nil when it does not exist.
func (q *Queue) Get(ctx context.Context, id uuid.UUID) opresult.Result[*types.Assignment] {
	a, err := q.repo.GetByID(dbctx.New(ctx), id)
	if err != nil {
		q.logWarn(ctx, "Get failed", "assignment_id", id, "error", err)
		return opresult.Degrade[*types.Assignment]("get", err)
	}
	return opresult.OK(a)
}

// Stats counts assignments by status.
func (q *Queue) Stats(ctx context.Context) opresult.Result[map[types.Status]int64] {
	counts, err := q.repo.CountByStatus(dbctx.New(ctx))
	if err != nil {
		q.logWarn(ctx, "Stats failed", "error", err)
		return opresult.Degrade[map[types.Status]int64]("stats", err)
	}
	return opresult.OK(counts)
}

func (q *Queue) logWarn(ctx context.Context, msg string, kv ...interface{}) {
	q.log.Warn(msg, append(kv, ctxutil.LogFields(ctx)...)...)
}
