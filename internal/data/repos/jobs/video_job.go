package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/avatarworld/internal/data/db"
	types "github.com/yungbote/avatarworld/internal/domain/jobs"
	"github.com/yungbote/avatarworld/internal/pkg/dbctx"
	"github.com/yungbote/avatarworld/internal/platform/logger"
)

type VideoJobRepo interface {
	Create(dbc dbctx.Context, jobs []*types.VideoJob) ([]*types.VideoJob, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.VideoJob, error)
	ClaimNextRunnable(dbc dbctx.Context, lease time.Duration) (*types.VideoJob, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID, claimID string, lease time.Duration) (bool, error)
	UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, status types.Status, updates map[string]interface{}) (bool, error)
	UpdateFieldsIfClaimed(dbc dbctx.Context, id uuid.UUID, claimID string, updates map[string]interface{}) (bool, error)
	CountByStatus(dbc dbctx.Context) (map[types.Status]int64, error)
}

type videoJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

func NewVideoJobRepo(db *gorm.DB, baseLog *logger.Logger) VideoJobRepo {
	return NewVideoJobRepoWithClock(db, baseLog, func() time.Time { return time.Now().UTC() })
}

func NewVideoJobRepoWithClock(db *gorm.DB, baseLog *logger.Logger, now func() time.Time) VideoJobRepo {
	return &videoJobRepo{
		db:  db,
		log: baseLog.With("repo", "VideoJobRepo"),
		now: now,
	}
}

// Create inserts jobs as queued and immediately runnable.
func (r *videoJobRepo) Create(dbc dbctx.Context, jobs []*types.VideoJob) ([]*types.VideoJob, error) {
	if len(jobs) == 0 {
		return []*types.VideoJob{}, nil
	}
	now := r.now()
	for _, j := range jobs {
		if j.ID == uuid.Nil {
			j.ID = uuid.New()
		}
		j.Status = types.StatusQueued
		j.Attempts = 0
		runAt := now
		j.NextRunAt = &runAt
		j.CreatedAt = now
		j.UpdatedAt = now
	}
	if err := dbc.DB(r.db).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *videoJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.VideoJob, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.VideoJob
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&job).Error; err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

// ClaimNextRunnable picks the earliest-due job that is queued, or running with
// an expired lease, and marks it running with a fresh lease and claim id. A
// running job whose worker died is therefore reclaimed once next_run_at passes.
func (r *videoJobRepo) ClaimNextRunnable(dbc dbctx.Context, lease time.Duration) (*types.VideoJob, error) {
	job, err := r.claimOnce(dbc, lease)
	if db.IsRetryable(err) {
		r.log.Debug("Claim conflict, retrying once", "error", err)
		job, err = r.claimOnce(dbc, lease)
	}
	return job, err
}

func (r *videoJobRepo) claimOnce(dbc dbctx.Context, lease time.Duration) (*types.VideoJob, error) {
	var claimed *types.VideoJob
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		now := r.now()
		var job types.VideoJob
		if err := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status IN ? AND next_run_at IS NOT NULL AND next_run_at <= ?",
				[]types.Status{types.StatusQueued, types.StatusRunning}, now).
			Order("next_run_at ASC").
			Order("created_at ASC").
			Limit(1).
			Find(&job).Error; err != nil {
			return err
		}
		if job.ID == uuid.Nil {
			return nil
		}

		deadline := now.Add(lease)
		claimID := uuid.NewString()
		res := txx.Model(&types.VideoJob{}).
			Where("id = ? AND status IN ? AND next_run_at <= ?",
				job.ID, []types.Status{types.StatusQueued, types.StatusRunning}, now).
			Updates(map[string]interface{}{
				"status":       types.StatusRunning,
				"claim_id":     claimID,
				"heartbeat_at": now,
				"next_run_at":  deadline,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		job.Status = types.StatusRunning
		job.ClaimID = claimID
		job.HeartbeatAt = &now
		job.NextRunAt = &deadline
		job.UpdatedAt = now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Heartbeat extends the lease of a running job. It reports false once the
// claim has been lost to another worker or the job left running.
func (r *videoJobRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID, claimID string, lease time.Duration) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	now := r.now()
	res := dbc.DB(r.db).
		Model(&types.VideoJob{}).
		Where("id = ? AND status = ? AND claim_id = ?", id, types.StatusRunning, claimID).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"next_run_at":  now.Add(lease),
			"updated_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateFieldsIfStatus applies updates only while the job is still in status.
func (r *videoJobRepo) UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, status types.Status, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = r.now()
	}
	res := dbc.DB(r.db).
		Model(&types.VideoJob{}).
		Where("id = ? AND status = ?", id, status).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateFieldsIfClaimed applies updates only while the job is running under
// claimID. A worker whose lease was reclaimed gets false and must drop its result.
func (r *videoJobRepo) UpdateFieldsIfClaimed(dbc dbctx.Context, id uuid.UUID, claimID string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil || claimID == "" {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = r.now()
	}
	res := dbc.DB(r.db).
		Model(&types.VideoJob{}).
		Where("id = ? AND status = ? AND claim_id = ?", id, types.StatusRunning, claimID).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *videoJobRepo) CountByStatus(dbc dbctx.Context) (map[types.Status]int64, error) {
	var rows []struct {
		Status types.Status
		N      int64
	}
	if err := dbc.DB(r.db).
		Model(&types.VideoJob{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[types.Status]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}
