package assignments

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/avatarworld/internal/data/db"
	types "github.com/yungbote/avatarworld/internal/domain/assignments"
	"github.com/yungbote/avatarworld/internal/pkg/dbctx"
	"github.com/yungbote/avatarworld/internal/platform/logger"
)

// keysPerQuery bounds the OR-chain built by FindActiveKeys.
const keysPerQuery = 200

// claimRetries bounds both store-conflict retries and re-selects after a lost race.
const claimRetries = 3

type AssignmentRepo interface {
	Create(dbc dbctx.Context, items []*types.Assignment) (int, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Assignment, error)
	FindActiveKeys(dbc dbctx.Context, keys []types.Key) (map[types.Key]bool, error)
	ClaimNext(dbc dbctx.Context, workerID string, kinds []types.Type) (*types.Assignment, error)
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []types.Status, updates map[string]interface{}) (bool, error)
	CountByStatus(dbc dbctx.Context) (map[types.Status]int64, error)
	CountActiveForKey(dbc dbctx.Context, key types.Key) (int64, error)
}

type assignmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

func NewAssignmentRepo(db *gorm.DB, baseLog *logger.Logger) AssignmentRepo {
	return &assignmentRepo{
		db:  db,
		log: baseLog.With("repo", "AssignmentRepo"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts items as pending. IDs and timestamps are filled in when unset.
// An item whose key already has an active row is skipped by the unique index
// and not counted.
func (r *assignmentRepo) Create(dbc dbctx.Context, items []*types.Assignment) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	now := r.now()
	for _, a := range items {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.Status = types.StatusPending
		a.WorkerID = ""
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		a.UpdatedAt = now
	}
	res := dbc.DB(r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(&items)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (r *assignmentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Assignment, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.Assignment
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

// FindActiveKeys reports which of keys already have a pending or claimed row.
// Row-value IN lists are not portable to sqlite, so the match is an OR-chain.
func (r *assignmentRepo) FindActiveKeys(dbc dbctx.Context, keys []types.Key) (map[types.Key]bool, error) {
	found := map[types.Key]bool{}
	for start := 0; start < len(keys); start += keysPerQuery {
		end := start + keysPerQuery
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		conds := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*3)
		for _, k := range chunk {
			conds = append(conds, "(type = ? AND channel_id = ? AND avatar_id = ?)")
			args = append(args, k.Type, k.ChannelID, k.AvatarID)
		}

		var rows []types.Assignment
		err := dbc.DB(r.db).
			Model(&types.Assignment{}).
			Select("type", "channel_id", "avatar_id").
			Where("status IN ?", types.ActiveStatuses).
			Where(strings.Join(conds, " OR "), args...).
			Find(&rows).Error
		if err != nil {
			return nil, err
		}
		for i := range rows {
			found[rows[i].DedupeKey()] = true
		}
	}
	return found, nil
}

// ClaimNext moves the highest-priority, oldest pending assignment of one of
// kinds to claimed. The update is conditional on status still being pending,
// so concurrent claimers can never both win the same row. Lock conflicts
// reported by the store are retried.
func (r *assignmentRepo) ClaimNext(dbc dbctx.Context, workerID string, kinds []types.Type) (*types.Assignment, error) {
	var (
		claimed *types.Assignment
		err     error
	)
	for attempt := 0; attempt < claimRetries; attempt++ {
		claimed, err = r.claimOnce(dbc, workerID, kinds)
		if !db.IsRetryable(err) {
			break
		}
		r.log.Debug("Claim conflict, retrying", "worker_id", workerID, "attempt", attempt+1, "error", err)
	}
	return claimed, err
}

func (r *assignmentRepo) claimOnce(dbc dbctx.Context, workerID string, kinds []types.Type) (*types.Assignment, error) {
	var claimed *types.Assignment
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		for attempt := 0; attempt < claimRetries; attempt++ {
			var candidate types.Assignment
			q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
				Where("status = ?", types.StatusPending)
			if len(kinds) > 0 {
				q = q.Where("type IN ?", kinds)
			}
			if err := q.
				Order("priority DESC").
				Order("created_at ASC").
				Order("id ASC").
				Limit(1).
				Find(&candidate).Error; err != nil {
				return err
			}
			if candidate.ID == uuid.Nil {
				return nil
			}

			now := r.now()
			res := txx.Model(&types.Assignment{}).
				Where("id = ? AND status = ?", candidate.ID, types.StatusPending).
				Updates(map[string]interface{}{
					"status":     types.StatusClaimed,
					"worker_id":  workerID,
					"claimed_at": now,
					"updated_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				candidate.Status = types.StatusClaimed
				candidate.WorkerID = workerID
				candidate.ClaimedAt = &now
				candidate.UpdatedAt = now
				claimed = &candidate
				return nil
			}
			r.log.Debug("Lost claim race, reselecting", "assignment_id", candidate.ID, "worker_id", workerID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *assignmentRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []types.Status, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = r.now()
	}

	q := dbc.DB(r.db).Model(&types.Assignment{}).Where("id = ?", id)
	if len(disallowed) == 1 {
		q = q.Where("status <> ?", disallowed[0])
	} else if len(disallowed) > 1 {
		q = q.Where("status NOT IN ?", disallowed)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *assignmentRepo) CountByStatus(dbc dbctx.Context) (map[types.Status]int64, error) {
	var rows []struct {
		Status types.Status
		N      int64
	}
	err := dbc.DB(r.db).
		Model(&types.Assignment{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[types.Status]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}

func (r *assignmentRepo) CountActiveForKey(dbc dbctx.Context, key types.Key) (int64, error) {
	var n int64
	err := dbc.DB(r.db).
		Model(&types.Assignment{}).
		Where("type = ? AND channel_id = ? AND avatar_id = ? AND status IN ?", key.Type, key.ChannelID, key.AvatarID, types.ActiveStatuses).
		Count(&n).Error
	return n, err
}
