package chat

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/avatarworld/internal/domain/chat"
	"github.com/yungbote/avatarworld/internal/pkg/dbctx"
	"github.com/yungbote/avatarworld/internal/platform/logger"
)

type ThreadStateRepo interface {
	Get(dbc dbctx.Context, channelID string) (*types.ThreadState, error)
	Upsert(dbc dbctx.Context, state *types.ThreadState) error
}

type threadStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewThreadStateRepo(db *gorm.DB, baseLog *logger.Logger) ThreadStateRepo {
	return &threadStateRepo{db: db, log: baseLog.With("repo", "ThreadStateRepo")}
}

func (r *threadStateRepo) Get(dbc dbctx.Context, channelID string) (*types.ThreadState, error) {
	var out types.ThreadState
	if err := dbc.DB(r.db).Where("channel_id = ?", channelID).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ChannelID == "" {
		return nil, nil
	}
	return &out, nil
}

// Upsert writes state keyed by channel. created_at is kept from the first insert.
func (r *threadStateRepo) Upsert(dbc dbctx.Context, state *types.ThreadState) error {
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "channel_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"guild_id",
				"last_activity_ts",
				"last_message_id",
				"participants",
				"participants_count",
				"recent_author_ids",
				"recent_authors",
				"updated_at",
			}),
		}).
		Create(state).Error
}
