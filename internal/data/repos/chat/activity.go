package chat

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/avatarworld/internal/domain/chat"
	"github.com/yungbote/avatarworld/internal/pkg/dbctx"
	"github.com/yungbote/avatarworld/internal/platform/logger"
)

type ActivityRepo interface {
	Touch(dbc dbctx.Context, channelID, guildID string, at time.Time) error
	ListActiveSince(dbc dbctx.Context, since time.Time, limit int) ([]*types.ChannelActivity, error)
}

type activityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActivityRepo(db *gorm.DB, baseLog *logger.Logger) ActivityRepo {
	return &activityRepo{db: db, log: baseLog.With("repo", "ActivityRepo")}
}

// latestActivity keeps the newer timestamp so an out-of-order or backfilled
// message never moves a channel's activity backwards.
const latestActivity = "CASE WHEN excluded.last_activity_at > channel_activity.last_activity_at " +
	"THEN excluded.last_activity_at ELSE channel_activity.last_activity_at END"

func (r *activityRepo) Touch(dbc dbctx.Context, channelID, guildID string, at time.Time) error {
	if channelID == "" {
		return nil
	}
	row := &types.ChannelActivity{ChannelID: channelID, GuildID: guildID, LastActivityAt: at.UTC()}
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "channel_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"guild_id":         gorm.Expr("excluded.guild_id"),
				"last_activity_at": gorm.Expr(latestActivity),
			}),
		}).
		Create(row).Error
}

// ListActiveSince returns channels active at or after since, most recent first.
func (r *activityRepo) ListActiveSince(dbc dbctx.Context, since time.Time, limit int) ([]*types.ChannelActivity, error) {
	var out []*types.ChannelActivity
	q := dbc.DB(r.db).
		Where("last_activity_at >= ?", since.UTC()).
		Order("last_activity_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
