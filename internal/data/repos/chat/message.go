package chat

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/avatarworld/internal/domain/chat"
	"github.com/yungbote/avatarworld/internal/pkg/dbctx"
	"github.com/yungbote/avatarworld/internal/platform/logger"
)

type MessageRepo interface {
	Append(dbc dbctx.Context, msgs []*types.ChannelMessage) error
	ListRecent(dbc dbctx.Context, channelID string, limit int) ([]*types.ChannelMessage, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: baseLog.With("repo", "MessageRepo")}
}

func (r *messageRepo) Append(dbc dbctx.Context, msgs []*types.ChannelMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	for _, m := range msgs {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		m.Timestamp = m.Timestamp.UTC()
	}
	return dbc.DB(r.db).Create(&msgs).Error
}

// ListRecent returns up to limit messages for channelID, newest first.
func (r *messageRepo) ListRecent(dbc dbctx.Context, channelID string, limit int) ([]*types.ChannelMessage, error) {
	var out []*types.ChannelMessage
	if channelID == "" {
		return out, nil
	}
	q := dbc.DB(r.db).
		Where("channel_id = ?", channelID).
		Order("timestamp DESC").
		Order("message_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
