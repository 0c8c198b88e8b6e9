package chat

import (
	"time"

	"github.com/google/uuid"
)

// ChannelMessage is an append-only record of a message seen in a channel.
type ChannelMessage struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MessageID      string    `gorm:"column:message_id;size:128;not null;index" json:"message_id"`
	ChannelID      string    `gorm:"column:channel_id;size:128;not null;index:idx_channel_message_recent,priority:1" json:"channel_id"`
	GuildID        string    `gorm:"column:guild_id;size:128" json:"guild_id,omitempty"`
	AuthorID       string    `gorm:"column:author_id;size:128;not null" json:"author_id"`
	AuthorUsername string    `gorm:"column:author_username;size:256" json:"author_username,omitempty"`
	Timestamp      time.Time `gorm:"column:timestamp;not null;index:idx_channel_message_recent,priority:2" json:"timestamp"`
}

func (ChannelMessage) TableName() string { return "channel_message" }
