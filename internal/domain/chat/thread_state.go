package chat

import (
	"time"

	"gorm.io/datatypes"
)

// ThreadState is a cached, derived snapshot of recent activity in a channel.
// It is a read optimization and never authoritative.
type ThreadState struct {
	ChannelID         string                             `gorm:"column:channel_id;size:128;primaryKey" json:"channel_id"`
	GuildID           string                             `gorm:"column:guild_id;size:128" json:"guild_id,omitempty"`
	LastActivityTs    time.Time                          `gorm:"column:last_activity_ts;index" json:"last_activity_ts"`
	LastMessageID     string                             `gorm:"column:last_message_id;size:128" json:"last_message_id,omitempty"`
	Participants      datatypes.JSONType[map[string]int] `gorm:"column:participants" json:"participants"`
	ParticipantsCount int                                `gorm:"column:participants_count;not null;default:0" json:"participants_count"`
	RecentAuthorIDs   datatypes.JSONSlice[string]        `gorm:"column:recent_author_ids" json:"recent_author_ids"`
	RecentAuthors     datatypes.JSONSlice[string]        `gorm:"column:recent_authors" json:"recent_authors"`
	UpdatedAt         time.Time                          `gorm:"column:updated_at;not null;index" json:"updated_at"`
	CreatedAt         time.Time                          `gorm:"column:created_at;not null" json:"created_at"`
}

func (ThreadState) TableName() string { return "thread_state" }
