package chat

import "time"

// ChannelActivity is the activity ledger row for one channel. It is bumped
// on every inbound message and read by recency.
type ChannelActivity struct {
	ChannelID      string    `gorm:"column:channel_id;size:128;primaryKey" json:"channel_id"`
	GuildID        string    `gorm:"column:guild_id;size:128;index" json:"guild_id,omitempty"`
	LastActivityAt time.Time `gorm:"column:last_activity_at;not null;index" json:"last_activity_at"`
}

func (ChannelActivity) TableName() string { return "channel_activity" }
