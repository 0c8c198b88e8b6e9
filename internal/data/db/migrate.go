package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/avatarworld/internal/domain/assignments"
	"github.com/yungbote/avatarworld/internal/domain/chat"
	"github.com/yungbote/avatarworld/internal/domain/jobs"
)

// activeAssignmentIndex allows at most one pending or claimed assignment per
// (type, channel_id, avatar_id). Partial indexes work on postgres and sqlite.
const activeAssignmentIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_assignment_active_key
	ON assignment (type, channel_id, avatar_id)
	WHERE status IN ('pending', 'claimed')`

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		// Work queue
		&assignments.Assignment{},

		// Background jobs
		&jobs.VideoJob{},

		// Channel ledgers + derived state
		&chat.ChannelActivity{},
		&chat.ChannelMessage{},
		&chat.ThreadState{},
	); err != nil {
		return err
	}
	return db.Exec(activeAssignmentIndex).Error
}
