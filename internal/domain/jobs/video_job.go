package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// VideoJob is a background generation request executed against a
// rate-limited external service.
type VideoJob struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Type   string    `gorm:"column:type;size:64;not null;index" json:"type"`
	Status Status    `gorm:"column:status;size:16;not null;index:idx_video_job_runnable,priority:1" json:"status"`

	// NextRunAt is the earliest time the job may be claimed. While running it
	// doubles as the lease deadline; nil once the job is terminal.
	NextRunAt   *time.Time `gorm:"column:next_run_at;index:idx_video_job_runnable,priority:2" json:"next_run_at,omitempty"`
	HeartbeatAt *time.Time `gorm:"column:heartbeat_at" json:"heartbeat_at,omitempty"`
	// ClaimID identifies the claim that holds the lease. Writes from an
	// earlier claim of the same job no longer match.
	ClaimID  string `gorm:"column:claim_id;size:64" json:"claim_id,omitempty"`
	Attempts int    `gorm:"column:attempts;not null;default:0" json:"attempts"`

	Prompt string         `gorm:"column:prompt;type:text" json:"prompt"`
	Inputs datatypes.JSON `gorm:"column:inputs" json:"inputs,omitempty"`
	Config datatypes.JSON `gorm:"column:config" json:"config,omitempty"`
	Result datatypes.JSON `gorm:"column:result" json:"result,omitempty"`
	Notify string         `gorm:"column:notify;size:256" json:"notify,omitempty"`

	LastError   string     `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	LastErrorAt *time.Time `gorm:"column:last_error_at" json:"last_error_at,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (VideoJob) TableName() string { return "video_job" }

func (j *VideoJob) IsTerminal() bool {
	return j.Status == StatusDone || j.Status == StatusFailed
}
