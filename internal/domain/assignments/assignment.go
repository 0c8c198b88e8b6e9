package assignments

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Type string

const (
	TypeRespond Type = "respond"
	TypeOther   Type = "other"
)

func (t Type) Valid() bool {
	return t == TypeRespond || t == TypeOther
}

// ParseType reads an assignment type, defaulting an empty value to respond.
func ParseType(s string) (Type, error) {
	t := Type(strings.TrimSpace(s))
	if t == "" {
		return TypeRespond, nil
	}
	if !t.Valid() {
		return "", fmt.Errorf("unknown assignment type %q (want %s or %s)", s, TypeRespond, TypeOther)
	}
	return t, nil
}

type Status string

const (
	StatusPending Status = "pending"
	StatusClaimed Status = "claimed"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// ActiveStatuses are the non-terminal states covered by the dedupe invariant.
var ActiveStatuses = []Status{StatusPending, StatusClaimed}

// TerminalStatuses never transition again.
var TerminalStatuses = []Status{StatusDone, StatusFailed}

// Assignment is a unit of planned work: act as AvatarID in ChannelID.
type Assignment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Type      Type      `gorm:"column:type;size:32;not null;index:idx_assignment_key,priority:1" json:"type"`
	ChannelID string    `gorm:"column:channel_id;size:128;not null;index:idx_assignment_key,priority:2" json:"channel_id"`
	AvatarID  string    `gorm:"column:avatar_id;size:128;not null;index:idx_assignment_key,priority:3" json:"avatar_id"`
	Priority  int       `gorm:"column:priority;not null;default:0;index:idx_assignment_claim,priority:2" json:"priority"`
	Status    Status    `gorm:"column:status;size:16;not null;index:idx_assignment_claim,priority:1" json:"status"`
	WorkerID  string    `gorm:"column:worker_id;size:128" json:"worker_id,omitempty"`

	Payload datatypes.JSON `gorm:"column:payload" json:"payload,omitempty"`
	Result  datatypes.JSON `gorm:"column:result" json:"result,omitempty"`
	Error   string         `gorm:"column:error;type:text" json:"error,omitempty"`

	ClaimedAt *time.Time `gorm:"column:claimed_at" json:"claimed_at,omitempty"`
	CreatedAt time.Time  `gorm:"column:created_at;not null;index:idx_assignment_claim,priority:3" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Assignment) TableName() string { return "assignment" }

// DedupeKey identifies the (type, channel, avatar) triple at most one active
// assignment may hold.
func (a *Assignment) DedupeKey() Key {
	return Key{Type: a.Type, ChannelID: a.ChannelID, AvatarID: a.AvatarID}
}

func (a *Assignment) IsTerminal() bool {
	return a.Status == StatusDone || a.Status == StatusFailed
}

type Key struct {
	Type      Type
	ChannelID string
	AvatarID  string
}

func (k Key) String() string {
	return string(k.Type) + "|" + k.ChannelID + "|" + k.AvatarID
}
