package conversation

import (
	"sort"
	"time"
)

type Mode string

const (
	ModeMention Mode = "mention"
	ModeOther   Mode = "other"
)

func (m Mode) Valid() bool {
	return m == ModeMention || m == ModeOther
}

const (
	EndReasonExpired   = "expired"
	EndReasonTurnLimit = "turn_limit_reached"
	EndReasonManual    = "manual"
)

// Thread is a snapshot of a conversation thread. Mutating it has no effect on
// the tracker.
type Thread struct {
	ID             string          `json:"id"`
	ChannelID      string          `json:"channel_id"`
	Participants   []ParticipantID `json:"participants"`
	StartedAt      time.Time       `json:"started_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	MaxTurns       int             `json:"max_turns"`
	TurnCount      int             `json:"turn_count"`
	Mode           Mode            `json:"mode"`
	Proactive      bool            `json:"proactive"`
	LastSpeakerID  ParticipantID   `json:"last_speaker_id,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	EndReason      string          `json:"end_reason,omitempty"`
	EndedAt        *time.Time      `json:"ended_at,omitempty"`
}

// Has reports whether p takes part in the thread.
func (t Thread) Has(p ParticipantID) bool {
	for _, q := range t.Participants {
		if q == p {
			return true
		}
	}
	return false
}

type thread struct {
	id             string
	channelID      string
	participants   map[ParticipantID]struct{}
	order          []ParticipantID
	startedAt      time.Time
	lastActivityAt time.Time
	expiresAt      *time.Time
	maxTurns       int
	turnCount      int
	mode           Mode
	proactive      bool
	lastSpeakerID  ParticipantID
	metadata       map[string]any
	endReason      string
	endedAt        *time.Time
}

// active: turns remain and the expiry, if any, is still ahead.
func (t *thread) active(now time.Time) bool {
	if t.turnCount >= t.maxTurns {
		return false
	}
	return t.expiresAt == nil || now.Before(*t.expiresAt)
}

// inactiveReason assumes !active(now).
func (t *thread) inactiveReason() string {
	if t.turnCount >= t.maxTurns {
		return EndReasonTurnLimit
	}
	return EndReasonExpired
}

func (t *thread) sameParticipants(ids []ParticipantID) bool {
	if len(ids) != len(t.participants) {
		return false
	}
	for _, id := range ids {
		if _, ok := t.participants[id]; !ok {
			return false
		}
	}
	return true
}

func (t *thread) snapshot() Thread {
	out := Thread{
		ID:             t.id,
		ChannelID:      t.channelID,
		Participants:   append([]ParticipantID(nil), t.order...),
		StartedAt:      t.startedAt,
		LastActivityAt: t.lastActivityAt,
		MaxTurns:       t.maxTurns,
		TurnCount:      t.turnCount,
		Mode:           t.mode,
		Proactive:      t.proactive,
		LastSpeakerID:  t.lastSpeakerID,
		EndReason:      t.endReason,
	}
	if t.expiresAt != nil {
		v := *t.expiresAt
		out.ExpiresAt = &v
	}
	if t.endedAt != nil {
		v := *t.endedAt
		out.EndedAt = &v
	}
	if len(t.metadata) > 0 {
		out.Metadata = make(map[string]any, len(t.metadata))
		for k, v := range t.metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

func sortedParticipants(ids []ParticipantID) []ParticipantID {
	out := append([]ParticipantID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
