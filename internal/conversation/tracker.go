// Package conversation tracks short-lived, turn-bounded conversation threads
// per channel. State is process-local and rebuilt from scratch on restart.
package conversation

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperr "github.com/yungbote/avatarworld/internal/pkg/errors"
	"github.com/yungbote/avatarworld/internal/platform/logger"
)

// recentlyEndedCap bounds the diagnostics ring of ended threads.
const recentlyEndedCap = 100

type Config struct {
	DefaultTTL       time.Duration `yaml:"ttl"`
	DefaultMaxTurns  int           `yaml:"max_turns"`
	ExtendOnActivity bool          `yaml:"extend_on_activity"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`
}

func DefaultConfig() Config {
	return Config{
		DefaultTTL:       5 * time.Minute,
		DefaultMaxTurns:  10,
		ExtendOnActivity: true,
		CleanupInterval:  60 * time.Second,
	}
}

type StartOptions struct {
	// Duration overrides Config.DefaultTTL. Negative means the thread never
	// expires by time and ends only on its turn limit.
	Duration  time.Duration
	MaxTurns  int
	Mode      Mode
	Proactive bool
	ForceNew  bool
	Metadata  map[string]any
}

type Stats struct {
	Channels int `json:"channels"`
	Threads  int `json:"threads"`
}

// Tracker owns every conversation thread of the process. A single mutex
// serializes all operations, so each call is atomic to its caller.
type Tracker struct {
	mu       sync.Mutex
	cfg      Config
	log      *logger.Logger
	now      func() time.Time
	channels map[string][]*thread
	ended    []Thread
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(baseLog *logger.Logger, cfg Config, opts ...Option) *Tracker {
	if cfg.DefaultMaxTurns <= 0 {
		cfg.DefaultMaxTurns = DefaultConfig().DefaultMaxTurns
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultConfig().DefaultTTL
	}
	t := &Tracker{
		cfg:      cfg,
		log:      baseLog.With("component", "ConversationTracker"),
		now:      time.Now,
		channels: make(map[string][]*thread),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Config() Config { return t.cfg }

// StartThread opens a thread in channelID, or refreshes the expiry of an
// active thread with the same participant set and mode unless ForceNew is set.
func (t *Tracker) StartThread(channelID string, participants []any, opts StartOptions) (Thread, error) {
	if channelID == "" {
		return Thread{}, fmt.Errorf("start thread: empty channel id: %w", apperr.ErrInvalidArgument)
	}
	ids := normalizeAll(participants)
	if len(ids) == 0 {
		return Thread{}, fmt.Errorf("start thread: no resolvable participant in %d candidates: %w", len(participants), apperr.ErrInvalidArgument)
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeMention
	}
	if !mode.Valid() {
		return Thread{}, fmt.Errorf("start thread: unknown mode %q: %w", opts.Mode, apperr.ErrInvalidArgument)
	}
	duration := opts.Duration
	if duration == 0 {
		duration = t.cfg.DefaultTTL
	}
	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = t.cfg.DefaultMaxTurns
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()

	if !opts.ForceNew {
		for _, th := range t.channels[channelID] {
			if !th.active(now) || th.mode != mode || !th.sameParticipants(ids) {
				continue
			}
			th.expiresAt = expiry(now, duration)
			t.log.Debug("Refreshed existing thread", "channel_id", channelID, "thread_id", th.id)
			return th.snapshot(), nil
		}
	}

	set := make(map[ParticipantID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	th := &thread{
		id:             uuid.NewString(),
		channelID:      channelID,
		participants:   set,
		order:          sortedParticipants(ids),
		startedAt:      now,
		lastActivityAt: now,
		expiresAt:      expiry(now, duration),
		maxTurns:       maxTurns,
		mode:           mode,
		proactive:      opts.Proactive,
		metadata:       copyMetadata(opts.Metadata),
	}
	t.channels[channelID] = append(t.channels[channelID], th)
	t.log.Debug("Started thread",
		"channel_id", channelID,
		"thread_id", th.id,
		"participants", len(ids),
		"max_turns", maxTurns,
		"mode", mode,
	)
	return th.snapshot(), nil
}

// GetActiveThreads prunes every channel, then lists channelID's threads.
func (t *Tracker) GetActiveThreads(channelID string) []Thread {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(t.now())
	list := t.channels[channelID]
	out := make([]Thread, 0, len(list))
	for _, th := range list {
		out = append(out, th.snapshot())
	}
	return out
}

// GetThread returns the thread if it exists and is still active.
func (t *Tracker) GetThread(channelID, threadID string) (Thread, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	th := t.findLocked(channelID, threadID)
	if th == nil || !th.active(t.now()) {
		return Thread{}, false
	}
	return th.snapshot(), true
}

// IsInActiveThread returns the first active thread in channelID holding participant.
func (t *Tracker) IsInActiveThread(channelID string, participant any) (Thread, bool) {
	id, ok := NormalizeParticipant(participant)
	if !ok {
		return Thread{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if th := t.firstActiveWithLocked(channelID, id, t.now()); th != nil {
		return th.snapshot(), true
	}
	return Thread{}, false
}

// RecordTurn counts a turn by participant. With an empty threadID the first
// active thread holding participant is used. The thread is ended right away
// when the turn exhausts it; the returned snapshot then carries EndReason.
func (t *Tracker) RecordTurn(channelID string, participant any, threadID string) (Thread, error) {
	speaker, ok := NormalizeParticipant(participant)
	if !ok {
		return Thread{}, fmt.Errorf("record turn: unresolvable participant %v: %w", participant, apperr.ErrInvalidArgument)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()

	var th *thread
	if threadID != "" {
		th = t.findLocked(channelID, threadID)
	} else {
		th = t.firstActiveWithLocked(channelID, speaker, now)
	}
	if th == nil {
		return Thread{}, fmt.Errorf("record turn: channel %s thread %q: %w", channelID, threadID, apperr.ErrNotFound)
	}
	if !th.active(now) {
		t.endLocked(th, th.inactiveReason(), now)
		return Thread{}, fmt.Errorf("record turn: thread %s already ended: %w", th.id, apperr.ErrNotFound)
	}

	th.turnCount++
	th.lastActivityAt = now
	th.lastSpeakerID = speaker
	if t.cfg.ExtendOnActivity && th.expiresAt != nil {
		// Activity renews for half the default TTL so a busy thread cannot
		// keep itself alive at full length forever. It never shortens.
		renewed := now.Add(t.cfg.DefaultTTL / 2)
		if renewed.After(*th.expiresAt) {
			th.expiresAt = &renewed
		}
	}

	if !th.active(now) {
		t.endLocked(th, th.inactiveReason(), now)
	}
	return th.snapshot(), nil
}

// EndThread removes a thread, recording why. It reports false if no such thread exists.
func (t *Tracker) EndThread(channelID, threadID, reason string) (Thread, bool) {
	if reason == "" {
		reason = EndReasonManual
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	th := t.findLocked(channelID, threadID)
	if th == nil {
		return Thread{}, false
	}
	t.endLocked(th, reason, t.now())
	return th.snapshot(), true
}

// PruneExpired drops every inactive thread and any channel left empty. It
// returns the number of threads removed.
func (t *Tracker) PruneExpired(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pruneLocked(now)
}

// Prune is PruneExpired at the tracker's current time, for schedulers.
func (t *Tracker) Prune() {
	if n := t.PruneExpired(t.now()); n > 0 {
		t.log.Debug("Pruned inactive threads", "count", n)
	}
}

func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Stats{Channels: len(t.channels)}
	for _, list := range t.channels {
		s.Threads += len(list)
	}
	return s
}

// RecentlyEnded lists the most recently ended threads, oldest first.
func (t *Tracker) RecentlyEnded() []Thread {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Thread(nil), t.ended...)
}

func (t *Tracker) pruneLocked(now time.Time) int {
	removed := 0
	for channelID, list := range t.channels {
		kept := list[:0]
		for _, th := range list {
			if th.active(now) {
				kept = append(kept, th)
				continue
			}
			t.recordEndLocked(th, th.inactiveReason(), now)
			removed++
		}
		if len(kept) == 0 {
			delete(t.channels, channelID)
			continue
		}
		for i := len(kept); i < len(list); i++ {
			list[i] = nil
		}
		t.channels[channelID] = kept
	}
	return removed
}

func (t *Tracker) findLocked(channelID, threadID string) *thread {
	for _, th := range t.channels[channelID] {
		if th.id == threadID {
			return th
		}
	}
	return nil
}

func (t *Tracker) firstActiveWithLocked(channelID string, p ParticipantID, now time.Time) *thread {
	for _, th := range t.channels[channelID] {
		if !th.active(now) {
			continue
		}
		if _, ok := th.participants[p]; ok {
			return th
		}
	}
	return nil
}

func (t *Tracker) endLocked(th *thread, reason string, now time.Time) {
	list := t.channels[th.channelID]
	for i, cand := range list {
		if cand != th {
			continue
		}
		list = append(list[:i], list[i+1:]...)
		break
	}
	if len(list) == 0 {
		delete(t.channels, th.channelID)
	} else {
		t.channels[th.channelID] = list
	}
	t.recordEndLocked(th, reason, now)
}

func (t *Tracker) recordEndLocked(th *thread, reason string, now time.Time) {
	ended := now
	th.endReason = reason
	th.endedAt = &ended
	t.log.Debug("Ended thread",
		"channel_id", th.channelID,
		"thread_id", th.id,
		"reason", reason,
		"turns", th.turnCount,
	)
	t.ended = append(t.ended, th.snapshot())
	if over := len(t.ended) - recentlyEndedCap; over > 0 {
		t.ended = append(t.ended[:0:0], t.ended[over:]...)
	}
}

func expiry(now time.Time, d time.Duration) *time.Time {
	if d < 0 {
		return nil
	}
	at := now.Add(d)
	return &at
}

func copyMetadata(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
