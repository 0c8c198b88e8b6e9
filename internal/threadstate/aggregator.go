// Package threadstate maintains cached per-channel activity snapshots derived
// from the raw message and activity ledgers.
package threadstate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	chatrepo "github.com/yungbote/avatarworld/internal/data/repos/chat"
	types "github.com/yungbote/avatarworld/internal/domain/chat"
	"github.com/yungbote/avatarworld/internal/pkg/dbctx"
	"github.com/yungbote/avatarworld/internal/pkg/opresult"
	"github.com/yungbote/avatarworld/internal/platform/logger"
)

var tracer = otel.Tracer("github.com/yungbote/avatarworld/internal/threadstate")

type Config struct {
	// StaleAfter is how long a stored snapshot is served before recomputing.
	StaleAfter      time.Duration `yaml:"stale_after"`
	Lookback        time.Duration `yaml:"lookback"`
	Limit           int           `yaml:"limit"`
	MessageWindow   int           `yaml:"message_window"`
	RecentWindow    int           `yaml:"recent_window"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	Concurrency     int           `yaml:"concurrency"`
}

func DefaultConfig() Config {
	return Config{
		StaleAfter:      time.Minute,
		Lookback:        time.Hour,
		Limit:           50,
		MessageWindow:   100,
		RecentWindow:    10,
		RefreshInterval: 30 * time.Second,
		Concurrency:     4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StaleAfter <= 0 {
		c.StaleAfter = d.StaleAfter
	}
	if c.Lookback <= 0 {
		c.Lookback = d.Lookback
	}
	if c.Limit <= 0 {
		c.Limit = d.Limit
	}
	if c.MessageWindow <= 0 {
		c.MessageWindow = d.MessageWindow
	}
	if c.RecentWindow <= 0 {
		c.RecentWindow = d.RecentWindow
	}
	if c.RecentWindow > c.MessageWindow {
		c.RecentWindow = c.MessageWindow
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = d.RefreshInterval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	return c
}

type Option func(*Aggregator)

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

type Aggregator struct {
	log      *logger.Logger
	activity chatrepo.ActivityRepo
	messages chatrepo.MessageRepo
	states   chatrepo.ThreadStateRepo
	cfg      Config
	now      func() time.Time
}

func NewAggregator(
	baseLog *logger.Logger,
	activity chatrepo.ActivityRepo,
	messages chatrepo.MessageRepo,
	states chatrepo.ThreadStateRepo,
	cfg Config,
	opts ...Option,
) *Aggregator {
	a := &Aggregator{
		log:      baseLog.With("service", "ThreadStateAggregator"),
		activity: activity,
		messages: messages,
		states:   states,
		cfg:      cfg.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aggregator) Config() Config { return a.cfg }

// RecordMessage appends a message to the ledger and bumps channel activity.
func (a *Aggregator) RecordMessage(ctx context.Context, msg *types.ChannelMessage) error {
	if msg == nil || msg.ChannelID == "" {
		return nil
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = a.now()
	}
	dbc := dbctx.New(ctx)
	if err := a.messages.Append(dbc, []*types.ChannelMessage{msg}); err != nil {
		return err
	}
	return a.activity.Touch(dbc, msg.ChannelID, msg.GuildID, msg.Timestamp)
}

// GetActiveChannels lists channels active within lookback, most recent first.
func (a *Aggregator) GetActiveChannels(ctx context.Context, lookback time.Duration, limit int) opresult.Result[[]*types.ChannelActivity] {
	if lookback <= 0 {
		lookback = a.cfg.Lookback
	}
	if limit <= 0 {
		limit = a.cfg.Limit
	}
	rows, err := a.activity.ListActiveSince(dbctx.New(ctx), a.now().Add(-lookback), limit)
	if err != nil {
		a.log.Warn("List active channels failed", "error", err)
		return opresult.Degrade[[]*types.ChannelActivity]("list active channels", err)
	}
	return opresult.OK(rows)
}

// ComputeAndUpsertState rebuilds the snapshot for one channel from its most
// recent messages and stores it. created_at is kept from the first insert.
func (a *Aggregator) ComputeAndUpsertState(ctx context.Context, channelID, guildID string) (*types.ThreadState, error) {
	ctx, span := tracer.Start(ctx, "threadstate.compute")
	span.SetAttributes(attribute.String("channel.id", channelID))
	defer span.End()

	dbc := dbctx.New(ctx)
	msgs, err := a.messages.ListRecent(dbc, channelID, a.cfg.MessageWindow)
	if err != nil {
		return nil, err
	}
	prev, err := a.states.Get(dbc, channelID)
	if err != nil {
		return nil, err
	}

	now := a.now()
	st := summarize(channelID, guildID, msgs, a.cfg.RecentWindow)
	st.UpdatedAt = now
	st.CreatedAt = now
	if prev != nil {
		st.CreatedAt = prev.CreatedAt
		if st.LastActivityTs.IsZero() {
			st.LastActivityTs = prev.LastActivityTs
		}
		if st.GuildID == "" {
			st.GuildID = prev.GuildID
		}
	}
	if err := a.states.Upsert(dbc, st); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("participants", st.ParticipantsCount))
	return st, nil
}

// GetActiveThreadStates returns a snapshot for every active channel, serving
// stored snapshots younger than StaleAfter and recomputing the rest. A channel
// that fails is logged and left out.
func (a *Aggregator) GetActiveThreadStates(ctx context.Context, lookback time.Duration, limit int) opresult.Result[[]*types.ThreadState] {
	ctx, span := tracer.Start(ctx, "threadstate.active")
	defer span.End()

	channels := a.GetActiveChannels(ctx, lookback, limit)
	if channels.Degraded() {
		return opresult.Result[[]*types.ThreadState]{Err: channels.Err}
	}

	var (
		mu  sync.Mutex
		out = make([]*types.ThreadState, 0, len(channels.Value))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for _, ch := range channels.Value {
		g.Go(func() error {
			st, err := a.stateFor(gctx, ch)
			if err != nil {
				a.log.Warn("Thread state failed, skipping channel", "channel_id", ch.ChannelID, "error", err)
				return nil
			}
			mu.Lock()
			out = append(out, st)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastActivityTs.Equal(out[j].LastActivityTs) {
			return out[i].ChannelID < out[j].ChannelID
		}
		return out[i].LastActivityTs.After(out[j].LastActivityTs)
	})
	span.SetAttributes(attribute.Int("channels", len(channels.Value)), attribute.Int("states", len(out)))
	return opresult.OK(out)
}

// Refresh recomputes stale snapshots for the configured lookback window.
func (a *Aggregator) Refresh(ctx context.Context) error {
	res := a.GetActiveThreadStates(ctx, a.cfg.Lookback, a.cfg.Limit)
	if res.Degraded() {
		return res.Err
	}
	a.log.Debug("Thread states refreshed", "count", len(res.Value))
	return nil
}

func (a *Aggregator) stateFor(ctx context.Context, ch *types.ChannelActivity) (st *types.ThreadState, err error) {
	defer func() {
		if r := recover(); r != nil {
			st, err = nil, panicError{val: r}
		}
	}()
	cached, err := a.states.Get(dbctx.New(ctx), ch.ChannelID)
	if err != nil {
		return nil, err
	}
	if cached != nil && a.now().Sub(cached.UpdatedAt) < a.cfg.StaleAfter {
		return cached, nil
	}
	st, err = a.ComputeAndUpsertState(ctx, ch.ChannelID, ch.GuildID)
	if err != nil {
		return nil, err
	}
	if st.LastActivityTs.IsZero() {
		st.LastActivityTs = ch.LastActivityAt
	}
	return st, nil
}

// summarize derives a snapshot from messages ordered newest first. The
// participant map covers every message; the recent author lists only the
// first recentWindow.
func summarize(channelID, guildID string, msgs []*types.ChannelMessage, recentWindow int) *types.ThreadState {
	st := &types.ThreadState{ChannelID: channelID, GuildID: guildID}
	counts := map[string]int{}
	recentIDs := []string{}
	recentNames := []string{}
	seenID := map[string]bool{}
	seenName := map[string]bool{}

	for i, m := range msgs {
		if i == 0 {
			st.LastActivityTs = m.Timestamp
			st.LastMessageID = m.MessageID
			if st.GuildID == "" {
				st.GuildID = m.GuildID
			}
		}
		if m.AuthorID == "" {
			continue
		}
		counts[m.AuthorID]++
		if i >= recentWindow {
			continue
		}
		if !seenID[m.AuthorID] {
			seenID[m.AuthorID] = true
			recentIDs = append(recentIDs, m.AuthorID)
		}
		if m.AuthorUsername != "" && !seenName[m.AuthorUsername] {
			seenName[m.AuthorUsername] = true
			recentNames = append(recentNames, m.AuthorUsername)
		}
	}

	st.Participants = datatypes.NewJSONType(counts)
	st.ParticipantsCount = len(counts)
	st.RecentAuthorIDs = datatypes.JSONSlice[string](recentIDs)
	st.RecentAuthors = datatypes.JSONSlice[string](recentNames)
	return st
}

type panicError struct{ val any }

func (e panicError) Error() string { return fmt.Sprintf("panic computing thread state: %v", e.val) }
