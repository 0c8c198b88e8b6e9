package threadstate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	chatrepo "github.com/yungbote/avatarworld/internal/data/repos/chat"
	"github.com/yungbote/avatarworld/internal/data/repos/testutil"
	types "github.com/yungbote/avatarworld/internal/domain/chat"
	"github.com/yungbote/avatarworld/internal/pkg/dbctx"
)

// flakyMessages fails ListRecent for one channel.
type flakyMessages struct {
	chatrepo.MessageRepo
	bad   string
	calls atomic.Int32
}

func (f *flakyMessages) ListRecent(dbc dbctx.Context, channelID string, limit int) ([]*types.ChannelMessage, error) {
	f.calls.Add(1)
	if channelID == f.bad {
		return nil, errors.New("cursor reset")
	}
	return f.MessageRepo.ListRecent(dbc, channelID, limit)
}

type fixture struct {
	agg      *Aggregator
	messages *flakyMessages
	clock    *time.Time
}

func newFixture(t *testing.T, bad string) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	now := time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)
	f := &fixture{clock: &now}
	f.messages = &flakyMessages{MessageRepo: chatrepo.NewMessageRepo(db, log), bad: bad}
	f.agg = NewAggregator(log,
		chatrepo.NewActivityRepo(db, log),
		f.messages,
		chatrepo.NewThreadStateRepo(db, log),
		DefaultConfig(),
		WithClock(func() time.Time { return *f.clock }),
	)
	return f
}

func (f *fixture) post(t *testing.T, channelID, author string, at time.Time) {
	t.Helper()
	require.NoError(t, f.agg.RecordMessage(context.Background(), &types.ChannelMessage{
		MessageID:      fmt.Sprintf("%s-%d", channelID, at.UnixNano()),
		ChannelID:      channelID,
		GuildID:        "g1",
		AuthorID:       author,
		AuthorUsername: "name-" + author,
		Timestamp:      at,
	}))
}

func TestComputeAndUpsertState(t *testing.T) {
	f := newFixture(t, "")
	base := f.clock.Add(-30 * time.Minute)

	// 15 older messages by a, then 10 recent by b and c alternating.
	for i := 0; i < 15; i++ {
		f.post(t, "c1", "a", base.Add(time.Duration(i)*time.Second))
	}
	for i := 0; i < 10; i++ {
		author := "b"
		if i%2 == 1 {
			author = "c"
		}
		f.post(t, "c1", author, base.Add(time.Minute+time.Duration(i)*time.Second))
	}

	st, err := f.agg.ComputeAndUpsertState(context.Background(), "c1", "g1")
	require.NoError(t, err)
	require.Equal(t, map[string]int{"a": 15, "b": 5, "c": 5}, st.Participants.Data())
	require.Equal(t, 3, st.ParticipantsCount)
	require.ElementsMatch(t, []string{"b", "c"}, []string(st.RecentAuthorIDs))
	require.Equal(t, "c", st.RecentAuthorIDs[0])
	require.ElementsMatch(t, []string{"name-b", "name-c"}, []string(st.RecentAuthors))
	require.True(t, st.LastActivityTs.Equal(base.Add(time.Minute+9*time.Second)))
	created := st.CreatedAt

	*f.clock = f.clock.Add(5 * time.Minute)
	st, err = f.agg.ComputeAndUpsertState(context.Background(), "c1", "g1")
	require.NoError(t, err)
	require.True(t, st.CreatedAt.Equal(created), "created_at set only on first insert")
	require.True(t, st.UpdatedAt.Equal(*f.clock))
}

func TestParticipantWindowIsBounded(t *testing.T) {
	f := newFixture(t, "")
	base := f.clock.Add(-time.Hour)
	f.post(t, "c1", "ancient", base)
	for i := 1; i <= 100; i++ {
		f.post(t, "c1", "p", base.Add(time.Duration(i)*time.Second))
	}
	st, err := f.agg.ComputeAndUpsertState(context.Background(), "c1", "g1")
	require.NoError(t, err)
	require.Equal(t, map[string]int{"p": 100}, st.Participants.Data())
}

func TestGetActiveThreadStatesSkipsFailingChannel(t *testing.T) {
	f := newFixture(t, "broken")
	now := *f.clock
	f.post(t, "quiet", "a", now.Add(-50*time.Minute))
	f.post(t, "broken", "b", now.Add(-1*time.Minute))
	f.post(t, "busy", "c", now.Add(-2*time.Minute))
	f.post(t, "gone", "d", now.Add(-3*time.Hour))

	res := f.agg.GetActiveThreadStates(context.Background(), time.Hour, 10)
	require.NoError(t, res.Err)
	ids := make([]string, 0, len(res.Value))
	for _, st := range res.Value {
		ids = append(ids, st.ChannelID)
	}
	require.Equal(t, []string{"busy", "quiet"}, ids)
}

func TestGetActiveThreadStatesServesFreshSnapshots(t *testing.T) {
	f := newFixture(t, "")
	f.post(t, "c1", "a", f.clock.Add(-time.Minute))

	res := f.agg.GetActiveThreadStates(context.Background(), time.Hour, 10)
	require.NoError(t, res.Err)
	require.Len(t, res.Value, 1)
	require.EqualValues(t, 1, f.messages.calls.Load())

	*f.clock = f.clock.Add(30 * time.Second)
	res = f.agg.GetActiveThreadStates(context.Background(), time.Hour, 10)
	require.NoError(t, res.Err)
	require.EqualValues(t, 1, f.messages.calls.Load(), "fresh snapshot reused")

	*f.clock = f.clock.Add(31 * time.Second)
	require.NoError(t, f.agg.Refresh(context.Background()))
	require.EqualValues(t, 2, f.messages.calls.Load(), "stale snapshot recomputed")
}

func TestDegradedWhenLedgerUnavailable(t *testing.T) {
	db := testutil.Closed(t)
	log := testutil.Logger(t)
	agg := NewAggregator(log, chatrepo.NewActivityRepo(db, log), chatrepo.NewMessageRepo(db, log), chatrepo.NewThreadStateRepo(db, log), Config{})

	res := agg.GetActiveThreadStates(context.Background(), time.Hour, 10)
	require.True(t, res.Degraded())
	require.Empty(t, res.Value)
	require.Error(t, agg.Refresh(context.Background()))
}

func TestSummarizeEmpty(t *testing.T) {
	st := summarize("c", "g", nil, 10)
	require.Equal(t, 0, st.ParticipantsCount)
	require.Empty(t, st.RecentAuthorIDs)
	require.True(t, st.LastActivityTs.IsZero())
}

func TestSpansCarryImportPathScope(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, "")
	f.post(t, "c1", "u1", f.clock.Add(-time.Minute))
	_, err := f.agg.ComputeAndUpsertState(context.Background(), "c1", "g")
	require.NoError(t, err)

	spans := rec.Ended()
	require.NotEmpty(t, spans)
	for _, s := range spans {
		require.Equal(t, "github.com/yungbote/avatarworld/internal/threadstate", s.InstrumentationScope().Name, s.Name())
	}
}
