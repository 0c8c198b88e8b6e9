package conversation

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	apperr "github.com/yungbote/avatarworld/internal/pkg/errors"
	"github.com/yungbote/avatarworld/internal/platform/logger"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time      { return c.t }
func (c *fakeClock) add(d time.Duration) { c.t = c.t.Add(d) }

func newTracker(cfg Config) (*Tracker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)}
	return NewTracker(logger.NewNop(), cfg, WithClock(clk.now)), clk
}

func TestStartThreadReusesMatchingThread(t *testing.T) {
	tr, clk := newTracker(DefaultConfig())

	first, err := tr.StartThread("c", []any{"a", "b"}, StartOptions{Mode: ModeMention})
	require.NoError(t, err)
	clk.add(time.Second)
	second, err := tr.StartThread("c", []any{"b", "a"}, StartOptions{Mode: ModeMention})
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.ExpiresAt)
	require.False(t, second.ExpiresAt.Before(*first.ExpiresAt))
	require.Len(t, tr.GetActiveThreads("c"), 1)
}

func TestStartThreadNewWhenSetModeOrForceDiffers(t *testing.T) {
	tr, _ := newTracker(DefaultConfig())

	base, err := tr.StartThread("c", []any{"a", "b"}, StartOptions{Mode: ModeMention})
	require.NoError(t, err)

	subset, err := tr.StartThread("c", []any{"a"}, StartOptions{Mode: ModeMention})
	require.NoError(t, err)
	require.NotEqual(t, base.ID, subset.ID)

	otherMode, err := tr.StartThread("c", []any{"a", "b"}, StartOptions{Mode: ModeOther})
	require.NoError(t, err)
	require.NotEqual(t, base.ID, otherMode.ID)

	forced, err := tr.StartThread("c", []any{"a", "b"}, StartOptions{Mode: ModeMention, ForceNew: true})
	require.NoError(t, err)
	require.NotEqual(t, base.ID, forced.ID)

	require.Len(t, tr.GetActiveThreads("c"), 4)
}

func TestStartThreadRejectsUnresolvableParticipants(t *testing.T) {
	tr, _ := newTracker(DefaultConfig())

	_, err := tr.StartThread("c", []any{"", nil, 1.5, struct{}{}}, StartOptions{})
	require.Error(t, err)
	require.True(t, errors.Is(err, apperr.ErrInvalidArgument))

	_, err = tr.StartThread("", []any{"a"}, StartOptions{})
	require.True(t, errors.Is(err, apperr.ErrInvalidArgument))

	_, err = tr.StartThread("c", []any{"a"}, StartOptions{Mode: "shout"})
	require.True(t, errors.Is(err, apperr.ErrInvalidArgument))

	require.Equal(t, Stats{}, tr.Stats())
}

func TestRecordTurnEndsThreadAtTurnLimit(t *testing.T) {
	tr, _ := newTracker(DefaultConfig())

	th, err := tr.StartThread("c", []any{"p", "q"}, StartOptions{MaxTurns: 2})
	require.NoError(t, err)

	after1, err := tr.RecordTurn("c", "p", th.ID)
	require.NoError(t, err)
	require.Equal(t, 1, after1.TurnCount)
	require.Empty(t, after1.EndReason)

	got, ok := tr.GetThread("c", th.ID)
	require.True(t, ok)
	require.Equal(t, 1, got.TurnCount)
	require.Equal(t, ParticipantID("p"), got.LastSpeakerID)

	after2, err := tr.RecordTurn("c", "q", th.ID)
	require.NoError(t, err)
	require.Equal(t, EndReasonTurnLimit, after2.EndReason)

	_, ok = tr.GetThread("c", th.ID)
	require.False(t, ok)
	require.Equal(t, Stats{}, tr.Stats(), "ending the last thread drops the channel entry")

	_, err = tr.RecordTurn("c", "p", th.ID)
	require.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestThreadExpiresWithoutActivity(t *testing.T) {
	tr, clk := newTracker(DefaultConfig())

	th, err := tr.StartThread("c", []any{"a"}, StartOptions{Duration: 500 * time.Millisecond})
	require.NoError(t, err)
	require.Len(t, tr.GetActiveThreads("c"), 1)

	clk.add(501 * time.Millisecond)
	require.Empty(t, tr.GetActiveThreads("c"))
	_, ok := tr.GetThread("c", th.ID)
	require.False(t, ok)

	ended := tr.RecentlyEnded()
	require.Len(t, ended, 1)
	require.Equal(t, EndReasonExpired, ended[0].EndReason)
	require.NotNil(t, ended[0].EndedAt)
}

func TestThreadExpiresOnWallClock(t *testing.T) {
	tr := NewTracker(logger.NewNop(), DefaultConfig())

	_, err := tr.StartThread("c", []any{"a", "b"}, StartOptions{Duration: 500 * time.Millisecond})
	require.NoError(t, err)
	time.Sleep(600 * time.Millisecond)
	require.Empty(t, tr.GetActiveThreads("c"))
}

func TestRecordTurnExtendsByHalfTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultTTL = 10 * time.Minute
	tr, clk := newTracker(cfg)

	th, err := tr.StartThread("c", []any{"a", "b"}, StartOptions{Duration: time.Minute})
	require.NoError(t, err)

	clk.add(30 * time.Second)
	updated, err := tr.RecordTurn("c", "a", "")
	require.NoError(t, err)
	require.Equal(t, th.ID, updated.ID)
	require.Equal(t, clk.t.Add(5*time.Minute), *updated.ExpiresAt)

	// A later turn never pulls the expiry in.
	clk.add(time.Second)
	again, err := tr.RecordTurn("c", "b", th.ID)
	require.NoError(t, err)
	require.Equal(t, clk.t.Add(5*time.Minute), *again.ExpiresAt)
}

func TestRecordTurnWithoutExtension(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExtendOnActivity = false
	tr, clk := newTracker(cfg)

	th, err := tr.StartThread("c", []any{"a"}, StartOptions{Duration: time.Minute})
	require.NoError(t, err)
	clk.add(30 * time.Second)
	updated, err := tr.RecordTurn("c", "a", th.ID)
	require.NoError(t, err)
	require.Equal(t, *th.ExpiresAt, *updated.ExpiresAt)
}

func TestIsInActiveThreadAndEndThread(t *testing.T) {
	tr, _ := newTracker(DefaultConfig())

	th1, err := tr.StartThread("c", []any{"a", "b"}, StartOptions{})
	require.NoError(t, err)
	th2, err := tr.StartThread("c", []any{"c"}, StartOptions{})
	require.NoError(t, err)

	got, ok := tr.IsInActiveThread("c", "b")
	require.True(t, ok)
	require.Equal(t, th1.ID, got.ID)
	_, ok = tr.IsInActiveThread("c", "z")
	require.False(t, ok)
	_, ok = tr.IsInActiveThread("other", "a")
	require.False(t, ok)

	ended, ok := tr.EndThread("c", th1.ID, "moderator")
	require.True(t, ok)
	require.Equal(t, "moderator", ended.EndReason)
	_, ok = tr.EndThread("c", th1.ID, "")
	require.False(t, ok)

	require.Equal(t, Stats{Channels: 1, Threads: 1}, tr.Stats())
	_, ok = tr.EndThread("c", th2.ID, "")
	require.True(t, ok)
	require.Equal(t, Stats{}, tr.Stats())
}

func TestPruneExpiredAcrossChannels(t *testing.T) {
	tr, clk := newTracker(DefaultConfig())

	_, err := tr.StartThread("c1", []any{"a"}, StartOptions{Duration: time.Second})
	require.NoError(t, err)
	_, err = tr.StartThread("c2", []any{"a"}, StartOptions{Duration: time.Hour})
	require.NoError(t, err)
	_, err = tr.StartThread("c3", []any{"a"}, StartOptions{Duration: -1, MaxTurns: 3})
	require.NoError(t, err)

	require.Equal(t, 1, tr.PruneExpired(clk.t.Add(2*time.Second)))
	require.Equal(t, Stats{Channels: 2, Threads: 2}, tr.Stats())

	// A thread without expiry survives any amount of time.
	require.Equal(t, 1, tr.PruneExpired(clk.t.Add(48*time.Hour)))
	require.Equal(t, Stats{Channels: 1, Threads: 1}, tr.Stats())
	require.Len(t, tr.GetActiveThreads("c3"), 1)
}

func TestSnapshotsAreDetached(t *testing.T) {
	tr, _ := newTracker(DefaultConfig())
	th, err := tr.StartThread("c", []any{"a"}, StartOptions{Metadata: map[string]any{"topic": "duel"}})
	require.NoError(t, err)

	th.Participants[0] = "mallory"
	th.Metadata["topic"] = "changed"

	got, ok := tr.GetThread("c", th.ID)
	require.True(t, ok)
	require.Equal(t, []ParticipantID{"a"}, got.Participants)
	require.Equal(t, "duel", got.Metadata["topic"])
}

type avatar struct{ id string }

func (a avatar) ParticipantID() string { return a.id }

func TestNormalizeParticipant(t *testing.T) {
	u := uuid.New()
	cases := []struct {
		name string
		in   any
		want ParticipantID
		ok   bool
	}{
		{name: "string", in: " abc ", want: "abc", ok: true},
		{name: "empty_string", in: "   ", ok: false},
		{name: "int", in: 42, want: "42", ok: true},
		{name: "int64", in: int64(1234567890123), want: "1234567890123", ok: true},
		{name: "json_number", in: float64(987654321), want: "987654321", ok: true},
		{name: "fractional", in: 1.25, ok: false},
		{name: "uuid", in: u, want: ParticipantID(u.String()), ok: true},
		{name: "nil_uuid", in: uuid.Nil, ok: false},
		{name: "identified", in: avatar{id: "av-1"}, want: "av-1", ok: true},
		{name: "json_object", in: map[string]any{"id": "x"}, want: "x", ok: true},
		{name: "json_object_underscore", in: map[string]any{"_id": 7.0}, want: "7", ok: true},
		{name: "json_object_no_id", in: map[string]any{"name": "x"}, ok: false},
		{name: "nil", in: nil, ok: false},
		{name: "struct", in: struct{ ID string }{ID: "x"}, ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NormalizeParticipant(tc.in)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("NormalizeParticipant(%#v)=(%q,%v), want (%q,%v)", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}
