package assignments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/avatarworld/internal/data/repos/testutil"
	types "github.com/yungbote/avatarworld/internal/domain/assignments"
	"github.com/yungbote/avatarworld/internal/pkg/dbctx"
)

func TestAssignmentRepoClaimOrder(t *testing.T) {
	db := testutil.DB(t)
	repo := NewAssignmentRepo(db, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	now := time.Now().UTC()
	lowOld := &types.Assignment{Type: types.TypeRespond, ChannelID: "c1", AvatarID: "a1", Priority: 0, CreatedAt: now.Add(-3 * time.Hour)}
	highNew := &types.Assignment{Type: types.TypeRespond, ChannelID: "c1", AvatarID: "a2", Priority: 5, CreatedAt: now.Add(-1 * time.Hour)}
	highOld := &types.Assignment{Type: types.TypeRespond, ChannelID: "c1", AvatarID: "a3", Priority: 5, CreatedAt: now.Add(-2 * time.Hour)}
	other := &types.Assignment{Type: types.TypeOther, ChannelID: "c2", AvatarID: "a1", Priority: 9, CreatedAt: now.Add(-4 * time.Hour)}

	n, err := repo.Create(dbc, []*types.Assignment{lowOld, highNew, highOld, other})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n != 4 {
		t.Fatalf("Create: expected 4, got %d", n)
	}

	want := []uuid.UUID{highOld.ID, highNew.ID, lowOld.ID}
	for i, id := range want {
		got, err := repo.ClaimNext(dbc, "w1", []types.Type{types.TypeRespond})
		if err != nil {
			t.Fatalf("ClaimNext #%d: %v", i, err)
		}
		if got == nil || got.ID != id {
			t.Fatalf("ClaimNext #%d: expected %v got %v", i, id, got)
		}
		if got.Status != types.StatusClaimed || got.WorkerID != "w1" {
			t.Fatalf("ClaimNext #%d: unexpected row %+v", i, got)
		}
	}

	none, err := repo.ClaimNext(dbc, "w1", []types.Type{types.TypeRespond})
	if err != nil {
		t.Fatalf("ClaimNext (drained): %v", err)
	}
	if none != nil {
		t.Fatalf("ClaimNext (drained): expected nil, got %v", none.ID)
	}

	// No type filter picks up the remaining "other" assignment.
	rest, err := repo.ClaimNext(dbc, "w2", nil)
	if err != nil || rest == nil || rest.ID != other.ID {
		t.Fatalf("ClaimNext (any type): err=%v row=%v", err, rest)
	}
}

func TestAssignmentRepoConcurrentClaimSingleWinner(t *testing.T) {
	db := testutil.DB(t)
	repo := NewAssignmentRepo(db, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	only := &types.Assignment{Type: types.TypeRespond, ChannelID: "c1", AvatarID: "a1"}
	if _, err := repo.Create(dbc, []*types.Assignment{only}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := repo.ClaimNext(dbc, uuid.NewString(), []types.Type{types.TypeRespond})
			if err != nil {
				t.Errorf("ClaimNext: %v", err)
				return
			}
			if got != nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestAssignmentRepoFindActiveKeys(t *testing.T) {
	db := testutil.DB(t)
	repo := NewAssignmentRepo(db, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	pending := &types.Assignment{Type: types.TypeRespond, ChannelID: "c1", AvatarID: "a1"}
	done := &types.Assignment{Type: types.TypeRespond, ChannelID: "c1", AvatarID: "a2"}
	if _, err := repo.Create(dbc, []*types.Assignment{pending, done}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ok, err := repo.UpdateFieldsUnlessStatus(dbc, done.ID, types.TerminalStatuses, map[string]interface{}{"status": types.StatusDone}); err != nil || !ok {
		t.Fatalf("mark done: ok=%v err=%v", ok, err)
	}

	found, err := repo.FindActiveKeys(dbc, []types.Key{pending.DedupeKey(), done.DedupeKey(), {Type: types.TypeOther, ChannelID: "c1", AvatarID: "a1"}})
	if err != nil {
		t.Fatalf("FindActiveKeys: %v", err)
	}
	if !found[pending.DedupeKey()] {
		t.Fatalf("expected pending key to be active")
	}
	if found[done.DedupeKey()] {
		t.Fatalf("terminal key must not count as active")
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 active key, got %d", len(found))
	}

	// Terminal rows are frozen.
	ok, err := repo.UpdateFieldsUnlessStatus(dbc, done.ID, types.TerminalStatuses, map[string]interface{}{"status": types.StatusFailed})
	if err != nil {
		t.Fatalf("UpdateFieldsUnlessStatus: %v", err)
	}
	if ok {
		t.Fatalf("expected no-op on terminal row")
	}

	counts, err := repo.CountByStatus(dbc)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[types.StatusPending] != 1 || counts[types.StatusDone] != 1 {
		t.Fatalf("CountByStatus: %v", counts)
	}
}

func TestAssignmentRepoCreateSkipsSecondActiveRowForKey(t *testing.T) {
	db := testutil.DB(t)
	repo := NewAssignmentRepo(db, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	first := &types.Assignment{Type: types.TypeRespond, ChannelID: "c1", AvatarID: "a1"}
	n, err := repo.Create(dbc, []*types.Assignment{
		first,
		{Type: types.TypeRespond, ChannelID: "c1", AvatarID: "a1"},
		{Type: types.TypeOther, ChannelID: "c1", AvatarID: "a1"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n != 2 {
		t.Fatalf("Create: expected 2 inserted, got %d", n)
	}
	if n, err = repo.Create(dbc, []*types.Assignment{{Type: types.TypeRespond, ChannelID: "c1", AvatarID: "a1"}}); err != nil || n != 0 {
		t.Fatalf("Create (duplicate): n=%d err=%v", n, err)
	}
	if active, _ := repo.CountActiveForKey(dbc, first.DedupeKey()); active != 1 {
		t.Fatalf("expected 1 active row, got %d", active)
	}

	// Claimed still counts as active; a terminal row frees the key.
	claimed, err := repo.ClaimNext(dbc, "w1", []types.Type{types.TypeRespond})
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: row=%v err=%v", claimed, err)
	}
	if n, _ = repo.Create(dbc, []*types.Assignment{{Type: types.TypeRespond, ChannelID: "c1", AvatarID: "a1"}}); n != 0 {
		t.Fatalf("Create while claimed: expected 0, got %d", n)
	}
	if ok, err := repo.UpdateFieldsUnlessStatus(dbc, claimed.ID, types.TerminalStatuses, map[string]interface{}{"status": types.StatusDone}); err != nil || !ok {
		t.Fatalf("mark done: ok=%v err=%v", ok, err)
	}
	if n, err = repo.Create(dbc, []*types.Assignment{{Type: types.TypeRespond, ChannelID: "c1", AvatarID: "a1"}}); err != nil || n != 1 {
		t.Fatalf("Create after done: n=%d err=%v", n, err)
	}
}
