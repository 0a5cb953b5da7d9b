package room

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riffluv/ito-sub004/internal/auth"
	"github.com/riffluv/ito-sub004/internal/game"
	"github.com/riffluv/ito-sub004/internal/patch"
	"github.com/riffluv/ito-sub004/internal/store"
)

func newTestService() (*Service, *store.Memory, *patch.Bus) {
	st := store.NewMemory()
	bus := patch.NewBus(100)
	tokens := auth.NewVerifier("test-secret", "admin-key")
	s := NewService(st, bus, tokens, Options{DealMin: 1, DealMax: 100, RetryDelay: time.Millisecond})
	var tick int64
	s.now = func() int64 { tick++; return 1_700_000_000_000 + tick }
	s.sleep = func(time.Duration) {}
	return s, st, bus
}

func mustCreate(t *testing.T, s *Service, mode game.ResolveMode) *CreateResponse {
	t.Helper()
	resp, err := s.Create(context.Background(), CreateRequest{
		HostName: "host",
		Options:  game.RoomOptions{ResolveMode: mode},
		Topics:   []string{"heavy things", "scary animals", "loud sounds"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return resp
}

func mustJoin(t *testing.T, s *Service, roomID, name string) *JoinResponse {
	t.Helper()
	resp, err := s.Join(context.Background(), JoinRequest{RoomID: roomID, Name: name})
	if err != nil {
		t.Fatalf("Join %s: %v", name, err)
	}
	return resp
}

func mustQuickStart(t *testing.T, s *Service, roomID, token, requestID string) *patch.Patch {
	t.Helper()
	p, err := s.QuickStart(context.Background(), QuickStartRequest{
		RoomID: roomID, Token: token, RequestID: requestID, Seed: "seed-" + requestID,
	})
	if err != nil {
		t.Fatalf("QuickStart: %v", err)
	}
	return p
}

func roomDoc(t *testing.T, s *Service, roomID string) *game.Room {
	t.Helper()
	r, err := s.store.GetRoom(context.Background(), roomID)
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	return r
}

// ascendingOrder returns the round roster sorted by dealt number.
func ascendingOrder(r *game.Room) []string {
	ids := make([]string, 0, len(r.Deal.Numbers))
	for id := range r.Deal.Numbers {
		ids = append(ids, id)
	}
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if r.Deal.Numbers[ids[j]] < r.Deal.Numbers[ids[i]] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}
	return ids
}

func TestCreateJoinSnapshot(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	mustJoin(t, s, host.RoomID, "alice")
	mustJoin(t, s, host.RoomID, "bob")

	snap, err := s.Snapshot(context.Background(), host.RoomID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Players) != 3 {
		t.Fatalf("players = %d, want 3", len(snap.Players))
	}
	if snap.Room.HostID != host.UID {
		t.Fatalf("host = %q, want %q", snap.Room.HostID, host.UID)
	}
	if snap.Room.Status != game.StatusWaiting {
		t.Fatalf("status = %q, want waiting", snap.Room.Status)
	}
}

func TestJoinRejectedOutsideWaiting(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	mustJoin(t, s, host.RoomID, "alice")
	mustQuickStart(t, s, host.RoomID, host.Token, "qs1")

	if _, err := s.Join(context.Background(), JoinRequest{RoomID: host.RoomID, Name: "late"}); !errors.Is(err, ErrNotWaiting) {
		t.Fatalf("err = %v, want not_waiting", err)
	}
}

func TestJoinWrongPassword(t *testing.T) {
	s, _, _ := newTestService()
	resp, err := s.Create(context.Background(), CreateRequest{
		HostName: "host",
		Options:  game.RoomOptions{ResolveMode: game.ResolveSortSubmit, Password: "hush"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Join(context.Background(), JoinRequest{RoomID: resp.RoomID, Name: "x", Password: "wrong"}); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("err = %v, want wrong_password", err)
	}
	if _, err := s.Join(context.Background(), JoinRequest{RoomID: resp.RoomID, Name: "x", Password: "hush"}); err != nil {
		t.Fatalf("join with password: %v", err)
	}
}

func TestQuickStartDealsAndStarts(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	mustJoin(t, s, host.RoomID, "alice")
	mustJoin(t, s, host.RoomID, "bob")

	p := mustQuickStart(t, s, host.RoomID, host.Token, "qs1")
	if p.Command != "quick-start" {
		t.Fatalf("command = %q", p.Command)
	}

	r := roomDoc(t, s, host.RoomID)
	if r.Status != game.StatusClue || r.Round != 1 {
		t.Fatalf("status=%q round=%d, want clue round 1", r.Status, r.Round)
	}
	if r.Topic == "" {
		t.Fatal("topic not picked")
	}
	if r.Order.Total != 3 {
		t.Fatalf("order total = %d, want 3", r.Order.Total)
	}
	players, _ := s.store.ListPlayers(context.Background(), host.RoomID)
	seen := map[int]bool{}
	for _, pl := range players {
		if pl.Number == nil {
			t.Fatalf("player %s has no number", pl.UID)
		}
		n := *pl.Number
		if n < 1 || n > 100 || seen[n] {
			t.Fatalf("bad number %d for %s", n, pl.UID)
		}
		seen[n] = true
	}
}

func TestQuickStartRequiresHost(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	alice := mustJoin(t, s, host.RoomID, "alice")

	_, err := s.QuickStart(context.Background(), QuickStartRequest{RoomID: host.RoomID, Token: alice.Token, RequestID: "qs1"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
}

func TestQuickStartTooFewPlayers(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	_, err := s.QuickStart(context.Background(), QuickStartRequest{RoomID: host.RoomID, Token: host.Token, RequestID: "qs1"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want invalid_request", err)
	}
}

func TestQuickStartIdempotentReplay(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	mustJoin(t, s, host.RoomID, "alice")

	first := mustQuickStart(t, s, host.RoomID, host.Token, "qs1")
	replay := mustQuickStart(t, s, host.RoomID, host.Token, "qs1")
	if replay.StatusVersion != first.StatusVersion {
		t.Fatalf("replay version = %d, want %d", replay.StatusVersion, first.StatusVersion)
	}
	r := roomDoc(t, s, host.RoomID)
	if r.Round != 1 {
		t.Fatalf("round = %d after replay, want 1", r.Round)
	}
	if r.StatusVersion != first.StatusVersion {
		t.Fatalf("room version = %d, want %d", r.StatusVersion, first.StatusVersion)
	}
}

func TestQuickStartStatusGate(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	mustJoin(t, s, host.RoomID, "alice")
	mustQuickStart(t, s, host.RoomID, host.Token, "qs1")

	_, err := s.QuickStart(context.Background(), QuickStartRequest{
		RoomID: host.RoomID, Token: host.Token, RequestID: "qs2",
	})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("err = %v, want invalid_status", err)
	}

	// A redeal is allowed when the caller opts in explicitly.
	p, err := s.QuickStart(context.Background(), QuickStartRequest{
		RoomID: host.RoomID, Token: host.Token, RequestID: "qs3", AllowFromClue: true, Seed: "redeal",
	})
	if err != nil {
		t.Fatalf("redeal: %v", err)
	}
	if p.Command != "quick-start" {
		t.Fatalf("command = %q", p.Command)
	}
	if r := roomDoc(t, s, host.RoomID); r.Round != 2 {
		t.Fatalf("round = %d, want 2", r.Round)
	}
}

func TestResetClearsRoomAndPlayers(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	mustJoin(t, s, host.RoomID, "alice")
	started := mustQuickStart(t, s, host.RoomID, host.Token, "qs1")

	p, err := s.Reset(context.Background(), ResetRequest{RoomID: host.RoomID, Token: host.Token, RequestID: "rs1"})
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if p.StatusVersion != started.StatusVersion+1 {
		t.Fatalf("version = %d, want %d", p.StatusVersion, started.StatusVersion+1)
	}

	r := roomDoc(t, s, host.RoomID)
	if r.Status != game.StatusWaiting || r.Round != 0 || r.Deal != nil || r.Result != nil || r.Topic != "" {
		t.Fatalf("room not cleared: %+v", r)
	}
	players, _ := s.store.ListPlayers(context.Background(), host.RoomID)
	for _, pl := range players {
		if pl.Number != nil || pl.Ready || pl.Clue1 != "" {
			t.Fatalf("player %s not cleared: %+v", pl.UID, pl)
		}
	}
}

func TestResetIdempotentReplay(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	mustJoin(t, s, host.RoomID, "alice")
	mustQuickStart(t, s, host.RoomID, host.Token, "qs1")

	first, err := s.Reset(context.Background(), ResetRequest{RoomID: host.RoomID, Token: host.Token, RequestID: "rs1"})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	second, err := s.Reset(context.Background(), ResetRequest{RoomID: host.RoomID, Token: host.Token, RequestID: "rs1"})
	if err != nil {
		t.Fatalf("replayed reset: %v", err)
	}
	if second.StatusVersion != first.StatusVersion {
		t.Fatalf("replay version = %d, want %d", second.StatusVersion, first.StatusVersion)
	}
	if r := roomDoc(t, s, host.RoomID); r.StatusVersion != first.StatusVersion {
		t.Fatalf("room version bumped by replay: %d", r.StatusVersion)
	}
}

func TestResetAdminKey(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	mustJoin(t, s, host.RoomID, "alice")
	mustQuickStart(t, s, host.RoomID, host.Token, "qs1")

	if _, err := s.Reset(context.Background(), ResetRequest{RoomID: host.RoomID, Token: "admin-key", RequestID: "rs1"}); err != nil {
		t.Fatalf("admin reset: %v", err)
	}
}

func TestResetLockContention(t *testing.T) {
	s, st, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)

	release, ok, err := st.TryLockRoom(context.Background(), host.RoomID, "other-command")
	if err != nil || !ok {
		t.Fatalf("pre-lock: ok=%v err=%v", ok, err)
	}
	defer release()

	if _, err := s.Reset(context.Background(), ResetRequest{RoomID: host.RoomID, Token: host.Token, RequestID: "rs1"}); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want rate_limited", err)
	}
}

func TestResetConfirmedAfterLostResponse(t *testing.T) {
	s, st, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	mustJoin(t, s, host.RoomID, "alice")
	started := mustQuickStart(t, s, host.RoomID, host.Token, "qs1")

	// The transaction commits server-side but the caller sees a failure.
	st.InjectCommitError(store.ErrUnavailable, true)
	p, err := s.Reset(context.Background(), ResetRequest{RoomID: host.RoomID, Token: host.Token, RequestID: "rs1"})
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if p.StatusVersion != started.StatusVersion+1 {
		t.Fatalf("version = %d, want %d", p.StatusVersion, started.StatusVersion+1)
	}
	r := roomDoc(t, s, host.RoomID)
	if r.Status != game.StatusWaiting || r.StatusVersion != started.StatusVersion+1 {
		t.Fatalf("double applied or lost: status=%q version=%d", r.Status, r.StatusVersion)
	}
}

func TestResetRetriesTransientFailure(t *testing.T) {
	s, st, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	mustJoin(t, s, host.RoomID, "alice")
	mustQuickStart(t, s, host.RoomID, host.Token, "qs1")

	// Nothing committed on the first attempt; the single retry succeeds.
	st.InjectCommitError(store.ErrUnavailable, false)
	p, err := s.Reset(context.Background(), ResetRequest{RoomID: host.RoomID, Token: host.Token, RequestID: "rs1"})
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if p == nil {
		t.Fatal("nil patch")
	}
	if r := roomDoc(t, s, host.RoomID); r.Status != game.StatusWaiting {
		t.Fatalf("status = %q, want waiting", r.Status)
	}
}

func TestResetDoesNotRetryForbidden(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	alice := mustJoin(t, s, host.RoomID, "alice")

	_, err := s.Reset(context.Background(), ResetRequest{RoomID: host.RoomID, Token: alice.Token, RequestID: "rs1"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
}

func TestPlaceCardSlotConflict(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	alice := mustJoin(t, s, host.RoomID, "alice")
	mustJoin(t, s, host.RoomID, "bob")
	mustQuickStart(t, s, host.RoomID, host.Token, "qs1")

	first, err := s.PlaceCard(context.Background(), PlaceRequest{RoomID: host.RoomID, Token: host.Token, TargetIndex: 0})
	if err != nil {
		t.Fatalf("first place: %v", err)
	}
	if first.Status != game.InsertOK || first.FinalIndex != 0 {
		t.Fatalf("first place = %+v", first)
	}

	// The slower writer to the same slot loses and must revert locally.
	if _, err := s.PlaceCard(context.Background(), PlaceRequest{RoomID: host.RoomID, Token: alice.Token, TargetIndex: 0}); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("err = %v, want slot_taken", err)
	}

	// Replaying the winner's own placement is a noop, not a conflict.
	again, err := s.PlaceCard(context.Background(), PlaceRequest{RoomID: host.RoomID, Token: host.Token, TargetIndex: 0})
	if err != nil {
		t.Fatalf("replayed place: %v", err)
	}
	if again.Status != game.InsertNoop || again.FinalIndex != 0 {
		t.Fatalf("replayed place = %+v", again)
	}
}

func TestRemoveCardLeavesGap(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	alice := mustJoin(t, s, host.RoomID, "alice")
	bob := mustJoin(t, s, host.RoomID, "bob")
	mustQuickStart(t, s, host.RoomID, host.Token, "qs1")

	for i, tok := range []string{host.Token, alice.Token, bob.Token} {
		if _, err := s.PlaceCard(context.Background(), PlaceRequest{RoomID: host.RoomID, Token: tok, TargetIndex: i}); err != nil {
			t.Fatalf("place %d: %v", i, err)
		}
	}
	if err := s.RemoveCard(context.Background(), RemoveRequest{RoomID: host.RoomID, Token: alice.Token}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	r := roomDoc(t, s, host.RoomID)
	if len(r.Order.Proposal) != 3 || r.Order.Proposal[1] != "" {
		t.Fatalf("proposal = %v, want middle slot empty", r.Order.Proposal)
	}
	if r.Order.Proposal[0] != host.UID || r.Order.Proposal[2] != bob.UID {
		t.Fatalf("proposal = %v, neighbors moved", r.Order.Proposal)
	}
}

func TestPlayCardSequentialSuccess(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSequential)
	alice := mustJoin(t, s, host.RoomID, "alice")
	bob := mustJoin(t, s, host.RoomID, "bob")
	mustQuickStart(t, s, host.RoomID, host.Token, "qs1")

	tokens := map[string]string{host.UID: host.Token, alice.UID: alice.Token, bob.UID: bob.Token}
	r := roomDoc(t, s, host.RoomID)
	var last *patch.Patch
	for _, uid := range ascendingOrder(r) {
		p, err := s.PlayCard(context.Background(), PlayRequest{RoomID: host.RoomID, Token: tokens[uid]})
		if err != nil {
			t.Fatalf("play %s: %v", uid, err)
		}
		last = p
	}
	if last.Command != "play" {
		t.Fatalf("command = %q", last.Command)
	}
	r = roomDoc(t, s, host.RoomID)
	if r.Status != game.StatusReveal {
		t.Fatalf("status = %q, want reveal", r.Status)
	}
	if r.Result == nil || !r.Result.Success {
		t.Fatalf("result = %+v, want success", r.Result)
	}
	if r.Stats.Total != 1 || r.Stats.Success != 1 || r.Stats.Streak != 1 {
		t.Fatalf("stats = %+v", r.Stats)
	}
}

func TestPlayCardSequentialFailureEndsRound(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSequential)
	alice := mustJoin(t, s, host.RoomID, "alice")
	bob := mustJoin(t, s, host.RoomID, "bob")
	mustQuickStart(t, s, host.RoomID, host.Token, "qs1")

	tokens := map[string]string{host.UID: host.Token, alice.UID: alice.Token, bob.UID: bob.Token}
	r := roomDoc(t, s, host.RoomID)
	asc := ascendingOrder(r)

	// Highest card first, then a lower one: failure latches at index 1 and
	// the round ends because allowContinue is off.
	if _, err := s.PlayCard(context.Background(), PlayRequest{RoomID: host.RoomID, Token: tokens[asc[2]]}); err != nil {
		t.Fatalf("play high: %v", err)
	}
	if _, err := s.PlayCard(context.Background(), PlayRequest{RoomID: host.RoomID, Token: tokens[asc[0]]}); err != nil {
		t.Fatalf("play low: %v", err)
	}
	r = roomDoc(t, s, host.RoomID)
	if r.Status != game.StatusReveal {
		t.Fatalf("status = %q, want reveal", r.Status)
	}
	if r.Result == nil || r.Result.Success || r.Result.FailedAt != 1 {
		t.Fatalf("result = %+v, want failure at 1", r.Result)
	}
	if r.Stats.Failure != 1 || r.Stats.Streak != 0 {
		t.Fatalf("stats = %+v", r.Stats)
	}
}

func TestSubmitSorted(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	mustJoin(t, s, host.RoomID, "alice")
	mustJoin(t, s, host.RoomID, "bob")
	mustQuickStart(t, s, host.RoomID, host.Token, "qs1")

	r := roomDoc(t, s, host.RoomID)
	asc := ascendingOrder(r)

	if _, err := s.SubmitSorted(context.Background(), SubmitRequest{RoomID: host.RoomID, Token: host.Token, List: asc[:2]}); !errors.Is(err, game.ErrLengthMismatch) {
		t.Fatalf("short list err = %v, want length_mismatch", err)
	}
	if _, err := s.SubmitSorted(context.Background(), SubmitRequest{RoomID: host.RoomID, Token: host.Token, List: []string{asc[0], asc[0], asc[1]}}); !errors.Is(err, game.ErrDuplicatePlayer) {
		t.Fatalf("dup list err = %v, want duplicate_player", err)
	}

	p, err := s.SubmitSorted(context.Background(), SubmitRequest{RoomID: host.RoomID, Token: host.Token, List: asc})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if p.Command != "reveal" {
		t.Fatalf("command = %q", p.Command)
	}
	r = roomDoc(t, s, host.RoomID)
	if r.Status != game.StatusReveal || r.Result == nil || !r.Result.Success {
		t.Fatalf("status=%q result=%+v", r.Status, r.Result)
	}
}

func TestFinishRevealThenRestart(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	alice := mustJoin(t, s, host.RoomID, "alice")
	mustQuickStart(t, s, host.RoomID, host.Token, "qs1")
	r := roomDoc(t, s, host.RoomID)
	if _, err := s.SubmitSorted(context.Background(), SubmitRequest{RoomID: host.RoomID, Token: host.Token, List: ascendingOrder(r)}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := s.FinishReveal(context.Background(), FinishRevealRequest{RoomID: host.RoomID, Token: alice.Token}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-host finish err = %v, want forbidden", err)
	}
	if _, err := s.FinishReveal(context.Background(), FinishRevealRequest{RoomID: host.RoomID, Token: host.Token}); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if r := roomDoc(t, s, host.RoomID); r.Status != game.StatusFinished {
		t.Fatalf("status = %q, want finished", r.Status)
	}

	// finished -> clue without passing through waiting.
	_, err := s.QuickStart(context.Background(), QuickStartRequest{
		RoomID: host.RoomID, Token: host.Token, RequestID: "qs2", AllowFromFinished: true, Seed: "round-two",
	})
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	r = roomDoc(t, s, host.RoomID)
	if r.Status != game.StatusClue || r.Round != 2 {
		t.Fatalf("status=%q round=%d, want clue round 2", r.Status, r.Round)
	}
	if r.Stats.Total != 1 {
		t.Fatalf("stats reset by restart: %+v", r.Stats)
	}
	if len(r.Deal.SeatHistory) != 2 {
		t.Fatalf("seat history = %d entries, want 2", len(r.Deal.SeatHistory))
	}
}

func TestRecallSpectators(t *testing.T) {
	s, _, bus := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	alice := mustJoin(t, s, host.RoomID, "alice")
	mustQuickStart(t, s, host.RoomID, host.Token, "qs1")

	if err := s.RecallSpectators(context.Background(), RecallRequest{RoomID: host.RoomID, Token: host.Token}); !errors.Is(err, ErrNotWaiting) {
		t.Fatalf("mid-round recall err = %v, want not_waiting", err)
	}
	if err := s.RecallSpectators(context.Background(), RecallRequest{RoomID: host.RoomID, Token: alice.Token}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-host recall err = %v, want forbidden", err)
	}

	if _, err := s.Reset(context.Background(), ResetRequest{RoomID: host.RoomID, Token: host.Token, RequestID: "rs1"}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	ch := bus.Subscribe(host.RoomID)
	defer bus.Unsubscribe(host.RoomID, ch)
	if err := s.RecallSpectators(context.Background(), RecallRequest{RoomID: host.RoomID, Token: host.Token}); err != nil {
		t.Fatalf("recall: %v", err)
	}
	if r := roomDoc(t, s, host.RoomID); !r.UI.RecallOpen {
		t.Fatal("recallOpen not set")
	}
	select {
	case p := <-ch:
		if p.Command != "recall" {
			t.Fatalf("patch command = %q, want recall", p.Command)
		}
	default:
		t.Fatal("no recall patch published")
	}
}

func TestSetClueAndReady(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	alice := mustJoin(t, s, host.RoomID, "alice")
	mustQuickStart(t, s, host.RoomID, host.Token, "qs1")

	if err := s.SetClue(context.Background(), ClueRequest{RoomID: host.RoomID, Token: alice.Token, Clue1: "an elephant", Clue2: "but small"}); err != nil {
		t.Fatalf("SetClue: %v", err)
	}
	if err := s.SetReady(context.Background(), ReadyRequest{RoomID: host.RoomID, Token: alice.Token, Ready: true}); err != nil {
		t.Fatalf("SetReady: %v", err)
	}
	p, err := s.store.GetPlayer(context.Background(), host.RoomID, alice.UID)
	if err != nil {
		t.Fatalf("GetPlayer: %v", err)
	}
	if p.Clue1 != "an elephant" || p.Clue2 != "but small" || !p.Ready {
		t.Fatalf("player = %+v", p)
	}
}

func TestLeaveTransfersHost(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	alice := mustJoin(t, s, host.RoomID, "alice")
	mustJoin(t, s, host.RoomID, "bob")

	if err := s.Leave(context.Background(), LeaveRequest{RoomID: host.RoomID, Token: host.Token}); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	r := roomDoc(t, s, host.RoomID)
	if r.HostID != alice.UID {
		t.Fatalf("host = %q, want earliest remaining %q", r.HostID, alice.UID)
	}
	players, _ := s.store.ListPlayers(context.Background(), host.RoomID)
	if len(players) != 2 {
		t.Fatalf("players = %d, want 2", len(players))
	}
}

func TestFullSessionLifecycle(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSequential)
	alice := mustJoin(t, s, host.RoomID, "alice")
	bob := mustJoin(t, s, host.RoomID, "bob")
	tokens := map[string]string{host.UID: host.Token, alice.UID: alice.Token, bob.UID: bob.Token}

	mustQuickStart(t, s, host.RoomID, host.Token, "qs1")
	firstSeed := roomDoc(t, s, host.RoomID).Deal.Seed
	for _, uid := range ascendingOrder(roomDoc(t, s, host.RoomID)) {
		if err := s.SetClue(context.Background(), ClueRequest{RoomID: host.RoomID, Token: tokens[uid], Clue1: "clue"}); err != nil {
			t.Fatalf("clue %s: %v", uid, err)
		}
		if _, err := s.PlayCard(context.Background(), PlayRequest{RoomID: host.RoomID, Token: tokens[uid]}); err != nil {
			t.Fatalf("play %s: %v", uid, err)
		}
	}
	if _, err := s.FinishReveal(context.Background(), FinishRevealRequest{RoomID: host.RoomID, Token: host.Token}); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if _, err := s.Reset(context.Background(), ResetRequest{RoomID: host.RoomID, Token: host.Token, RequestID: "rs1"}); err != nil {
		t.Fatalf("reset: %v", err)
	}

	mustQuickStart(t, s, host.RoomID, host.Token, "qs2")
	r := roomDoc(t, s, host.RoomID)
	if r.Round != 1 {
		t.Fatalf("round = %d after reset+restart, want 1", r.Round)
	}
	if r.Deal.Seed == firstSeed {
		t.Fatal("second round reused the first seed")
	}
	if r.Stats.Total != 1 {
		t.Fatalf("stats lost across reset: %+v", r.Stats)
	}
	players, _ := s.store.ListPlayers(context.Background(), host.RoomID)
	for _, pl := range players {
		if pl.Number == nil || pl.Clue1 != "" {
			t.Fatalf("player %s not redealt cleanly: %+v", pl.UID, pl)
		}
	}
}

func TestLeaveMidRoundPrunesProposal(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	alice := mustJoin(t, s, host.RoomID, "alice")
	bob := mustJoin(t, s, host.RoomID, "bob")
	mustQuickStart(t, s, host.RoomID, host.Token, "qs1")

	for i, token := range []string{host.Token, alice.Token} {
		if _, err := s.PlaceCard(context.Background(), PlaceRequest{RoomID: host.RoomID, Token: token, TargetIndex: i}); err != nil {
			t.Fatalf("place %d: %v", i, err)
		}
	}
	if err := s.Leave(context.Background(), LeaveRequest{RoomID: host.RoomID, Token: alice.Token}); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	r := roomDoc(t, s, host.RoomID)
	for _, uid := range r.Order.Proposal {
		if uid == alice.UID {
			t.Fatalf("proposal %v still contains departed player %s", r.Order.Proposal, alice.UID)
		}
	}
	if len(r.Order.Proposal) != 1 || r.Order.Proposal[0] != host.UID {
		t.Fatalf("proposal = %v, want [%s]", r.Order.Proposal, host.UID)
	}
	if r.Order.Total != 2 {
		t.Fatalf("total = %d after leave, want 2", r.Order.Total)
	}
	if _, dealt := r.Deal.Numbers[alice.UID]; dealt {
		t.Fatalf("deal still contains departed player %s", alice.UID)
	}
	if _, dealt := r.Deal.Numbers[bob.UID]; !dealt {
		t.Fatalf("deal lost remaining player %s", bob.UID)
	}

	// The shrunken round still completes.
	list := ascendingOrder(r)
	if _, err := s.SubmitSorted(context.Background(), SubmitRequest{RoomID: host.RoomID, Token: host.Token, List: list}); err != nil {
		t.Fatalf("SubmitSorted after leave: %v", err)
	}
	r = roomDoc(t, s, host.RoomID)
	if r.Status != game.StatusReveal || r.Result == nil {
		t.Fatalf("status = %q result = %+v, want revealed round", r.Status, r.Result)
	}
}

func TestLeaveSequentialCompletesRound(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSequential)
	alice := mustJoin(t, s, host.RoomID, "alice")
	bob := mustJoin(t, s, host.RoomID, "bob")
	mustQuickStart(t, s, host.RoomID, host.Token, "qs1")

	r := roomDoc(t, s, host.RoomID)
	tokens := map[string]string{host.UID: host.Token, alice.UID: alice.Token, bob.UID: bob.Token}
	first, second := host.UID, alice.UID
	if r.Deal.Numbers[first] > r.Deal.Numbers[second] {
		first, second = second, first
	}
	for _, uid := range []string{first, second} {
		if _, err := s.PlayCard(context.Background(), PlayRequest{RoomID: host.RoomID, Token: tokens[uid]}); err != nil {
			t.Fatalf("play %s: %v", uid, err)
		}
	}

	// The only unplayed card walks out; the round must reveal rather than
	// wait for a play that can never come.
	if err := s.Leave(context.Background(), LeaveRequest{RoomID: host.RoomID, Token: bob.Token}); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	r = roomDoc(t, s, host.RoomID)
	if r.Status != game.StatusReveal {
		t.Fatalf("status = %q after last player left, want reveal", r.Status)
	}
	if r.Order.Total != 2 || len(r.Order.List) != 2 {
		t.Fatalf("order = %+v, want completed two-card round", r.Order)
	}
	if r.Result == nil || !r.Result.Success {
		t.Fatalf("result = %+v, want success", r.Result)
	}
	if _, dealt := r.Deal.Numbers[bob.UID]; dealt {
		t.Fatalf("deal still contains departed player %s", bob.UID)
	}
}

func TestPlaceCardFullBoardIsNotSlotConflict(t *testing.T) {
	s, st, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	bob := mustJoin(t, s, host.RoomID, "bob")
	mustQuickStart(t, s, host.RoomID, host.Token, "qs1")

	err := st.RunRoomTx(context.Background(), host.RoomID, func(tx store.RoomTx) error {
		r := tx.Room()
		r.Order.Total = 1
		r.Order.Proposal = []string{bob.UID}
		tx.SetRoom(r)
		return nil
	})
	if err != nil {
		t.Fatalf("shrink board: %v", err)
	}

	if _, err := s.PlaceCard(context.Background(), PlaceRequest{RoomID: host.RoomID, Token: host.Token, TargetIndex: -1}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("append on full board err = %v, want invalid_request", err)
	}
	if _, err := s.PlaceCard(context.Background(), PlaceRequest{RoomID: host.RoomID, Token: host.Token, TargetIndex: 0}); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("occupied slot err = %v, want slot_taken", err)
	}
}

func TestSubmitSortedRequiresParticipant(t *testing.T) {
	s, _, _ := newTestService()
	host := mustCreate(t, s, game.ResolveSortSubmit)
	mustJoin(t, s, host.RoomID, "alice")
	mustQuickStart(t, s, host.RoomID, host.Token, "qs1")

	outsider := mustCreate(t, s, game.ResolveSortSubmit)
	r := roomDoc(t, s, host.RoomID)
	list := ascendingOrder(r)
	if _, err := s.SubmitSorted(context.Background(), SubmitRequest{RoomID: host.RoomID, Token: outsider.Token, List: list}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("outsider submit err = %v, want invalid_request", err)
	}

	// The round is untouched and still accepts the real submission.
	if _, err := s.SubmitSorted(context.Background(), SubmitRequest{RoomID: host.RoomID, Token: host.Token, List: list}); err != nil {
		t.Fatalf("participant submit: %v", err)
	}
}
