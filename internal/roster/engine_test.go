package roster

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rallyhq/courtside/internal/models"
)

type rosterBackend struct {
	mu          sync.Mutex
	inviteCalls int32
	removeCalls int32
	batchCalls  int32
	inviteErr   error
	removeErr   error
	inviteGate    chan struct{} // when set, InviteToSession blocks until closed
	inviteStarted chan struct{} // closed when the first invite call begins
	startedOnce   sync.Once
	server        map[int64][]models.Participant
}

func newRosterBackend() *rosterBackend {
	return &rosterBackend{server: make(map[int64][]models.Participant)}
}

func (b *rosterBackend) GetSessionParticipants(ctx context.Context, sessionID int64) ([]models.Participant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Participant, len(b.server[sessionID]))
	copy(out, b.server[sessionID])
	return out, nil
}

func (b *rosterBackend) InviteToSession(ctx context.Context, sessionID, playerID int64) error {
	atomic.AddInt32(&b.inviteCalls, 1)
	if b.inviteStarted != nil {
		b.startedOnce.Do(func() { close(b.inviteStarted) })
	}
	if b.inviteGate != nil {
		<-b.inviteGate
	}
	return b.inviteErr
}

func (b *rosterBackend) InviteToSessionBatch(ctx context.Context, sessionID int64, playerIDs []int64) error {
	atomic.AddInt32(&b.batchCalls, 1)
	return b.inviteErr
}

func (b *rosterBackend) RemoveSessionParticipant(ctx context.Context, sessionID, playerID int64) error {
	atomic.AddInt32(&b.removeCalls, 1)
	return b.removeErr
}

type detailErr struct{ detail string }

func (e *detailErr) Error() string       { return "api error: " + e.detail }
func (e *detailErr) ErrorDetail() string { return e.detail }

func player(id int64) models.Participant {
	return models.Participant{PlayerID: id, Name: "Player"}
}

func TestAddParticipant_Optimistic(t *testing.T) {
	backend := newRosterBackend()
	backend.inviteGate = make(chan struct{})
	backend.inviteStarted = make(chan struct{})
	e := NewEngine(backend, KeepOptimistic, nil)

	done := make(chan error, 1)
	go func() { done <- e.AddParticipant(context.Background(), 1, player(42)) }()
	<-backend.inviteStarted

	// The local roster must reflect the add before the remote call
	// resolves.
	if got := e.Roster(1); len(got) != 1 || got[0].PlayerID != 42 {
		t.Errorf("roster mid-flight = %v, want optimistic entry for 42", got)
	}

	close(backend.inviteGate)
	if err := <-done; err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	if !e.Mutated(1) {
		t.Error("successful add should mark the session mutated")
	}
}

func TestAddParticipant_DuplicateInFlightSuppressed(t *testing.T) {
	backend := newRosterBackend()
	backend.inviteGate = make(chan struct{})
	backend.inviteStarted = make(chan struct{})
	e := NewEngine(backend, KeepOptimistic, nil)

	first := make(chan error, 1)
	go func() { first <- e.AddParticipant(context.Background(), 1, player(42)) }()

	// Wait until the first call has claimed the in-flight key.
	<-backend.inviteStarted

	// The rapid second call must be ignored entirely.
	if err := e.AddParticipant(context.Background(), 1, player(42)); err != nil {
		t.Fatalf("suppressed duplicate returned error: %v", err)
	}

	close(backend.inviteGate)
	if err := <-first; err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}

	if calls := atomic.LoadInt32(&backend.inviteCalls); calls != 1 {
		t.Errorf("invite calls = %d, want exactly 1", calls)
	}
	if got := e.Roster(1); len(got) != 1 {
		t.Errorf("roster has %d entries, want 1", len(got))
	}
}

func TestAddParticipant_FailurePolicies(t *testing.T) {
	tests := []struct {
		name       string
		policy     AddFailurePolicy
		wantRoster int
	}{
		{"keep optimistic", KeepOptimistic, 1},
		{"rollback", RollbackOnFailure, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newRosterBackend()
			backend.inviteErr = &detailErr{detail: "player is already a participant"}
			e := NewEngine(backend, tt.policy, nil)

			err := e.AddParticipant(context.Background(), 1, player(42))
			if err == nil {
				t.Fatal("AddParticipant should surface the rejection")
			}
			var rerr *Error
			if !errors.As(err, &rerr) {
				t.Fatalf("error type = %T, want *roster.Error", err)
			}
			if rerr.Message != "Player is already in the session" {
				t.Errorf("message = %q, want classified message", rerr.Message)
			}
			if got := e.Roster(1); len(got) != tt.wantRoster {
				t.Errorf("roster size after failure = %d, want %d", len(got), tt.wantRoster)
			}
			if e.Mutated(1) {
				t.Error("failed add must not mark the session mutated")
			}
		})
	}
}

func TestRemoveParticipant_KeepsOptimisticRemovalOnFailure(t *testing.T) {
	backend := newRosterBackend()
	backend.server[1] = []models.Participant{player(42)}
	backend.removeErr = &detailErr{detail: "player has games in this session"}

	e := NewEngine(backend, KeepOptimistic, nil)
	if err := e.LoadRoster(context.Background(), 1); err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}

	err := e.RemoveParticipant(context.Background(), 1, 42)
	if err == nil {
		t.Fatal("RemoveParticipant should surface the rejection")
	}
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("error type = %T, want *roster.Error", err)
	}
	if rerr.Message != "Cannot remove this player: they have recorded games in this session" {
		t.Errorf("message = %q, want has-games classification", rerr.Message)
	}
	// The optimistic removal stays; the caller decides whether to reload.
	if got := e.Roster(1); len(got) != 0 {
		t.Errorf("roster = %v, want optimistic removal kept", got)
	}
}

func TestRemoveParticipant_NetworkErrorGetsGenericMessage(t *testing.T) {
	backend := newRosterBackend()
	backend.removeErr = errors.New("connection refused")
	e := NewEngine(backend, KeepOptimistic, nil)

	err := e.RemoveParticipant(context.Background(), 1, 42)
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("error type = %T, want *roster.Error", err)
	}
	if rerr.Message != GenericFailureMessage {
		t.Errorf("message = %q, want generic fallback for detail-less failure", rerr.Message)
	}
}

func TestAutoJoin_OncePerVisit(t *testing.T) {
	backend := newRosterBackend()
	e := NewEngine(backend, KeepOptimistic, nil)
	e.BeginVisit(1)

	attempted, err := e.AutoJoin(context.Background(), 1, player(7), models.StatusActive)
	if err != nil || !attempted {
		t.Fatalf("first AutoJoin = (%v, %v), want attempted without error", attempted, err)
	}

	// Re-fired initialization for the same visit must not join again.
	attempted, err = e.AutoJoin(context.Background(), 1, player(7), models.StatusActive)
	if err != nil || attempted {
		t.Errorf("second AutoJoin = (%v, %v), want suppressed", attempted, err)
	}
	if calls := atomic.LoadInt32(&backend.inviteCalls); calls != 1 {
		t.Errorf("invite calls = %d, want exactly 1 per visit", calls)
	}
}

func TestAutoJoin_Conditions(t *testing.T) {
	tests := []struct {
		name   string
		self   models.Participant
		status models.SessionStatus
	}{
		{"no player identity", models.Participant{}, models.StatusActive},
		{"session not active", player(7), models.StatusSubmitted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newRosterBackend()
			e := NewEngine(backend, KeepOptimistic, nil)
			e.BeginVisit(1)

			attempted, err := e.AutoJoin(context.Background(), 1, tt.self, tt.status)
			if attempted || err != nil {
				t.Errorf("AutoJoin = (%v, %v), want no attempt", attempted, err)
			}
		})
	}
}

func TestAutoJoin_AlreadyInRoster(t *testing.T) {
	backend := newRosterBackend()
	backend.server[1] = []models.Participant{player(7)}
	e := NewEngine(backend, KeepOptimistic, nil)
	e.BeginVisit(1)
	if err := e.LoadRoster(context.Background(), 1); err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}

	attempted, err := e.AutoJoin(context.Background(), 1, player(7), models.StatusActive)
	if attempted || err != nil {
		t.Errorf("AutoJoin for rostered player = (%v, %v), want no attempt", attempted, err)
	}
}

func TestAutoJoin_RetryAfterFailure(t *testing.T) {
	backend := newRosterBackend()
	backend.inviteErr = errors.New("network down")
	e := NewEngine(backend, RollbackOnFailure, nil)
	e.BeginVisit(1)

	if attempted, err := e.AutoJoin(context.Background(), 1, player(7), models.StatusActive); !attempted || err == nil {
		t.Fatalf("AutoJoin = (%v, %v), want attempted failure", attempted, err)
	}

	// The guard resets on failure so the next render can retry.
	backend.inviteErr = nil
	attempted, err := e.AutoJoin(context.Background(), 1, player(7), models.StatusActive)
	if !attempted || err != nil {
		t.Errorf("retry AutoJoin = (%v, %v), want attempted success", attempted, err)
	}
}

func TestBeginVisit_ResetsGuards(t *testing.T) {
	backend := newRosterBackend()
	e := NewEngine(backend, KeepOptimistic, nil)
	e.BeginVisit(1)

	if _, err := e.AutoJoin(context.Background(), 1, player(7), models.StatusActive); err != nil {
		t.Fatalf("AutoJoin: %v", err)
	}
	if !e.Mutated(1) {
		t.Fatal("join should mark mutated")
	}

	// A new visit to the same session id starts clean.
	e.BeginVisit(1)
	if e.Mutated(1) {
		t.Error("BeginVisit should clear the mutated flag")
	}
}

func TestInviteMany(t *testing.T) {
	backend := newRosterBackend()
	e := NewEngine(backend, KeepOptimistic, nil)

	err := e.InviteMany(context.Background(), 1, []models.Participant{player(1), player(2), player(3)})
	if err != nil {
		t.Fatalf("InviteMany: %v", err)
	}
	if calls := atomic.LoadInt32(&backend.batchCalls); calls != 1 {
		t.Errorf("batch calls = %d, want 1", calls)
	}
	if got := e.Roster(1); len(got) != 3 {
		t.Errorf("roster size = %d, want 3", len(got))
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	invited []int64
}

func (n *recordingNotifier) ParticipantInvited(ctx context.Context, sessionID int64, p models.Participant) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.invited = append(n.invited, p.PlayerID)
}

func TestAddParticipant_NotifiesOnSuccessOnly(t *testing.T) {
	backend := newRosterBackend()
	notifier := &recordingNotifier{}
	e := NewEngine(backend, KeepOptimistic, notifier)

	if err := e.AddParticipant(context.Background(), 1, player(5)); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}

	backend.inviteErr = &detailErr{detail: "player not found"}
	if err := e.AddParticipant(context.Background(), 1, player(6)); err == nil {
		t.Fatal("expected rejection")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.invited) != 1 || notifier.invited[0] != 5 {
		t.Errorf("notified = %v, want [5]", notifier.invited)
	}
}
