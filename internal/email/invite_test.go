package email

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rallyhq/courtside/internal/models"
)

type capturedSend struct {
	recipient string
	subject   string
	body      string
}

type mockSender struct {
	sent chan capturedSend
}

func newMockSender() *mockSender {
	return &mockSender{sent: make(chan capturedSend, 1)}
}

func (m *mockSender) Send(ctx context.Context, recipient, subject, body string) error {
	m.sent <- capturedSend{recipient: recipient, subject: subject, body: body}
	return nil
}

type staticSessions map[int64]models.Session

func (s staticSessions) Session(id int64) (models.Session, bool) {
	sess, ok := s[id]
	return sess, ok
}

func TestBuildInviteEmail(t *testing.T) {
	invite := BuildInviteEmail(InviteDetails{
		PlayerName:   "Alex",
		SessionName:  "Thursday Doubles",
		LocationName: "Riverside Courts",
	})

	if invite.Subject != "You've been added to Thursday Doubles" {
		t.Errorf("subject = %q", invite.Subject)
	}
	if !strings.Contains(invite.Body, "Hi Alex,") {
		t.Errorf("body missing greeting: %q", invite.Body)
	}
	if !strings.Contains(invite.Body, "Location: Riverside Courts") {
		t.Errorf("body missing location: %q", invite.Body)
	}
}

func TestBuildInviteEmail_Defaults(t *testing.T) {
	invite := BuildInviteEmail(InviteDetails{})

	if invite.Subject != "You've been added to a session" {
		t.Errorf("subject = %q", invite.Subject)
	}
	if !strings.Contains(invite.Body, "Hi there,") {
		t.Errorf("body = %q, want fallback greeting", invite.Body)
	}
	if strings.Contains(invite.Body, "Location:") {
		t.Errorf("body = %q, want no location line", invite.Body)
	}
}

func TestInviteNotifier_SendsToParticipant(t *testing.T) {
	sender := newMockSender()
	sessions := staticSessions{7: {ID: 7, Name: "Monday Mixer"}}
	n := NewInviteNotifier(sender, sessions)

	n.ParticipantInvited(context.Background(), 7, models.Participant{
		PlayerID: 42,
		Name:     "Alex",
		Email:    "alex@example.com",
	})

	select {
	case got := <-sender.sent:
		if got.recipient != "alex@example.com" {
			t.Errorf("recipient = %q", got.recipient)
		}
		if !strings.Contains(got.subject, "Monday Mixer") {
			t.Errorf("subject = %q, want session name", got.subject)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("invite email was never sent")
	}
}

func TestInviteNotifier_SkipsWithoutEmail(t *testing.T) {
	sender := newMockSender()
	n := NewInviteNotifier(sender, nil)

	n.ParticipantInvited(context.Background(), 7, models.Participant{PlayerID: 42, Name: "Alex"})

	select {
	case got := <-sender.sent:
		t.Fatalf("unexpected send to %q", got.recipient)
	case <-time.After(50 * time.Millisecond):
	}
}
