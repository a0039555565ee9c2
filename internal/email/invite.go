// Package email notifies players by email when an organizer adds them to
// a session, delivered through AWS SESv2.
package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rallyhq/courtside/internal/models"
)

const inviteEmailTimeout = 5 * time.Second

// InviteEmail is a composed invite notification.
type InviteEmail struct {
	Subject string
	Body    string
}

// InviteDetails feeds the invite template.
type InviteDetails struct {
	PlayerName   string
	SessionName  string
	LocationName string
}

// BuildInviteEmail composes the notification sent when a player is added
// to a session's roster.
func BuildInviteEmail(details InviteDetails) InviteEmail {
	playerName := strings.TrimSpace(details.PlayerName)
	if playerName == "" {
		playerName = "there"
	}
	sessionName := strings.TrimSpace(details.SessionName)
	if sessionName == "" {
		sessionName = "a session"
	}

	subject := fmt.Sprintf("You've been added to %s", sessionName)

	lines := []string{
		fmt.Sprintf("Hi %s,", playerName),
		"",
		fmt.Sprintf("You've been added to %s.", sessionName),
	}
	if location := strings.TrimSpace(details.LocationName); location != "" {
		lines = append(lines, fmt.Sprintf("Location: %s", location))
	}
	lines = append(lines, "", "See you on the court!")

	return InviteEmail{
		Subject: subject,
		Body:    strings.Join(lines, "\n"),
	}
}

// SessionNamer resolves a session's display name for the invite subject.
type SessionNamer interface {
	Session(id int64) (models.Session, bool)
}

// InviteNotifier delivers invite emails off the caller's critical path.
// It plugs into the roster engine's notification hook; a participant
// without an email address is skipped silently.
type InviteNotifier struct {
	sender   Sender
	sessions SessionNamer
}

// NewInviteNotifier wires a notifier over the given sender. sessions may
// be nil; the invite then omits the session name.
func NewInviteNotifier(sender Sender, sessions SessionNamer) *InviteNotifier {
	return &InviteNotifier{sender: sender, sessions: sessions}
}

// ParticipantInvited composes and sends the invite asynchronously. Send
// failures are logged and never propagate; an invite email is best
// effort.
func (n *InviteNotifier) ParticipantInvited(ctx context.Context, sessionID int64, p models.Participant) {
	if n == nil || n.sender == nil {
		return
	}
	recipient := strings.TrimSpace(p.Email)
	if recipient == "" {
		return
	}

	details := InviteDetails{
		PlayerName:   p.Name,
		LocationName: p.LocationName,
	}
	if n.sessions != nil {
		if s, ok := n.sessions.Session(sessionID); ok {
			details.SessionName = s.Name
		}
	}
	invite := BuildInviteEmail(details)

	logger := log.Ctx(ctx).With().
		Str("component", "invite_notifier").
		Int64("session_id", sessionID).
		Int64("player_id", p.PlayerID).
		Logger()

	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), inviteEmailTimeout)
		defer cancel()
		if err := n.sender.Send(sendCtx, recipient, invite.Subject, invite.Body); err != nil {
			logger.Error().Err(err).Str("recipient", recipient).Msg("Failed to send invite email")
		}
	}()
}
