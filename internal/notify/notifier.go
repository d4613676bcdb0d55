package notify

import (
	"github.com/aliuyar1234/projectportal/internal/teams"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var _ teams.Notifier = (*TeamNotifier)(nil)

// TeamNotifier implements teams.Notifier using the Hub.
type TeamNotifier struct {
	hub *Hub
}

func NewTeamNotifier(hub *Hub) *TeamNotifier {
	return &TeamNotifier{hub: hub}
}

func (n *TeamNotifier) InviteReceived(receiverID, inviteID, senderID uuid.UUID) {
	n.push(receiverID, EventTypeInviteReceived, InviteReceivedPayload{InviteID: inviteID, SenderID: senderID})
}

func (n *TeamNotifier) InviteResponded(senderID, inviteID uuid.UUID, status string, receiverID uuid.UUID) {
	n.push(senderID, EventTypeInviteResponded, InviteRespondedPayload{InviteID: inviteID, Status: status, ReceiverID: receiverID})
}

func (n *TeamNotifier) MemberLeft(memberID, leaverID uuid.UUID) {
	n.push(memberID, EventTypeMemberLeft, MemberLeftPayload{UserID: leaverID})
}

func (n *TeamNotifier) GroupLocked(memberID, groupID, finalTeamID uuid.UUID) {
	n.push(memberID, EventTypeGroupLocked, GroupLockedPayload{GroupID: groupID, FinalTeamID: finalTeamID})
}

func (n *TeamNotifier) push(userID uuid.UUID, eventType string, payload any) {
	evt, err := NewEvent(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("Failed to build notification")
		return
	}
	n.hub.Notify(userID, evt)
}
