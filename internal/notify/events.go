package notify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types pushed to clients.
const (
	EventTypeInviteReceived  = "invite_received"
	EventTypeInviteResponded = "invite_responded"
	EventTypeMemberLeft      = "member_left"
	EventTypeGroupLocked     = "group_locked"
	EventTypePong            = "pong"
)

// EventTypePing is the only event a client sends.
const EventTypePing = "ping"

// Event is the envelope for every WebSocket message.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

type InviteReceivedPayload struct {
	InviteID uuid.UUID `json:"invite_id"`
	SenderID uuid.UUID `json:"sender_id"`
}

type InviteRespondedPayload struct {
	InviteID   uuid.UUID `json:"invite_id"`
	Status     string    `json:"status"`
	ReceiverID uuid.UUID `json:"receiver_id"`
}

type MemberLeftPayload struct {
	UserID uuid.UUID `json:"user_id"`
}

type GroupLockedPayload struct {
	GroupID     uuid.UUID `json:"group_id"`
	FinalTeamID uuid.UUID `json:"final_team_id"`
}

// NewEvent creates a server→client event stamped with the current time.
func NewEvent(eventType string, payload any) (*Event, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return &Event{
		Type:      eventType,
		Payload:   data,
		Timestamp: time.Now().Unix(),
	}, nil
}
