package domain

import (
	"time"
)

const (
	ActorRoleMember = "member"
	ActorRoleHost   = "host"
	ActorRoleSystem = "system"
)

const (
	EventTypeCallStarted    = "CALL_STARTED"
	EventTypeCallEnded      = "CALL_ENDED"
	EventTypeCallExpired    = "CALL_EXPIRED"
	EventTypeMessageDeleted = "MESSAGE_DELETED"
)

// AuditEntry - запись журнала по событию внутри чата.
// Время проставляет база при вставке.
type AuditEntry struct {
	ID          int64        `json:"id"`
	EventTime   time.Time    `json:"eventTime"`
	ActorUserID *int64       `json:"actorUserId,omitempty"`
	ActorRole   string       `json:"actorRole"`
	ChatID      int64        `json:"chatId"`
	EventType   string       `json:"eventType"`
	Details     AuditDetails `json:"details"`
}

// AuditDetails хранится в audit_log.payload
type AuditDetails struct {
	CallID          *int64     `json:"callId,omitempty"`
	MessageID       *int64     `json:"messageId,omitempty"`
	EndReason       *string    `json:"endReason,omitempty"`
	LastHeartbeatAt *time.Time `json:"lastHeartbeatAt,omitempty"`
}

// CallAudit: без actor событие считается системным (истечение по heartbeat)
func CallAudit(eventType string, call *CallSession, actorUserID *int64) *AuditEntry {
	role := ActorRoleHost
	if actorUserID == nil {
		role = ActorRoleSystem
	}

	callID := call.ID
	details := AuditDetails{CallID: &callID, EndReason: call.EndReason}
	if eventType == EventTypeCallExpired {
		heartbeat := call.LastHeartbeatAt
		details.LastHeartbeatAt = &heartbeat
	}

	return &AuditEntry{
		ActorUserID: actorUserID,
		ActorRole:   role,
		ChatID:      call.ChatID,
		EventType:   eventType,
		Details:     details,
	}
}

func MessageDeletedAudit(message *Message, actorUserID int64) *AuditEntry {
	messageID := message.ID
	return &AuditEntry{
		ActorUserID: &actorUserID,
		ActorRole:   ActorRoleMember,
		ChatID:      message.ChatID,
		EventType:   EventTypeMessageDeleted,
		Details:     AuditDetails{MessageID: &messageID},
	}
}
