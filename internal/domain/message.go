package domain

import (
	"strconv"
	"time"
)

// MessageType - тип сообщения (typeId на проводе)
type MessageType int

const (
	MessageTypeText   MessageType = 1
	MessageTypeImage  MessageType = 2
	MessageTypeVideo  MessageType = 3
	MessageTypeAudio  MessageType = 4
	MessageTypeFile   MessageType = 5
	MessageTypeSystem MessageType = 6
)

func (t MessageType) Valid() bool {
	return t >= MessageTypeText && t <= MessageTypeSystem
}

// IsMedia - типы, которым нужен mediaUrl
func (t MessageType) IsMedia() bool {
	switch t {
	case MessageTypeImage, MessageTypeVideo, MessageTypeAudio, MessageTypeFile:
		return true
	default:
		return false
	}
}

func (t MessageType) String() string {
	switch t {
	case MessageTypeText:
		return "text"
	case MessageTypeImage:
		return "image"
	case MessageTypeVideo:
		return "video"
	case MessageTypeAudio:
		return "audio"
	case MessageTypeFile:
		return "file"
	case MessageTypeSystem:
		return "system"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// StatusValue - состояние доставки сообщения для конкретного получателя
type StatusValue string

const (
	StatusUnread StatusValue = "unread"
	StatusRead   StatusValue = "read"
)

// Message - неизменяемая запись сообщения. Единственная мутация -
// мягкое удаление (IsActive = false).
type Message struct {
	ID        int64        `json:"id"`
	ChatID    int64        `json:"chatId"`
	SenderID  int64        `json:"senderId"`
	TypeID    MessageType  `json:"typeId"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"createdAt"`
	MediaURL  *string      `json:"mediaUrl,omitempty"`
	MediaType *string      `json:"mediaType,omitempty"`
	Status    *StatusValue `json:"status,omitempty"`
	IsActive  bool         `json:"-"`
}

// MessageStatus - отметка о прочтении: одна строка на (сообщение, получатель)
type MessageStatus struct {
	MessageID int64       `json:"messageId"`
	UserID    int64       `json:"userId"`
	Status    StatusValue `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
}

// MessageDeleted - событие мягкого удаления, рассылается в chat/{chatId}
type MessageDeleted struct {
	Event     string `json:"event"`
	MessageID int64  `json:"messageId"`
	ChatID    int64  `json:"chatId"`
}

const EventMessageDeleted = "message-deleted"
