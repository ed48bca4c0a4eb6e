package domain

import (
	"time"
)

// Chat - контейнер переписки (личной или групповой). Физически не удаляется,
// только деактивируется через IsActive.
type Chat struct {
	ID        int64     `json:"id"`
	IsGroup   bool      `json:"isGroup"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	IsActive  bool      `json:"isActive"`
}

type ChatMember struct {
	ChatID   int64     `json:"chatId"`
	UserID   int64     `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
	IsAdmin  bool      `json:"isAdmin"`
	IsActive bool      `json:"isActive"`
}

// ChatSummary - элемент списка чатов пользователя
type ChatSummary struct {
	Chat
	UnreadCount int64    `json:"unreadCount"`
	LastMessage *Message `json:"lastMessage,omitempty"`
}
