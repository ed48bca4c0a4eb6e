package domain

import (
	"encoding/json"
	"time"
)

// CallSession - звонок в чате. В каждом чате не более одного активного.
type CallSession struct {
	ID              int64      `json:"id"`
	ChatID          int64      `json:"chatId"`
	HostUserID      int64      `json:"hostUserId"`
	StartedAt       time.Time  `json:"startedAt"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	LastHeartbeatAt time.Time  `json:"lastHeartbeatAt"`
	IsActive        bool       `json:"isActive"`
	EndReason       *string    `json:"endReason,omitempty"`
}

const (
	CallEndReasonHangup  = "hangup"
	CallEndReasonExpired = "expired"
)

// SignalKind - тип сигнального сообщения WebRTC
type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
)

func (k SignalKind) Valid() bool {
	switch k {
	case SignalOffer, SignalAnswer, SignalICECandidate:
		return true
	default:
		return false
	}
}

// Signal - конверт, который уходит в call/{chatId}. Payload не разбирается,
// пересылается как есть.
type Signal struct {
	ChatID   int64           `json:"chatId"`
	SenderID int64           `json:"senderId"`
	Kind     SignalKind      `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
}

// CallEvent - события жизненного цикла звонка в call/{chatId}
type CallEvent struct {
	Event string       `json:"event"`
	Call  *CallSession `json:"call"`
}

const (
	EventCallStarted = "call-started"
	EventCallEnded   = "call-ended"
)
