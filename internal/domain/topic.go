package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// TopicKind - вид pub/sub адреса
type TopicKind string

const (
	TopicChat     TopicKind = "chat"
	TopicMessages TopicKind = "messages"
	TopicCall     TopicKind = "call"
)

func ChatTopic(chatID int64) string {
	return fmt.Sprintf("%s/%d", TopicChat, chatID)
}

// UserTopic - персональный топик уведомлений о новых сообщениях
func UserTopic(userID int64) string {
	return fmt.Sprintf("%s/%d", TopicMessages, userID)
}

func CallTopic(chatID int64) string {
	return fmt.Sprintf("%s/%d", TopicCall, chatID)
}

// ParseTopic разбирает "kind/{id}". Для неизвестного вида или
// нечислового id возвращает ok = false.
func ParseTopic(topic string) (TopicKind, int64, bool) {
	kind, rawID, found := strings.Cut(topic, "/")
	if !found {
		return "", 0, false
	}

	switch TopicKind(kind) {
	case TopicChat, TopicMessages, TopicCall:
	default:
		return "", 0, false
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, false
	}

	return TopicKind(kind), id, true
}
