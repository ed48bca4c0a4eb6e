package domain

// User - запись внешнего сервиса профилей. Gateway только читает её,
// чтобы сопоставить username из токена с id.
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	IsActive    bool   `json:"isActive"`
}
