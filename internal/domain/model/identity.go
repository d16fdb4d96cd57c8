package model

// Identity — аутентифицированный субъект запроса.
// Формируется middleware из JWT, передаётся в сервисы явно.
type Identity struct {
	// UserID — subject токена
	UserID string
	// Username — preferred_username (для логов)
	Username string
	// IsAdmin — права администратора
	IsAdmin bool
}
