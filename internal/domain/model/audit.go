package model

import "time"

// Действия журнала аудита.
const (
	AuditCreateReservation = "create_reservation"
	AuditDeleteReservation = "delete_reservation"
	AuditCreateNode        = "create_node"
	AuditCreateDevice      = "create_device"
)

// Типы ресурсов журнала аудита.
const (
	ResourceReservation = "reservation"
	ResourceNode        = "node"
	ResourceDevice      = "device"
)

// AuditEntry — запись журнала аудита. Хранится в таблице audit_logs.
type AuditEntry struct {
	ID           string         `json:"id"`
	UserID       *string        `json:"user_id,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   *int64         `json:"resource_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
