package repository

import (
	"context"
	"fmt"

	"github.com/xiaocunxcx/ServerSentinel/internal/domain/model"
)

// AuditLogRepository — запись в журнал аудита.
type AuditLogRepository interface {
	// Insert сохраняет запись. ID и CreatedAt должны быть заполнены.
	Insert(ctx context.Context, e *model.AuditEntry) error
	// ListByResource возвращает последние записи по ресурсу.
	ListByResource(ctx context.Context, resourceType string, resourceID int64, limit int) ([]*model.AuditEntry, error)
}

type auditLogRepo struct {
	db DBTX
}

// NewAuditLogRepository создаёт репозиторий журнала аудита.
func NewAuditLogRepository(db DBTX) AuditLogRepository {
	return &auditLogRepo{db: db}
}

func (r *auditLogRepo) Insert(ctx context.Context, e *model.AuditEntry) error {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}

	var ip *string
	if e.IPAddress != "" {
		ip = &e.IPAddress
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, details, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.UserID, e.Action, e.ResourceType, e.ResourceID, details, ip, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка записи аудита: %w", err)
	}
	return nil
}

func (r *auditLogRepo) ListByResource(ctx context.Context, resourceType string, resourceID int64, limit int) ([]*model.AuditEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id::text, user_id, action, resource_type, resource_id, details, COALESCE(ip_address, ''), created_at
		FROM audit_logs
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY created_at DESC
		LIMIT $3`, resourceType, resourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения аудита: %w", err)
	}
	defer rows.Close()

	var result []*model.AuditEntry
	for rows.Next() {
		e := &model.AuditEntry{}
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID, &e.Details, &e.IPAddress, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования аудита: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
