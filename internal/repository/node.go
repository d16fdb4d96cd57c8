package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xiaocunxcx/ServerSentinel/internal/domain/model"
)

// NodeRepository — доступ к таблицам nodes и devices.
type NodeRepository interface {
	// CreateNode создаёт узел. Дубликат имени или адреса — ErrConflict.
	CreateNode(ctx context.Context, n *model.Node) error
	// GetNode возвращает узел по id.
	GetNode(ctx context.Context, id int64) (*model.Node, error)
	// ListNodes возвращает страницу узлов, упорядоченных по id.
	ListNodes(ctx context.Context, limit, offset int) ([]*model.Node, error)
	// CountNodes возвращает общее количество узлов.
	CountNodes(ctx context.Context) (int, error)
	// AddDevice добавляет устройство. Узел не найден — ErrReference,
	// дубликат индекса — ErrConflict.
	AddDevice(ctx context.Context, d *model.Device) error
	// ListDevices возвращает устройства узла, упорядоченные по индексу.
	ListDevices(ctx context.Context, nodeID int64) ([]model.Device, error)
	// ListDevicesByNodes возвращает устройства набора узлов.
	ListDevicesByNodes(ctx context.Context, nodeIDs []int64) (map[int64][]model.Device, error)
}

type nodeRepo struct {
	db DBTX
}

// NewNodeRepository создаёт репозиторий каталога узлов.
func NewNodeRepository(db DBTX) NodeRepository {
	return &nodeRepo{db: db}
}

func (r *nodeRepo) CreateNode(ctx context.Context, n *model.Node) error {
	if n.SSHPort == 0 {
		n.SSHPort = 22
	}
	if n.Status == "" {
		n.Status = "offline"
	}

	query := `
		INSERT INTO nodes (name, ip_address, ssh_port, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query, n.Name, n.IPAddress, n.SSHPort, n.Status).
		Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: имя или адрес узла уже зарегистрированы", ErrConflict)
		}
		return fmt.Errorf("ошибка создания узла: %w", err)
	}
	return nil
}

func (r *nodeRepo) GetNode(ctx context.Context, id int64) (*model.Node, error) {
	query := `
		SELECT id, name, ip_address, ssh_port, status, created_at, updated_at
		FROM nodes
		WHERE id = $1`

	n := &model.Node{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&n.ID, &n.Name, &n.IPAddress, &n.SSHPort, &n.Status, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения узла: %w", err)
	}
	return n, nil
}

func (r *nodeRepo) ListNodes(ctx context.Context, limit, offset int) ([]*model.Node, error) {
	query := `
		SELECT id, name, ip_address, ssh_port, status, created_at, updated_at
		FROM nodes
		ORDER BY id
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка узлов: %w", err)
	}
	defer rows.Close()

	var result []*model.Node
	for rows.Next() {
		n := &model.Node{}
		if err := rows.Scan(
			&n.ID, &n.Name, &n.IPAddress, &n.SSHPort, &n.Status, &n.CreatedAt, &n.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования узла: %w", err)
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *nodeRepo) CountNodes(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта узлов: %w", err)
	}
	return count, nil
}

func (r *nodeRepo) AddDevice(ctx context.Context, d *model.Device) error {
	query := `
		INSERT INTO devices (node_id, device_index, model_name)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query, d.NodeID, d.DeviceIndex, d.ModelName).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return fmt.Errorf("%w: индекс устройства %d уже занят на узле %d", ErrConflict, d.DeviceIndex, d.NodeID)
		case isForeignKeyViolation(err):
			return fmt.Errorf("%w: узел %d", ErrReference, d.NodeID)
		}
		return fmt.Errorf("ошибка добавления устройства: %w", err)
	}
	return nil
}

func (r *nodeRepo) ListDevices(ctx context.Context, nodeID int64) ([]model.Device, error) {
	byNode, err := r.ListDevicesByNodes(ctx, []int64{nodeID})
	if err != nil {
		return nil, err
	}
	return byNode[nodeID], nil
}

func (r *nodeRepo) ListDevicesByNodes(ctx context.Context, nodeIDs []int64) (map[int64][]model.Device, error) {
	result := make(map[int64][]model.Device, len(nodeIDs))
	if len(nodeIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT id, node_id, device_index, model_name, created_at
		FROM devices
		WHERE node_id = ANY($1)
		ORDER BY node_id, device_index`

	rows, err := r.db.Query(ctx, query, nodeIDs)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения устройств: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d model.Device
		if err := rows.Scan(&d.ID, &d.NodeID, &d.DeviceIndex, &d.ModelName, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования устройства: %w", err)
		}
		result[d.NodeID] = append(result[d.NodeID], d)
	}
	return result, rows.Err()
}
