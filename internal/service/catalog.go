// catalog.go — каталог узлов и устройств.
//
// Чтение идёт через expirable LRU (ключ — id узла, значение — узел с устройствами).
// Изменения каталога (создание узла, добавление устройства) инвалидируют запись.
// Кэш локален для экземпляра сервиса: другой экземпляр увидит новое устройство
// после истечения TTL, поэтому проверка принадлежности устройств перед отказом
// перечитывает узел из БД (RefreshNode).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xiaocunxcx/ServerSentinel/internal/domain/model"
	"github.com/xiaocunxcx/ServerSentinel/internal/repository"
)

// CatalogService — реестр узлов и их устройств.
type CatalogService struct {
	repo   repository.NodeRepository
	cache  *expirable.LRU[int64, model.NodeWithDevices]
	audit  AuditRecorder
	logger *slog.Logger
}

// NewCatalogService создаёт сервис каталога с кэшем на cacheSize узлов и временем жизни ttl.
// audit может быть nil.
func NewCatalogService(
	repo repository.NodeRepository,
	cacheSize int,
	ttl time.Duration,
	audit AuditRecorder,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		repo:   repo,
		cache:  expirable.NewLRU[int64, model.NodeWithDevices](cacheSize, nil, ttl),
		audit:  audit,
		logger: logger.With(slog.String("component", "catalog")),
	}
}

// cloneEntry копирует запись, чтобы вызывающий не мог изменить содержимое кэша.
func cloneEntry(e model.NodeWithDevices) *model.NodeWithDevices {
	out := model.NodeWithDevices{Node: e.Node}
	if e.Devices != nil {
		out.Devices = append([]model.Device(nil), e.Devices...)
	}
	return &out
}

// GetNode возвращает узел с устройствами. Неизвестный узел — ErrNotFound.
func (s *CatalogService) GetNode(ctx context.Context, id int64) (*model.NodeWithDevices, error) {
	if e, ok := s.cache.Get(id); ok {
		catalogCacheHitsTotal.Inc()
		return cloneEntry(e), nil
	}
	catalogCacheMissesTotal.Inc()
	return s.RefreshNode(ctx, id)
}

// GetNodeDevices возвращает устройства узла.
func (s *CatalogService) GetNodeDevices(ctx context.Context, nodeID int64) ([]model.Device, error) {
	e, err := s.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	return e.Devices, nil
}

// RefreshNode перечитывает узел из БД в обход кэша и обновляет кэш.
func (s *CatalogService) RefreshNode(ctx context.Context, id int64) (*model.NodeWithDevices, error) {
	node, err := s.repo.GetNode(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.cache.Remove(id)
			return nil, fmt.Errorf("%w: узел %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("получение узла %d: %w", id, err)
	}

	devices, err := s.repo.ListDevices(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("получение устройств узла %d: %w", id, err)
	}

	e := model.NodeWithDevices{Node: *node, Devices: devices}
	s.cache.Add(id, e)
	return cloneEntry(e), nil
}

// CreateNodeParams — параметры нового узла.
type CreateNodeParams struct {
	Name      string
	IPAddress string
	// SSHPort — 0 означает порт по умолчанию (22)
	SSHPort int
	Status  string
}

// CreateNode регистрирует узел. Дубликат имени или адреса — ErrConflict.
func (s *CatalogService) CreateNode(ctx context.Context, actor model.Identity, clientIP string, p CreateNodeParams) (*model.Node, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.IPAddress = strings.TrimSpace(p.IPAddress)
	if p.Name == "" || p.IPAddress == "" {
		return nil, fmt.Errorf("%w: имя и адрес узла обязательны", ErrInvalidRequest)
	}
	if p.SSHPort < 0 || p.SSHPort > 65535 {
		return nil, fmt.Errorf("%w: ssh_port вне диапазона 1-65535", ErrInvalidRequest)
	}

	node := &model.Node{Name: p.Name, IPAddress: p.IPAddress, SSHPort: p.SSHPort, Status: p.Status}
	if err := s.repo.CreateNode(ctx, node); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: узел с именем %q или адресом %q уже существует", ErrConflict, p.Name, p.IPAddress)
		}
		return nil, fmt.Errorf("создание узла: %w", err)
	}
	s.cache.Remove(node.ID)

	s.logger.Info("Узел зарегистрирован",
		slog.Int64("node_id", node.ID),
		slog.String("name", node.Name),
		slog.String("ip_address", node.IPAddress),
	)

	s.record(model.AuditEntry{
		UserID:       auditUser(actor),
		Action:       model.AuditCreateNode,
		ResourceType: model.ResourceNode,
		ResourceID:   &node.ID,
		Details: map[string]any{
			"name":       node.Name,
			"ip_address": node.IPAddress,
			"ssh_port":   node.SSHPort,
		},
		IPAddress: clientIP,
	})
	return node, nil
}

// AddDevice добавляет устройство к узлу. Узел не найден — ErrNotFound,
// занятый индекс — ErrConflict.
func (s *CatalogService) AddDevice(ctx context.Context, actor model.Identity, clientIP string, nodeID int64, index int, modelName *string) (*model.Device, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: device_index должен быть >= 0", ErrInvalidRequest)
	}
	if modelName != nil && strings.TrimSpace(*modelName) == "" {
		modelName = nil
	}

	d := &model.Device{NodeID: nodeID, DeviceIndex: index, ModelName: modelName}
	if err := s.repo.AddDevice(ctx, d); err != nil {
		switch {
		case errors.Is(err, repository.ErrReference):
			return nil, fmt.Errorf("%w: узел %d", ErrNotFound, nodeID)
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%w: устройство с индексом %d уже есть на узле %d", ErrConflict, index, nodeID)
		}
		return nil, fmt.Errorf("добавление устройства: %w", err)
	}
	s.cache.Remove(nodeID)

	s.logger.Info("Устройство добавлено",
		slog.Int64("node_id", nodeID),
		slog.Int64("device_id", d.ID),
		slog.Int("device_index", index),
	)

	details := map[string]any{"node_id": nodeID, "device_index": index}
	if modelName != nil {
		details["model_name"] = *modelName
	}
	s.record(model.AuditEntry{
		UserID:       auditUser(actor),
		Action:       model.AuditCreateDevice,
		ResourceType: model.ResourceDevice,
		ResourceID:   &d.ID,
		Details:      details,
		IPAddress:    clientIP,
	})
	return d, nil
}

// ListNodes возвращает страницу узлов с устройствами и общее количество.
func (s *CatalogService) ListNodes(ctx context.Context, limit, offset int) ([]*model.NodeWithDevices, int, error) {
	nodes, err := s.repo.ListNodes(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("получение списка узлов: %w", err)
	}
	total, err := s.repo.CountNodes(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт узлов: %w", err)
	}

	ids := make([]int64, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	devices, err := s.repo.ListDevicesByNodes(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("получение устройств: %w", err)
	}

	result := make([]*model.NodeWithDevices, len(nodes))
	for i, n := range nodes {
		result[i] = &model.NodeWithDevices{Node: *n, Devices: devices[n.ID]}
	}
	return result, total, nil
}

func (s *CatalogService) record(e model.AuditEntry) {
	if s.audit != nil {
		s.audit.Record(e)
	}
}
