// reservations.go — допуск, чтение и удаление резервирований.
//
// Порядок допуска:
//  1. тип и интервал (end > start) — ErrInvalidRequest;
//  2. узел существует — ErrNotFound;
//  3. DEVICE: непустой набор устройств узла — ErrInvalidRequest / InvalidDevicesError;
//  4. в одной транзакции: чтение пересечений, детектор, вставка — ConflictError;
//  5. проигрыш гонки отклоняется ограничениями БД и тоже превращается в ConflictError.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/xiaocunxcx/ServerSentinel/internal/domain/conflict"
	"github.com/xiaocunxcx/ServerSentinel/internal/domain/model"
	"github.com/xiaocunxcx/ServerSentinel/internal/domain/rbac"
	"github.com/xiaocunxcx/ServerSentinel/internal/repository"
)

// Ограничения пагинации списков.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// NodeCatalog — чтение каталога узлов для допуска.
type NodeCatalog interface {
	GetNode(ctx context.Context, id int64) (*model.NodeWithDevices, error)
	RefreshNode(ctx context.Context, id int64) (*model.NodeWithDevices, error)
}

// ReservationService — сервис резервирований.
type ReservationService struct {
	repo    repository.ReservationRepository
	catalog NodeCatalog
	audit   AuditRecorder
	logger  *slog.Logger
}

// NewReservationService создаёт сервис резервирований. audit может быть nil.
func NewReservationService(
	repo repository.ReservationRepository,
	catalog NodeCatalog,
	audit AuditRecorder,
	logger *slog.Logger,
) *ReservationService {
	return &ReservationService{
		repo:    repo,
		catalog: catalog,
		audit:   audit,
		logger:  logger.With(slog.String("component", "reservations")),
	}
}

// CreateReservationRequest — запрос на резервирование.
type CreateReservationRequest struct {
	NodeID    int64
	Type      string
	StartTime time.Time
	EndTime   time.Time
	// DeviceIDs — только для типа device; для machine игнорируется
	DeviceIDs []int64
}

// Create проверяет и атомарно сохраняет резервирование от имени actor.
func (s *ReservationService) Create(ctx context.Context, actor model.Identity, clientIP string, req CreateReservationRequest) (*model.Reservation, error) {
	typ, err := model.ParseReservationType(req.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, fmt.Errorf("%w: end_time должен быть позже start_time", ErrInvalidRequest)
	}

	node, err := s.catalog.GetNode(ctx, req.NodeID)
	if err != nil {
		return nil, err
	}

	res := &model.Reservation{
		UserID:    actor.UserID,
		NodeID:    req.NodeID,
		Type:      typ,
		StartTime: req.StartTime.UTC(),
		EndTime:   req.EndTime.UTC(),
	}

	if typ == model.ReservationDevice {
		devices, err := s.resolveDevices(ctx, node, req.DeviceIDs)
		if err != nil {
			return nil, err
		}
		res.Devices = devices
		res.DeviceIDs = make([]int64, len(devices))
		for i, d := range devices {
			res.DeviceIDs[i] = d.ID
		}
	}

	creq := conflict.Request{
		NodeID:    res.NodeID,
		Type:      res.Type,
		Start:     res.StartTime,
		End:       res.EndTime,
		DeviceIDs: res.DeviceIDs,
	}

	hit, err := s.repo.Admit(ctx, res, func(existing []model.Reservation) *model.Reservation {
		return conflict.Find(creq, existing)
	})
	switch {
	case err == nil && hit != nil:
		reservationConflictsTotal.WithLabelValues("detector").Inc()
		s.logger.Info("Резервирование отклонено: пересечение",
			slog.Int64("node_id", res.NodeID),
			slog.String("user_id", actor.UserID),
			slog.Int64("conflicting_reservation_id", hit.ID),
		)
		return nil, &ConflictError{ReservationID: hit.ID}

	case errors.Is(err, repository.ErrConflict):
		reservationConflictsTotal.WithLabelValues("constraint").Inc()
		cerr := &ConflictError{ReservationID: s.lookupWinner(ctx, creq)}
		s.logger.Info("Резервирование отклонено ограничением БД",
			slog.Int64("node_id", res.NodeID),
			slog.String("user_id", actor.UserID),
			slog.Int64("conflicting_reservation_id", cerr.ReservationID),
		)
		return nil, cerr

	case errors.Is(err, repository.ErrReference):
		// Устройство удалено или перенесено между проверкой и вставкой
		_, _ = s.catalog.RefreshNode(ctx, res.NodeID)
		return nil, fmt.Errorf("%w: устройства не принадлежат узлу %d", ErrInvalidRequest, res.NodeID)

	case err != nil:
		return nil, fmt.Errorf("создание резервирования: %w", err)
	}

	reservationsAdmittedTotal.WithLabelValues(string(res.Type)).Inc()
	s.logger.Info("Резервирование создано",
		slog.Int64("reservation_id", res.ID),
		slog.Int64("node_id", res.NodeID),
		slog.String("type", string(res.Type)),
		slog.String("user_id", actor.UserID),
		slog.Time("start_time", res.StartTime),
		slog.Time("end_time", res.EndTime),
	)

	s.record(actor, clientIP, model.AuditCreateReservation, res)
	return res, nil
}

// resolveDevices проверяет, что запрошенные устройства принадлежат узлу,
// и возвращает их записи в порядке индексов. Повторяющиеся id схлопываются.
// Перед отказом узел перечитывается из БД: кэш мог не знать о новом устройстве.
func (s *ReservationService) resolveDevices(ctx context.Context, node *model.NodeWithDevices, ids []int64) ([]model.Device, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: для типа device нужен непустой device_ids", ErrInvalidRequest)
	}

	wanted := slices.Clone(ids)
	slices.Sort(wanted)
	wanted = slices.Compact(wanted)

	missing := missingDevices(node, wanted)
	if len(missing) > 0 {
		fresh, err := s.catalog.RefreshNode(ctx, node.Node.ID)
		if err != nil {
			return nil, err
		}
		node = fresh
		missing = missingDevices(node, wanted)
	}
	if len(missing) > 0 {
		return nil, &InvalidDevicesError{NodeID: node.Node.ID, DeviceIDs: missing}
	}

	result := make([]model.Device, 0, len(wanted))
	for _, d := range node.Devices {
		if _, ok := slices.BinarySearch(wanted, d.ID); ok {
			result = append(result, d)
		}
	}
	return result, nil
}

// missingDevices возвращает id из sorted, которых нет на узле.
func missingDevices(node *model.NodeWithDevices, sorted []int64) []int64 {
	var missing []int64
	for _, id := range sorted {
		if !node.HasDevice(id) {
			missing = append(missing, id)
		}
	}
	return missing
}

// lookupWinner повторно ищет конфликтующее резервирование после отказа БД.
// Результат не гарантирован: победитель мог быть уже удалён.
func (s *ReservationService) lookupWinner(ctx context.Context, req conflict.Request) int64 {
	existing, err := s.repo.FindOverlapping(ctx, req.NodeID, req.Start, req.End)
	if err != nil {
		s.logger.Warn("Не удалось определить конфликтующее резервирование",
			slog.String("error", err.Error()),
		)
		return 0
	}
	if hit := conflict.Find(req, existing); hit != nil {
		return hit.ID
	}
	return 0
}

// Get возвращает резервирование владельцу или администратору.
func (s *ReservationService) Get(ctx context.Context, actor model.Identity, id int64) (*model.Reservation, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: резервирование %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("получение резервирования: %w", err)
	}
	if !rbac.CanAccessReservation(actor, res.UserID) {
		return nil, fmt.Errorf("%w: резервирование принадлежит другому пользователю", ErrForbidden)
	}
	return res, nil
}

// ListParams — фильтры списка резервирований.
type ListParams struct {
	UserID    *string
	NodeID    *int64
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// List возвращает страницу резервирований и общее количество.
// Обычный пользователь видит только свои: без user_id фильтр подставляется,
// чужой user_id — ErrForbidden.
func (s *ReservationService) List(ctx context.Context, actor model.Identity, p ListParams) ([]*model.Reservation, int, error) {
	if p.Limit < 1 || p.Limit > MaxLimit {
		return nil, 0, fmt.Errorf("%w: limit должен быть в диапазоне 1-%d", ErrInvalidRequest, MaxLimit)
	}
	if p.Offset < 0 {
		return nil, 0, fmt.Errorf("%w: offset должен быть >= 0", ErrInvalidRequest)
	}
	if p.StartDate != nil && p.EndDate != nil && !p.EndDate.After(*p.StartDate) {
		return nil, 0, fmt.Errorf("%w: end_date должен быть позже start_date", ErrInvalidRequest)
	}

	if p.UserID == nil && !actor.IsAdmin {
		own := actor.UserID
		p.UserID = &own
	}
	if p.UserID != nil && !rbac.CanListForUser(actor, *p.UserID) {
		return nil, 0, fmt.Errorf("%w: просмотр резервирований другого пользователя", ErrForbidden)
	}

	f := model.ReservationFilter{
		UserID:    p.UserID,
		NodeID:    p.NodeID,
		StartDate: p.StartDate,
		EndDate:   p.EndDate,
		Limit:     p.Limit,
		Offset:    p.Offset,
	}
	items, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("получение списка резервирований: %w", err)
	}
	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт резервирований: %w", err)
	}
	return items, total, nil
}

// ListMine возвращает резервирования самого actor.
func (s *ReservationService) ListMine(ctx context.Context, actor model.Identity, p ListParams) ([]*model.Reservation, int, error) {
	own := actor.UserID
	p.UserID = &own
	return s.List(ctx, actor, p)
}

// Delete удаляет резервирование. Разрешено владельцу и администратору.
func (s *ReservationService) Delete(ctx context.Context, actor model.Identity, clientIP string, id int64) error {
	res, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("удаление резервирования: %w", err)
	}
	if !deleted {
		return fmt.Errorf("%w: резервирование %d", ErrNotFound, id)
	}

	s.logger.Info("Резервирование удалено",
		slog.Int64("reservation_id", id),
		slog.String("user_id", actor.UserID),
		slog.Bool("by_admin", actor.UserID != res.UserID),
	)

	s.record(actor, clientIP, model.AuditDeleteReservation, res)
	return nil
}

func (s *ReservationService) record(actor model.Identity, clientIP, action string, res *model.Reservation) {
	if s.audit == nil {
		return
	}

	details := map[string]any{
		"node_id":    res.NodeID,
		"type":       string(res.Type),
		"start_time": res.StartTime.Format(time.RFC3339),
		"end_time":   res.EndTime.Format(time.RFC3339),
	}
	if len(res.DeviceIDs) > 0 {
		details["device_ids"] = res.DeviceIDs
	}
	if res.UserID != actor.UserID {
		details["owner_id"] = res.UserID
	}

	id := res.ID
	s.audit.Record(model.AuditEntry{
		UserID:       auditUser(actor),
		Action:       action,
		ResourceType: model.ResourceReservation,
		ResourceID:   &id,
		Details:      details,
		IPAddress:    clientIP,
	})
}
