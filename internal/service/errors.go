// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrInvalidRequest — некорректный запрос (валидация).
	ErrInvalidRequest = errors.New("некорректный запрос")
	// ErrConflict — конфликт с существующим ресурсом.
	ErrConflict = errors.New("конфликт с существующим ресурсом")
	// ErrForbidden — недостаточно прав.
	ErrForbidden = errors.New("недостаточно прав")
)

// ConflictError — резервирование пересекается с существующим.
// ReservationID равен 0, если конфликтующее резервирование определить не удалось
// (проигрыш гонки, победитель уже удалён).
type ConflictError struct {
	ReservationID int64
}

func (e *ConflictError) Error() string {
	if e.ReservationID == 0 {
		return "резервирование пересекается с существующим"
	}
	return fmt.Sprintf("резервирование пересекается с существующим резервированием %d", e.ReservationID)
}

// Is позволяет сопоставлять ConflictError с ErrConflict через errors.Is.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// InvalidDevicesError — устройства не принадлежат узлу резервирования.
type InvalidDevicesError struct {
	NodeID    int64
	DeviceIDs []int64
}

func (e *InvalidDevicesError) Error() string {
	ids := make([]string, len(e.DeviceIDs))
	for i, id := range e.DeviceIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("устройства [%s] не принадлежат узлу %d", strings.Join(ids, ", "), e.NodeID)
}

// Is позволяет сопоставлять InvalidDevicesError с ErrInvalidRequest.
func (e *InvalidDevicesError) Is(target error) bool {
	return target == ErrInvalidRequest
}
