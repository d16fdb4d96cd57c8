package model

import (
	"fmt"
	"time"
)

// ReservationType — тип резервирования.
type ReservationType string

const (
	// ReservationMachine — узел целиком, включая все текущие и будущие устройства.
	ReservationMachine ReservationType = "machine"
	// ReservationDevice — непустое подмножество устройств узла.
	ReservationDevice ReservationType = "device"
)

// ParseReservationType разбирает строковое представление типа.
func ParseReservationType(s string) (ReservationType, error) {
	switch t := ReservationType(s); t {
	case ReservationMachine, ReservationDevice:
		return t, nil
	default:
		return "", fmt.Errorf("неизвестный тип резервирования %q", s)
	}
}

// Reservation — резервирование узла или его устройств на полуинтервал [StartTime, EndTime).
// Хранится в таблицах reservations и reservation_devices.
type Reservation struct {
	ID        int64
	UserID    string
	NodeID    int64
	Type      ReservationType
	StartTime time.Time
	EndTime   time.Time
	// DeviceIDs — идентификаторы устройств, только для ReservationDevice
	DeviceIDs []int64
	// Devices — заполненные записи устройств (ответ API)
	Devices   []Device
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Overlaps сообщает, пересекается ли [start, end) с интервалом резервирования.
// Соседние интервалы (end == start) не пересекаются.
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.StartTime.Before(end) && start.Before(r.EndTime)
}

// ReservationFilter — параметры выборки резервирований.
// Окно: включается резервирование с EndTime > StartDate и StartTime < EndDate.
type ReservationFilter struct {
	UserID    *string
	NodeID    *int64
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}
