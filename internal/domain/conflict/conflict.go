// Пакет conflict — чистая функция обнаружения конфликтов резервирований.
// Без ввода-вывода и состояния: результат зависит только от аргументов.
package conflict

import (
	"time"

	"github.com/xiaocunxcx/ServerSentinel/internal/domain/model"
)

// Request — кандидат на резервирование.
type Request struct {
	NodeID    int64
	Type      model.ReservationType
	Start     time.Time
	End       time.Time
	DeviceIDs []int64
}

// wholeNode сообщает, занимает ли запрос узел целиком.
// DEVICE-запрос с пустым набором сюда не доходит (отсекается валидацией),
// но если дошёл, трактуется как весь узел.
func (r Request) wholeNode() bool {
	return r.Type != model.ReservationDevice || len(r.DeviceIDs) == 0
}

// Find возвращает первое существующее резервирование, с которым конфликтует req,
// или nil. existing может содержать резервирования других узлов и
// непересекающиеся по времени: они отбрасываются.
//
// Порядок проверки кандидата:
//  1. кандидат MACHINE — конфликт;
//  2. запрос MACHINE — конфликт;
//  3. иначе конфликт, если наборы устройств пересекаются.
func Find(req Request, existing []model.Reservation) *model.Reservation {
	var requested map[int64]struct{}
	if !req.wholeNode() {
		requested = make(map[int64]struct{}, len(req.DeviceIDs))
		for _, id := range req.DeviceIDs {
			requested[id] = struct{}{}
		}
	}

	for i := range existing {
		cand := &existing[i]
		if cand.NodeID != req.NodeID || !cand.Overlaps(req.Start, req.End) {
			continue
		}
		if cand.Type != model.ReservationDevice || len(cand.DeviceIDs) == 0 {
			return cand
		}
		if requested == nil {
			return cand
		}
		for _, id := range cand.DeviceIDs {
			if _, ok := requested[id]; ok {
				return cand
			}
		}
	}
	return nil
}
