package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xiaocunxcx/ServerSentinel/internal/domain/model"
)

// DecideFunc получает пересекающиеся по времени резервирования узла
// и возвращает конфликтующее или nil.
type DecideFunc func(existing []model.Reservation) *model.Reservation

// ReservationRepository — хранилище резервирований и их устройств.
type ReservationRepository interface {
	// Admit в одной транзакции читает пересекающиеся резервирования узла,
	// вызывает decide и, если конфликта нет, вставляет r вместе со связями устройств.
	// При конфликте возвращает конфликтующее резервирование и ничего не пишет.
	// Проигравшая параллельная вставка отклоняется ограничениями БД — ErrConflict.
	Admit(ctx context.Context, r *model.Reservation, decide DecideFunc) (*model.Reservation, error)
	// FindOverlapping возвращает резервирования узла, пересекающие [start, end).
	FindOverlapping(ctx context.Context, nodeID int64, start, end time.Time) ([]model.Reservation, error)
	// GetByID возвращает резервирование с устройствами.
	GetByID(ctx context.Context, id int64) (*model.Reservation, error)
	// List возвращает страницу резервирований по фильтру.
	List(ctx context.Context, f model.ReservationFilter) ([]*model.Reservation, error)
	// Count возвращает количество резервирований по фильтру (без пагинации).
	Count(ctx context.Context, f model.ReservationFilter) (int, error)
	// Delete удаляет резервирование (связи удаляются каскадно).
	// Возвращает false, если записи не было.
	Delete(ctx context.Context, id int64) (bool, error)
}

type reservationRepo struct {
	db DB
	tx *TxRunner
}

// NewReservationRepository создаёт репозиторий резервирований.
func NewReservationRepository(db DB) ReservationRepository {
	return &reservationRepo{db: db, tx: NewTxRunner(db)}
}

// reservationSelect читает резервирование вместе с устройствами одним запросом,
// поэтому строка и её связи всегда берутся из одного снимка.
const reservationSelect = `
	SELECT r.id, r.user_id, r.node_id, r.type, r.start_time, r.end_time,
		r.created_at, r.updated_at,
		COALESCE(dv.ids, '{}'), COALESCE(dv.idx, '{}'), COALESCE(dv.models, '{}')
	FROM reservations r
	LEFT JOIN LATERAL (
		SELECT array_agg(d.id ORDER BY d.device_index) AS ids,
			array_agg(d.device_index ORDER BY d.device_index) AS idx,
			array_agg(d.model_name ORDER BY d.device_index) AS models
		FROM reservation_devices rd
		JOIN devices d ON d.id = rd.device_id
		WHERE rd.reservation_id = r.id
	) dv ON true`

func scanReservation(row pgx.Row) (*model.Reservation, error) {
	var (
		res     model.Reservation
		typ     string
		ids     []int64
		indexes []int32
		models  []*string
	)
	if err := row.Scan(
		&res.ID, &res.UserID, &res.NodeID, &typ, &res.StartTime, &res.EndTime,
		&res.CreatedAt, &res.UpdatedAt, &ids, &indexes, &models,
	); err != nil {
		return nil, err
	}
	res.Type = model.ReservationType(typ)
	if len(ids) > 0 {
		res.DeviceIDs = ids
		res.Devices = make([]model.Device, len(ids))
		for i, id := range ids {
			res.Devices[i] = model.Device{ID: id, NodeID: res.NodeID, DeviceIndex: int(indexes[i]), ModelName: models[i]}
		}
	}
	return &res, nil
}

func collectReservations(rows pgx.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	var result []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования резервирования: %w", err)
		}
		result = append(result, *res)
	}
	return result, rows.Err()
}

func findOverlapping(ctx context.Context, db DBTX, nodeID int64, start, end time.Time) ([]model.Reservation, error) {
	query := reservationSelect + `
		WHERE r.node_id = $1 AND r.start_time < $3 AND r.end_time > $2
		ORDER BY r.start_time, r.id`

	rows, err := db.Query(ctx, query, nodeID, start, end)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска пересечений: %w", err)
	}
	return collectReservations(rows)
}

func (r *reservationRepo) FindOverlapping(ctx context.Context, nodeID int64, start, end time.Time) ([]model.Reservation, error) {
	return findOverlapping(ctx, r.db, nodeID, start, end)
}

func (r *reservationRepo) Admit(ctx context.Context, res *model.Reservation, decide DecideFunc) (*model.Reservation, error) {
	var conflicting *model.Reservation

	err := r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		existing, err := findOverlapping(ctx, tx, res.NodeID, res.StartTime, res.EndTime)
		if err != nil {
			return err
		}
		if conflicting = decide(existing); conflicting != nil {
			return nil
		}

		query := `
			INSERT INTO reservations (user_id, node_id, type, start_time, end_time)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at, updated_at`

		err = tx.QueryRow(ctx, query,
			res.UserID, res.NodeID, string(res.Type), res.StartTime, res.EndTime,
		).Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt)
		if err != nil {
			return classify(err, "ошибка создания резервирования")
		}

		if res.Type != model.ReservationDevice {
			return nil
		}

		// node_id и period копируются из только что вставленной строки
		tag, err := tx.Exec(ctx, `
			INSERT INTO reservation_devices (reservation_id, device_id, node_id, period)
			SELECT r.id, d.device_id, r.node_id, r.period
			FROM reservations r
			CROSS JOIN unnest($2::bigint[]) AS d(device_id)
			WHERE r.id = $1`, res.ID, res.DeviceIDs)
		if err != nil {
			return classify(err, "ошибка привязки устройств")
		}
		if int(tag.RowsAffected()) != len(res.DeviceIDs) {
			return fmt.Errorf("привязано %d устройств из %d", tag.RowsAffected(), len(res.DeviceIDs))
		}
		return nil
	})
	if err != nil {
		res.ID = 0
		return nil, err
	}
	return conflicting, nil
}

func (r *reservationRepo) GetByID(ctx context.Context, id int64) (*model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRow(ctx, reservationSelect+` WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения резервирования: %w", err)
	}
	return res, nil
}

// buildFilter формирует WHERE по фильтру. Окно дат полуоткрытое:
// end_time > start_date и start_time < end_date.
func buildFilter(f model.ReservationFilter) (string, []any) {
	var conditions []string
	var args []any
	argNum := 1

	if f.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("r.user_id = $%d", argNum))
		args = append(args, *f.UserID)
		argNum++
	}
	if f.NodeID != nil {
		conditions = append(conditions, fmt.Sprintf("r.node_id = $%d", argNum))
		args = append(args, *f.NodeID)
		argNum++
	}
	if f.StartDate != nil {
		conditions = append(conditions, fmt.Sprintf("r.end_time > $%d", argNum))
		args = append(args, *f.StartDate)
		argNum++
	}
	if f.EndDate != nil {
		conditions = append(conditions, fmt.Sprintf("r.start_time < $%d", argNum))
		args = append(args, *f.EndDate)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func (r *reservationRepo) List(ctx context.Context, f model.ReservationFilter) ([]*model.Reservation, error) {
	where, args := buildFilter(f)
	argNum := len(args) + 1

	query := fmt.Sprintf(`%s
		%s
		ORDER BY r.start_time, r.id
		LIMIT $%d OFFSET $%d`, reservationSelect, where, argNum, argNum+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка резервирований: %w", err)
	}
	list, err := collectReservations(rows)
	if err != nil {
		return nil, err
	}

	result := make([]*model.Reservation, len(list))
	for i := range list {
		result[i] = &list[i]
	}
	return result, nil
}

func (r *reservationRepo) Count(ctx context.Context, f model.ReservationFilter) (int, error) {
	where, args := buildFilter(f)

	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM reservations r `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта резервирований: %w", err)
	}
	return count, nil
}

func (r *reservationRepo) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления резервирования: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
