// audit.go — асинхронная запись журнала аудита.
//
// Record кладёт запись в ограниченную очередь и никогда не блокирует вызывающего:
// при переполнении запись отбрасывается (WARN + ss_audit_dropped_total).
// Фоновый обработчик сохраняет записи в audit_logs и, если задан публикатор,
// отправляет JSON в NATS. Ошибки только логируются: аудит не влияет на
// результат основной операции.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/xiaocunxcx/ServerSentinel/internal/domain/model"
	"github.com/xiaocunxcx/ServerSentinel/internal/repository"
)

// AuditRecorder — приёмник записей аудита.
type AuditRecorder interface {
	Record(e model.AuditEntry)
}

// EventPublisher — публикация событий во внешнюю шину.
type EventPublisher interface {
	Publish(subject string, data []byte) error
}

// drainTimeout — время на дозапись очереди при остановке.
const drainTimeout = 5 * time.Second

// AuditService — фоновый писатель журнала аудита.
type AuditService struct {
	repo      repository.AuditLogRepository
	publisher EventPublisher
	subject   string
	queue     chan model.AuditEntry
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewAuditService создаёт сервис аудита с очередью размера buffer.
// publisher может быть nil — тогда события только сохраняются в БД.
func NewAuditService(
	repo repository.AuditLogRepository,
	publisher EventPublisher,
	subject string,
	buffer int,
	logger *slog.Logger,
) *AuditService {
	return &AuditService{
		repo:      repo,
		publisher: publisher,
		subject:   subject,
		queue:     make(chan model.AuditEntry, buffer),
		logger:    logger.With(slog.String("component", "audit")),
	}
}

// Record ставит запись в очередь. Заполняет ID и CreatedAt, если они пусты.
func (s *AuditService) Record(e model.AuditEntry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	select {
	case s.queue <- e:
	default:
		auditDroppedTotal.Inc()
		s.logger.Warn("Очередь аудита переполнена, запись отброшена",
			slog.String("action", e.Action),
			slog.String("resource_type", e.ResourceType),
		)
	}
}

// Start запускает фоновый обработчик очереди.
func (s *AuditService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.logger.Info("Обработчик аудита запущен", slog.Int("buffer", cap(s.queue)))

		// Остановка не должна обрывать уже начатую запись
		writeCtx := context.WithoutCancel(ctx)

		for {
			select {
			case <-ctx.Done():
				s.drain()
				s.logger.Info("Обработчик аудита остановлен")
				return
			case e := <-s.queue:
				s.write(writeCtx, e)
			}
		}
	}()
}

// Stop останавливает обработчик, дописав оставшиеся в очереди записи.
func (s *AuditService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// drain дописывает записи, оставшиеся в очереди на момент остановки.
func (s *AuditService) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case e := <-s.queue:
			s.write(ctx, e)
		default:
			return
		}
	}
}

func (s *AuditService) write(ctx context.Context, e model.AuditEntry) {
	if err := s.repo.Insert(ctx, &e); err != nil {
		s.logger.Error("Ошибка записи аудита",
			slog.String("action", e.Action),
			slog.String("error", err.Error()),
		)
	}

	if s.publisher == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		s.logger.Error("Ошибка сериализации события аудита", slog.String("error", err.Error()))
		return
	}
	if err := s.publisher.Publish(s.subject, data); err != nil {
		s.logger.Warn("Ошибка публикации события аудита",
			slog.String("subject", s.subject),
			slog.String("error", err.Error()),
		)
	}
}

// auditUser возвращает указатель на id субъекта или nil для системных действий.
func auditUser(id model.Identity) *string {
	if id.UserID == "" {
		return nil
	}
	u := id.UserID
	return &u
}
