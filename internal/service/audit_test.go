package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xiaocunxcx/ServerSentinel/internal/domain/model"
)

func TestAuditService_PersistsAndPublishes(t *testing.T) {
	repo := &fakeAuditRepo{}
	pub := &fakePublisher{}
	svc := NewAuditService(repo, pub, "sentinel.audit", 16, testLogger())
	svc.Start(context.Background())

	rid := int64(5)
	for i := 0; i < 3; i++ {
		svc.Record(model.AuditEntry{
			Action:       model.AuditCreateReservation,
			ResourceType: model.ResourceReservation,
			ResourceID:   &rid,
		})
	}
	svc.Stop()

	entries := repo.all()
	if len(entries) != 3 {
		t.Fatalf("сохранено %d записей, ожидали 3", len(entries))
	}
	if entries[0].ID == "" || entries[0].CreatedAt.IsZero() {
		t.Errorf("ID и CreatedAt не заполнены: %+v", entries[0])
	}
	if entries[0].ID == entries[1].ID {
		t.Error("ID записей совпадают")
	}

	if len(pub.payloads) != 3 || pub.subjects[0] != "sentinel.audit" {
		t.Fatalf("опубликовано %d событий", len(pub.payloads))
	}
	var decoded model.AuditEntry
	if err := json.Unmarshal(pub.payloads[0], &decoded); err != nil {
		t.Fatalf("событие не JSON: %v", err)
	}
	if decoded.Action != model.AuditCreateReservation || *decoded.ResourceID != 5 {
		t.Errorf("событие = %+v", decoded)
	}
}

func TestAuditService_DropsWhenFull(t *testing.T) {
	repo := &fakeAuditRepo{}
	svc := NewAuditService(repo, nil, "", 1, testLogger())
	before := testutil.ToFloat64(auditDroppedTotal)

	// Обработчик не запущен: в очередь помещается одна запись
	for i := 0; i < 3; i++ {
		svc.Record(model.AuditEntry{Action: model.AuditDeleteReservation, ResourceType: model.ResourceReservation})
	}
	if got := testutil.ToFloat64(auditDroppedTotal) - before; got != 2 {
		t.Errorf("отброшено %v записей, ожидали 2", got)
	}

	svc.Start(context.Background())
	svc.Stop()
	if n := len(repo.all()); n != 1 {
		t.Errorf("сохранено %d записей, ожидали 1", n)
	}
}

func TestAuditService_StoreErrorDoesNotStop(t *testing.T) {
	repo := &fakeAuditRepo{err: errors.New("БД недоступна")}
	pub := &fakePublisher{}
	svc := NewAuditService(repo, pub, "s", 4, testLogger())
	svc.Start(context.Background())

	svc.Record(model.AuditEntry{Action: model.AuditCreateNode, ResourceType: model.ResourceNode})
	svc.Stop()

	// Запись в БД не удалась, публикация всё равно выполнена
	if len(pub.payloads) != 1 {
		t.Errorf("опубликовано %d событий, ожидали 1", len(pub.payloads))
	}
}
