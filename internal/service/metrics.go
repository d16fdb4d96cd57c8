// metrics.go — Prometheus-метрики сервисного слоя.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationsAdmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ss_reservations_admitted_total",
		Help: "Количество принятых резервирований.",
	}, []string{"type"})

	// source: detector — найден при проверке, constraint — отклонён ограничением БД
	reservationConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ss_reservation_conflicts_total",
		Help: "Количество отклонённых из-за пересечения резервирований.",
	}, []string{"source"})

	catalogCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ss_catalog_cache_hits_total",
		Help: "Попадания в кэш каталога узлов.",
	})
	catalogCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ss_catalog_cache_misses_total",
		Help: "Промахи кэша каталога узлов.",
	})

	auditDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ss_audit_dropped_total",
		Help: "Записи аудита, отброшенные из-за переполнения очереди.",
	})
)
