// Пакет natsclient — публикация событий аудита в NATS.
package natsclient

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// ErrNotConnected — соединение закрыто.
var ErrNotConnected = errors.New("nats: соединение закрыто")

// Publisher — публикатор с автоматическим переподключением.
type Publisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewPublisher подключается к NATS по url. name — имя клиента в мониторинге NATS.
func NewPublisher(url, name string, logger *slog.Logger) (*Publisher, error) {
	logger = logger.With(slog.String("component", "nats"))

	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Соединение с NATS потеряно", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Соединение с NATS восстановлено", slog.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("подключение к NATS %s: %w", url, err)
	}
	logger.Info("Подключение к NATS установлено", slog.String("url", nc.ConnectedUrl()))

	return &Publisher{nc: nc, logger: logger}, nil
}

// Publish отправляет сообщение. Во время переподключения nats.go буферизует
// сообщения сам, поэтому ошибка возвращается только для закрытого соединения.
func (p *Publisher) Publish(subject string, data []byte) error {
	if p.nc == nil || p.nc.IsClosed() {
		return ErrNotConnected
	}
	return p.nc.Publish(subject, data)
}

// CheckReady — состояние соединения для /health/ready.
func (p *Publisher) CheckReady() (status string, message string) {
	if p.nc == nil {
		return "fail", "соединение не создано"
	}
	switch p.nc.Status() {
	case nats.CONNECTED:
		return "ok", "подключение активно"
	case nats.RECONNECTING:
		return "fail", "переподключение"
	default:
		return "fail", fmt.Sprintf("состояние %s", p.nc.Status())
	}
}

// Close дожидается отправки буфера и закрывает соединение.
func (p *Publisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("Ошибка drain NATS", slog.String("error", err.Error()))
	}
	p.nc.Close()
}
