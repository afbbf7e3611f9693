package events

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"exchangeflow/logging"
)

// ErrNotConnected is returned when publishing on a closed or missing connection.
var ErrNotConnected = errors.New("events: nats not connected")

// Publisher sends exchange status events to NATS.
type Publisher struct {
	nc     *nats.Conn
	logger *zap.Logger
}

func NewPublisher(url string, logger *zap.Logger) (*Publisher, error) {
	logger = logging.OrNop(logger)
	opts := []nats.Option{
		nats.Name("exchangeflow"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, logger: logger}, nil
}

// Publish hands payload to the connection; delivery is at most once.
func (p *Publisher) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p == nil || p.nc == nil || p.nc.IsClosed() {
		return ErrNotConnected
	}
	return p.nc.Publish(subject, payload)
}

func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("nats drain", zap.Error(err))
	}
	p.nc.Close()
}
