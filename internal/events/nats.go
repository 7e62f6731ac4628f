package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix antecede al tipo de evento: hellotasks.user.created.
const DefaultSubjectPrefix = "hellotasks"

// conn es el subconjunto de *nats.Conn que usamos.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publica eventos como JSON en core NATS.
type NATSPublisher struct {
	nc     conn
	prefix string
}

// NewNATSPublisher envuelve una conexión existente.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	return newNATSPublisher(nc, prefix)
}

func newNATSPublisher(nc conn, prefix string) *NATSPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Subject devuelve el subject para un tipo de evento.
func (p *NATSPublisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", ev.Type, err)
	}
	if err := p.nc.Publish(p.Subject(ev.Type), data); err != nil {
		return fmt.Errorf("events: publish %s: %w", ev.Type, err)
	}
	return nil
}

// Close drena la conexión (flush de lo pendiente).
func (p *NATSPublisher) Close() error { return p.nc.Drain() }

// Connect abre una conexión NATS reintentando con backoff exponencial
// hasta maxWait (el broker puede levantar después que el servicio).
func Connect(ctx context.Context, url, name string, maxWait time.Duration) (*nats.Conn, error) {
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxWait

	var nc *nats.Conn
	op := func() error {
		c, err := nats.Connect(url,
			nats.Name(name),
			nats.Timeout(2*time.Second),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			return err
		}
		nc = c
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("events: connect nats %s: %w", url, err)
	}
	return nc, nil
}
