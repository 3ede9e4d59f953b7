package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	natsMaxReconnects  = 10
	natsReconnectWait  = 2 * time.Second
	defaultSubjectRoot = "pairwise"
)

type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

func ConnectNATS(url, prefix string) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("pairwise"),
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Str("module", "events.nats").Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("module", "events.nats").Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Str("module", "events.nats").Msg("NATS error")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("events: connect to NATS: %w", err)
	}
	log.Info().Str("module", "events.nats").Str("url", nc.ConnectedUrl()).Msg("NATS connected")
	return &NATSPublisher{nc: nc, prefix: prefix}, nil
}

// Subject returns <prefix>.room.<type>.
func Subject(prefix string, t Type) string {
	if prefix == "" {
		prefix = defaultSubjectRoot
	}
	return prefix + ".room." + string(t)
}

func (p *NATSPublisher) Publish(_ context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "events.nats").Msg("marshal event")
		return
	}
	if err := p.nc.Publish(Subject(p.prefix, ev.Type), data); err != nil {
		log.Warn().Err(err).Str("module", "events.nats").Str("room", string(ev.Room)).Str("type", string(ev.Type)).Msg("publish event")
	}
}

// Close flushes pending events before closing the connection.
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		log.Warn().Err(err).Str("module", "events.nats").Msg("drain")
		p.nc.Close()
	}
}
