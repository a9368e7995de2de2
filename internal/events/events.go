// Package events publishes game lifecycle notifications to NATS so
// external consumers (stats collectors, announcement relays) can follow
// the bot without touching its database. The publisher is optional: a
// nil *Publisher is a no-op.
package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const (
	subjectGameStarted  = "svoyak.games.started"
	subjectGameFinished = "svoyak.games.finished"
	subjectGameAborted  = "svoyak.games.aborted"
)

// GameEvent is the JSON payload for every lifecycle subject.
type GameEvent struct {
	PlayChat int64     `json:"play_chat"`
	SetID    string    `json:"set_id,omitempty"`
	Players  []int64   `json:"players,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher wraps a NATS connection. Publishing never blocks game flow;
// failures are logged and dropped.
type Publisher struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

// Connect dials NATS with reconnect handling. Returns an error only
// when the initial connection fails.
func Connect(url string, logger zerolog.Logger) (*Publisher, error) {
	log := logger.With().Str("component", "events").Logger()
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}
	log.Info().Str("url", conn.ConnectedUrl()).Msg("nats connected")
	return &Publisher{conn: conn, logger: log}, nil
}

func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}

func (p *Publisher) publish(subject string, event GameEvent) {
	if p == nil || p.conn == nil {
		return
	}
	event.At = time.Now().UTC()
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("subject", subject).Msg("marshal event")
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("publish failed")
	}
}

func (p *Publisher) GameStarted(playChat int64, setID string, players []int64) {
	p.publish(subjectGameStarted, GameEvent{PlayChat: playChat, SetID: setID, Players: players})
}

func (p *Publisher) GameFinished(playChat int64) {
	p.publish(subjectGameFinished, GameEvent{PlayChat: playChat})
}

func (p *Publisher) GameAborted(playChat int64) {
	p.publish(subjectGameAborted, GameEvent{PlayChat: playChat})
}
