package netout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// AircraftEvent is the JSON payload published to the AMQP exchange: a
// flattened snapshot of one aircraft's current tracked state.
type AircraftEvent struct {
	Hex       string  `json:"hex"`
	Flight    string  `json:"flight,omitempty"`
	Lat       float64 `json:"lat,omitempty"`
	Lon       float64 `json:"lon,omitempty"`
	HasPos    bool    `json:"has_position"`
	Altitude  int     `json:"altitude"`
	Speed     int     `json:"speed,omitempty"`
	Track     int     `json:"track,omitempty"`
	Squawk    string  `json:"squawk,omitempty"`
	Messages  int64   `json:"messages"`
	Timestamp int64   `json:"timestamp"`
}

// AMQPSink publishes AircraftEvents to a fanout exchange, reconnecting
// its channel automatically if the broker closes it — the same
// reconnect-on-NotifyClose pattern the pack's AMQP updater uses.
type AMQPSink struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *logrus.Logger
}

// DialAMQPSink connects to the broker at url and declares a fanout
// exchange named exchange.
func DialAMQPSink(ctx context.Context, url, exchange string, log *logrus.Logger) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to AMQP broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open AMQP channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", false, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare AMQP exchange: %w", err)
	}

	s := &AMQPSink{conn: conn, ch: ch, exchange: exchange, log: log}

	closures := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, open := <-closures:
				if !open {
					return
				}
				log.WithError(err).Warn("amqp channel closed, reopening channel")
				newCh, chErr := conn.Channel()
				if chErr != nil {
					log.WithError(chErr).Error("failed to reopen amqp channel")
					continue
				}
				s.ch = newCh
				closures = newCh.NotifyClose(make(chan *amqp.Error, 1))
			}
		}
	}()

	return s, nil
}

// Publish marshals ev and publishes it to the sink's exchange. A
// publish failure is logged and otherwise swallowed: one bad AMQP
// publish must never block or crash the decode pipeline feeding it.
func (s *AMQPSink) Publish(ev AircraftEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		s.log.WithError(err).Error("failed to marshal aircraft event")
		return
	}

	msg := amqp.Publishing{
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now(),
		ContentType:  "application/json",
		Body:         body,
	}
	if err := s.ch.Publish(s.exchange, "", false, false, msg); err != nil {
		s.log.WithError(err).Error("failed to publish aircraft event")
	}
}

// Close shuts down the sink's channel and connection.
func (s *AMQPSink) Close() error {
	s.ch.Close()
	return s.conn.Close()
}
