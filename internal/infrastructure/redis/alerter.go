package redis

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/skybridge/bookingd/internal/alerting"
)

// StreamAlerter delivers alerts to the operator alert stream, with the
// structured log as a fallback channel if the publish fails. Alert delivery
// never fails the operation that raised it.
type StreamAlerter struct {
	producer *StreamProducer
	logger   zerolog.Logger
}

// NewStreamAlerter creates a StreamAlerter.
func NewStreamAlerter(producer *StreamProducer, logger zerolog.Logger) *StreamAlerter {
	return &StreamAlerter{producer: producer, logger: logger}
}

func (a *StreamAlerter) Alert(ctx context.Context, alert alerting.Alert) error {
	err := a.producer.PublishAlert(ctx, alert.Kind, string(alert.Severity), alert.Message, alert.Fields)
	if err != nil {
		a.logger.Error().
			Err(err).
			Str("kind", alert.Kind).
			Str("severity", string(alert.Severity)).
			Fields(alert.Fields).
			Msg(alert.Message)
	}
	return nil
}
