package alerting

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Severity tags an alert for routing by the operations tooling.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Alert kinds raised by the settlement and rotation subsystems.
const (
	KindSettlementReconcile = "settlement-reconciliation-required"
	KindRotationFailure     = "rotation-failure"
	KindRotationOverdue     = "overdue-rotation"
	KindEmergencyRotation   = "emergency-rotation"
)

// Alert is an operator-facing event. Fields carries enough context to act
// without consulting logs (settlement id, which side still holds a resource,
// service name, retry counts).
type Alert struct {
	Kind      string
	Severity  Severity
	Message   string
	Fields    map[string]any
	Timestamp time.Time
}

// Alerter delivers alerts to the operations channel.
type Alerter interface {
	Alert(ctx context.Context, alert Alert) error
}

// LogAlerter writes alerts to the structured log. It backs tests and local
// development where no alert stream is configured.
type LogAlerter struct {
	logger zerolog.Logger
}

// NewLogAlerter creates a LogAlerter.
func NewLogAlerter(logger zerolog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

func (a *LogAlerter) Alert(_ context.Context, alert Alert) error {
	evt := a.logger.Warn()
	if alert.Severity == SeverityHigh {
		evt = a.logger.Error()
	}
	evt.Str("kind", alert.Kind).
		Str("severity", string(alert.Severity)).
		Fields(alert.Fields).
		Msg(alert.Message)
	return nil
}
