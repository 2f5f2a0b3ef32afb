package sweep

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"rollguard/internal/cluster/models"
	"rollguard/internal/outbox"
)

const alertEventType = "cluster_flag_suspicious"

// Outbox accepts entries for asynchronous delivery.
type Outbox interface {
	Append(ctx context.Context, entry *outbox.Entry) error
}

// Dispatcher drains the scheduler's alert channel into the outbox.
type Dispatcher struct {
	alerts <-chan models.Alert
	outbox Outbox
	logger *slog.Logger
	now    func() time.Time
}

func NewDispatcher(alerts <-chan models.Alert, ob Outbox, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{alerts: alerts, outbox: ob, logger: logger, now: time.Now}
}

// Start forwards alerts until ctx is cancelled, then flushes whatever is
// already buffered.
func (d *Dispatcher) Start(ctx context.Context) error {
	for {
		select {
		case alert := <-d.alerts:
			if err := d.Dispatch(ctx, alert); err != nil {
				d.logger.ErrorContext(ctx, "failed to dispatch cluster alert", "flag_id", alert.FlagID.String(), "error", err)
			}
		case <-ctx.Done():
			d.flush()
			return nil
		}
	}
}

// Dispatch writes one alert to the outbox.
func (d *Dispatcher) Dispatch(ctx context.Context, alert models.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode cluster alert: %w", err)
	}
	entry := outbox.NewEntry(outbox.AggregateClusterAlert, alert.FlagID.String(), alertEventType, payload, d.now())
	if err := d.outbox.Append(ctx, entry); err != nil {
		return fmt.Errorf("append cluster alert: %w", err)
	}
	return nil
}

func (d *Dispatcher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case alert := <-d.alerts:
			if err := d.Dispatch(ctx, alert); err != nil {
				d.logger.ErrorContext(ctx, "failed to flush cluster alert", "flag_id", alert.FlagID.String(), "error", err)
			}
		default:
			return
		}
	}
}
