package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/upvault/vaultd/internal/domain"
)

// Watcher subscribes to the vault event channel on the signal bus and turns
// selected events into operator notifications.
type Watcher struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewWatcher creates a Watcher delivering through notifier.
func NewWatcher(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Watcher {
	return &Watcher{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_watcher")),
	}
}

// busEvent mirrors the JSON envelope published by the event recorder.
type busEvent struct {
	VaultID string         `json:"vault_id"`
	Type    string         `json:"type"`
	Detail  map[string]any `json:"detail"`
}

// Run consumes vault events until ctx is cancelled. Call in a goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	msgCh, err := w.bus.Subscribe(ctx, "vault:events")
	if err != nil {
		return fmt.Errorf("notify: subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-msgCh:
			if !ok {
				return nil
			}
			w.handle(ctx, data)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, data []byte) {
	var evt busEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		w.logger.WarnContext(ctx, "notify: bad event payload",
			slog.String("error", err.Error()),
		)
		return
	}

	title, message, ok := formatEvent(evt)
	if !ok {
		return
	}
	if err := w.notifier.Notify(ctx, evt.Type, title, message); err != nil {
		w.logger.WarnContext(ctx, "notify: delivery failed",
			slog.String("type", evt.Type),
			slog.String("error", err.Error()),
		)
	}
}

// formatEvent renders a notification for event types operators care about.
// All other events return ok=false and are skipped.
func formatEvent(evt busEvent) (title, message string, ok bool) {
	switch evt.Type {
	case "TradeDone":
		return "Trade settled",
			fmt.Sprintf("vault %s: %v %v -> %v",
				evt.VaultID, evt.Detail["Direction"], evt.Detail["AmountIn"], evt.Detail["AmountOut"]),
			true
	case "Deposited":
		return "Deposit",
			fmt.Sprintf("vault %s: %v deposited %v (%v shares)",
				evt.VaultID, evt.Detail["Depositor"], evt.Detail["Amount"], evt.Detail["SharesMinted"]),
			true
	case "Withdrawn":
		return "Withdrawal",
			fmt.Sprintf("vault %s: %v withdrew %v (%v shares)",
				evt.VaultID, evt.Detail["Withdrawer"], evt.Detail["Amount"], evt.Detail["SharesBurned"]),
			true
	case "StrategistUpdated":
		return "Strategist changed",
			fmt.Sprintf("vault %s: new strategist %v", evt.VaultID, evt.Detail["Strategist"]),
			true
	default:
		return "", "", false
	}
}
