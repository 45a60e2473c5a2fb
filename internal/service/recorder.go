package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/upvault/vaultd/internal/domain"
)

// Channel names used on the signal bus.
const (
	ChannelEvents = "vault:events"
	ChannelTrades = "vault:trades"
	StreamEvents  = "vault:events:stream"
)

// Recorder implements domain.EventSink. Every emitted event is persisted to
// the event journal and published as JSON on the signal bus so subscribers
// (WebSocket hub, notifiers) never have to poll vault state.
type Recorder struct {
	events domain.VaultEventStore
	bus    domain.SignalBus
	logger *slog.Logger
}

var _ domain.EventSink = (*Recorder)(nil)

// NewRecorder creates a Recorder. The bus may be nil, in which case events
// are only persisted.
func NewRecorder(events domain.VaultEventStore, bus domain.SignalBus, logger *slog.Logger) *Recorder {
	return &Recorder{
		events: events,
		bus:    bus,
		logger: logger.With(slog.String("component", "recorder")),
	}
}

// busEnvelope is the JSON wire format published on the signal bus.
type busEnvelope struct {
	VaultID   string         `json:"vault_id"`
	Type      string         `json:"type"`
	Detail    map[string]any `json:"detail"`
	EmittedAt time.Time      `json:"emitted_at"`
}

// Emit records evt for vaultID. Failures are logged and never propagated:
// the accounting operation that produced the event has already committed.
func (r *Recorder) Emit(ctx context.Context, vaultID string, evt domain.Event) {
	detail := eventDetail(evt)
	emittedAt := time.Now().UTC()

	if err := r.events.Insert(ctx, domain.VaultEvent{
		VaultID:   vaultID,
		Type:      evt.EventType(),
		Detail:    detail,
		EmittedAt: emittedAt,
	}); err != nil {
		r.logger.ErrorContext(ctx, "recorder: persist event failed",
			slog.String("vault_id", vaultID),
			slog.String("type", evt.EventType()),
			slog.String("error", err.Error()),
		)
	}

	if r.bus == nil {
		return
	}

	payload, err := json.Marshal(busEnvelope{
		VaultID:   vaultID,
		Type:      evt.EventType(),
		Detail:    detail,
		EmittedAt: emittedAt,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "recorder: marshal event failed",
			slog.String("type", evt.EventType()),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := r.bus.Publish(ctx, ChannelEvents, payload); err != nil {
		r.logger.WarnContext(ctx, "recorder: publish event failed",
			slog.String("type", evt.EventType()),
			slog.String("error", err.Error()),
		)
	}
	if err := r.bus.StreamAppend(ctx, StreamEvents, payload); err != nil {
		r.logger.WarnContext(ctx, "recorder: stream append failed",
			slog.String("type", evt.EventType()),
			slog.String("error", err.Error()),
		)
	}
}

// eventDetail flattens an event struct into a map via its JSON encoding.
// big.Int fields encode as JSON numbers, addresses as hex strings.
func eventDetail(evt domain.Event) map[string]any {
	raw, err := json.Marshal(evt)
	if err != nil {
		return map[string]any{"marshal_error": err.Error()}
	}
	detail := make(map[string]any)
	if err := json.Unmarshal(raw, &detail); err != nil {
		return map[string]any{"unmarshal_error": err.Error()}
	}
	return detail
}
