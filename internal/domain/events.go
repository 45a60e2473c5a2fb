package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Event is implemented by every vault event. Consumers subscribe through the
// signal bus; nothing in the system requires polling full state.
type Event interface {
	EventType() string
}

// EventSink receives events as they are emitted by the accounting core.
// Sink errors never abort the operation that produced the event.
type EventSink interface {
	Emit(ctx context.Context, vaultID string, evt Event)
}

// InitializedEvent is emitted once when a vault finishes initialization.
type InitializedEvent struct {
	Name       string
	QuoteAsset string
	BaseAsset  string
	MaxCap     *big.Int
}

func (InitializedEvent) EventType() string { return "Initialized" }

// TradeDoneEvent is emitted after a buy or sell settles.
type TradeDoneEvent struct {
	Direction TradeDirection
	AmountIn  *big.Int
	AmountOut *big.Int
}

func (TradeDoneEvent) EventType() string { return "TradeDone" }

// DepositedEvent is emitted after a successful deposit.
type DepositedEvent struct {
	Depositor    common.Address
	Asset        string
	Amount       *big.Int
	SharesMinted *big.Int
}

func (DepositedEvent) EventType() string { return "Deposited" }

// WithdrawnEvent is emitted after a successful withdrawal.
type WithdrawnEvent struct {
	Withdrawer   common.Address
	Asset        string
	Amount       *big.Int
	SharesBurned *big.Int
}

func (WithdrawnEvent) EventType() string { return "Withdrawn" }

// WhiteListAddedEvent is emitted when an address gains trade rights.
type WhiteListAddedEvent struct {
	Addr common.Address
}

func (WhiteListAddedEvent) EventType() string { return "WhiteListAdded" }

// WhiteListRemovedEvent is emitted when an address loses trade rights.
type WhiteListRemovedEvent struct {
	Addr common.Address
}

func (WhiteListRemovedEvent) EventType() string { return "WhiteListRemoved" }

// StrategistUpdatedEvent is emitted when the vault strategist changes.
type StrategistUpdatedEvent struct {
	Strategist common.Address
}

func (StrategistUpdatedEvent) EventType() string { return "StrategistUpdated" }

// ActiveVaultsUpdatedEvent is emitted when a supervault changes which child
// vaults receive new deposits.
type ActiveVaultsUpdatedEvent struct {
	ActiveVaults []int
}

func (ActiveVaultsUpdatedEvent) EventType() string { return "ActiveVaultsUpdated" }

// VaultGeneratedEvent is emitted by the factory for each new vault.
type VaultGeneratedEvent struct {
	VaultID string
	Name    string
	Owner   common.Address
}

func (VaultGeneratedEvent) EventType() string { return "VaultGenerated" }

// VaultEvent is the persisted envelope for an emitted event.
type VaultEvent struct {
	ID        int64
	VaultID   string
	Type      string
	Detail    map[string]any
	EmittedAt time.Time
}

// SignalBus provides pub/sub fan-out for live consumers plus a durable,
// trimmed stream that external indexers tail on their own cursor.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// PriceCache provides fast access to the latest observed feed prices.
type PriceCache interface {
	SetPrice(ctx context.Context, feedID string, price *big.Int, decimals uint8, ts time.Time) error
	GetPrice(ctx context.Context, feedID string) (PricePoint, error)
}
