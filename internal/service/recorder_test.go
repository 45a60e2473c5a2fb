package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upvault/vaultd/internal/domain"
)

type fakeEventStore struct {
	events  []domain.VaultEvent
	failing bool
}

func (f *fakeEventStore) Insert(_ context.Context, evt domain.VaultEvent) error {
	if f.failing {
		return errors.New("store down")
	}
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeEventStore) ListByVault(_ context.Context, vaultID string, _ domain.ListOpts) ([]domain.VaultEvent, error) {
	var out []domain.VaultEvent
	for _, e := range f.events {
		if e.VaultID == vaultID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEventStore) ListBefore(_ context.Context, before time.Time, _ int) ([]domain.VaultEvent, error) {
	return nil, nil
}

func (f *fakeEventStore) DeleteBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type fakeBus struct {
	published map[string][][]byte
	streamed  map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		published: make(map[string][][]byte),
		streamed:  make(map[string][][]byte),
	}
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (f *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	f.streamed[stream] = append(f.streamed[stream], payload)
	return nil
}

func TestRecorderPersistsAndPublishes(t *testing.T) {
	ctx := context.Background()
	store := &fakeEventStore{}
	bus := newFakeBus()
	rec := NewRecorder(store, bus, slog.Default())

	rec.Emit(ctx, "v1", domain.TradeDoneEvent{
		Direction: domain.TradeBuy,
		AmountIn:  big.NewInt(1000),
		AmountOut: big.NewInt(2000),
	})

	require.Len(t, store.events, 1)
	evt := store.events[0]
	assert.Equal(t, "v1", evt.VaultID)
	assert.Equal(t, "TradeDone", evt.Type)
	assert.Equal(t, "buy", evt.Detail["Direction"])
	assert.False(t, evt.EmittedAt.IsZero())

	require.Len(t, bus.published[ChannelEvents], 1)
	require.Len(t, bus.streamed[StreamEvents], 1)

	var env busEnvelope
	require.NoError(t, json.Unmarshal(bus.published[ChannelEvents][0], &env))
	assert.Equal(t, "v1", env.VaultID)
	assert.Equal(t, "TradeDone", env.Type)
}

func TestRecorderStoreFailureDoesNotPanic(t *testing.T) {
	ctx := context.Background()
	store := &fakeEventStore{failing: true}
	bus := newFakeBus()
	rec := NewRecorder(store, bus, slog.Default())

	// Persist failure must not prevent the bus publish.
	rec.Emit(ctx, "v1", domain.InitializedEvent{Name: "eth-dai", MaxCap: big.NewInt(1)})

	assert.Empty(t, store.events)
	assert.Len(t, bus.published[ChannelEvents], 1)
}

func TestRecorderNilBusOnlyPersists(t *testing.T) {
	ctx := context.Background()
	store := &fakeEventStore{}
	rec := NewRecorder(store, nil, slog.Default())

	rec.Emit(ctx, "v1", domain.WhiteListAddedEvent{})
	assert.Len(t, store.events, 1)
}
