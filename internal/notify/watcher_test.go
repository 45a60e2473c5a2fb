package notify

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	titles   []string
	messages []string
}

func (c *captureSender) Send(_ context.Context, title, message string) error {
	c.titles = append(c.titles, title)
	c.messages = append(c.messages, message)
	return nil
}

func (c *captureSender) Name() string { return "capture" }

func TestFormatEventTradeDone(t *testing.T) {
	title, message, ok := formatEvent(busEvent{
		VaultID: "v1",
		Type:    "TradeDone",
		Detail: map[string]any{
			"Direction": "buy",
			"AmountIn":  "1000",
			"AmountOut": "2000",
		},
	})
	require.True(t, ok)
	assert.Equal(t, "Trade settled", title)
	assert.Contains(t, message, "v1")
	assert.Contains(t, message, "buy")
	assert.Contains(t, message, "1000")
	assert.Contains(t, message, "2000")
}

func TestFormatEventSkipsUninterestingTypes(t *testing.T) {
	for _, typ := range []string{"Initialized", "WhiteListAdded", "VaultGenerated", ""} {
		_, _, ok := formatEvent(busEvent{Type: typ})
		assert.False(t, ok, "type %q should be skipped", typ)
	}
}

func TestNotifierEventFilter(t *testing.T) {
	sender := &captureSender{}
	n := NewNotifier([]Sender{sender}, []string{"TradeDone"}, slog.Default())

	require.NoError(t, n.Notify(context.Background(), "Deposited", "Deposit", "ignored"))
	require.NoError(t, n.Notify(context.Background(), "TradeDone", "Trade settled", "delivered"))

	require.Len(t, sender.titles, 1)
	assert.Equal(t, "Trade settled", sender.titles[0])
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	sender := &captureSender{}
	n := NewNotifier([]Sender{sender}, nil, slog.Default())

	require.NoError(t, n.Notify(context.Background(), "Anything", "t", "m"))
	assert.Len(t, sender.titles, 1)
}
