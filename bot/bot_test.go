package bot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"scalper-bot-go/order"
)

func TestEffectiveLeverageDefault(t *testing.T) {
	b := &Bot{}
	require.Equal(t, DefaultLeverage, b.EffectiveLeverage())

	b.Leverage = 10
	require.Equal(t, 10, b.EffectiveLeverage())
}

func TestPriceForSide(t *testing.T) {
	b := &Bot{BuyPrice: 100, SellPrice: 110}
	require.Equal(t, 100.0, b.PriceFor(order.SideBuy))
	require.Equal(t, 110.0, b.PriceFor(order.SideSell))
}
