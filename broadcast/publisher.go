// Package broadcast publishes order and bot state changes to Redis for UI consumers.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"scalper-bot-go/bot"
	"scalper-bot-go/order"
)

const botEventChannelTemplate = "scalper:bot:{botId}:events"

// Publisher publishes engine events on per-bot channels.
type Publisher struct {
	client        *redis.Client
	channelFormat string
	hasBotID      bool
}

// NewPublisher creates a publisher. An empty channel uses the default template.
func NewPublisher(client *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = botEventChannelTemplate
	}
	format, hasBotID := normalizeBotChannelFormat(channel)
	return &Publisher{
		client:        client,
		channelFormat: format,
		hasBotID:      hasBotID,
	}
}

// PublishOrderUpdate publishes the current state of an order.
func (p *Publisher) PublishOrderUpdate(ctx context.Context, o *order.Order) error {
	return p.publish(ctx, o.BotID, "order_update", map[string]interface{}{
		"id":                o.ID,
		"exchange_order_id": o.ExchangeOrderID,
		"ticker":            o.Ticker,
		"side":              o.Side,
		"status":            o.Status,
		"quantity":          o.Quantity,
		"filled_quantity":   o.FilledQuantity,
		"price":             o.Price,
		"filled_price":      o.FilledPrice,
		"paired_order_id":   o.PairedOrderID,
	})
}

// PublishBotUpdate publishes bot status and running totals.
func (p *Publisher) PublishBotUpdate(ctx context.Context, b *bot.Bot) error {
	return p.publish(ctx, b.ID, "bot_update", map[string]interface{}{
		"id":           b.ID,
		"status":       b.Status,
		"pnl":          b.PnL,
		"total_trades": b.TotalTrades,
	})
}

func (p *Publisher) publish(ctx context.Context, botID, event string, data interface{}) error {
	payload := map[string]interface{}{
		"channel": "scalper",
		"event":   event,
		"data":    data,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	targetChannel := p.channelFormat
	if p.hasBotID {
		targetChannel = fmt.Sprintf(p.channelFormat, botID)
	}
	return p.client.Publish(ctx, targetChannel, raw).Err()
}

func normalizeBotChannelFormat(template string) (string, bool) {
	if strings.Contains(template, "{botId}") {
		return strings.ReplaceAll(template, "{botId}", "%s"), true
	}
	return template, false
}
