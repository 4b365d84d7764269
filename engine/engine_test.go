package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"scalper-bot-go/bot"
	"scalper-bot-go/exchange"
	"scalper-bot-go/order"
	"scalper-bot-go/store"
)

// mockAdapter 记录下单/撤单调用的假交易所。
type mockAdapter struct {
	mu        sync.Mutex
	placed    []exchange.OrderRequest
	cancelled []string
	placeErr  error
	position  *exchange.Position
	posErr    error
	onCancel  func(exchangeOrderID string)
	nextID    int
}

func (m *mockAdapter) Name() string { return "coindcx" }

func (m *mockAdapter) ValidateCredentials(ctx context.Context) error { return nil }

func (m *mockAdapter) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.placeErr != nil {
		return nil, m.placeErr
	}
	m.nextID++
	m.placed = append(m.placed, req)
	return &exchange.OrderResult{
		ExchangeOrderID: fmt.Sprintf("ex-%d", m.nextID+100),
		Status:          order.StatusOpen,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

func (m *mockAdapter) CancelOrder(ctx context.Context, exchangeOrderID, ticker string) error {
	m.mu.Lock()
	hook := m.onCancel
	m.cancelled = append(m.cancelled, exchangeOrderID)
	m.mu.Unlock()
	if hook != nil {
		hook(exchangeOrderID)
	}
	return nil
}

func (m *mockAdapter) GetPosition(ctx context.Context, ticker string) (*exchange.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position, m.posErr
}

func (m *mockAdapter) GetOrderStatus(ctx context.Context, exchangeOrderID, ticker string) (*exchange.OrderResult, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockAdapter) placedRequests() []exchange.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]exchange.OrderRequest, len(m.placed))
	copy(out, m.placed)
	return out
}

func (m *mockAdapter) cancelledIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.cancelled))
	copy(out, m.cancelled)
	return out
}

func newTestEngine(t *testing.T) (*Engine, *store.Memory, *mockAdapter) {
	t.Helper()
	mem := store.NewMemory()
	adapter := &mockAdapter{}
	e, err := New(Config{
		Store:    mem,
		Adapters: exchange.Registry{"coindcx": adapter},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e, mem, adapter
}

func newTestBot(t *testing.T, mem *store.Memory, infinite bool) *bot.Bot {
	t.Helper()
	b := &bot.Bot{
		ID:           "bot-1",
		Exchange:     "coindcx",
		Ticker:       "ETH/USDT",
		FirstOrder:   order.SideBuy,
		Quantity:     2,
		BuyPrice:     100,
		SellPrice:    105,
		InfiniteLoop: infinite,
		Status:       bot.StatusActive,
	}
	if err := mem.CreateBot(context.Background(), b); err != nil {
		t.Fatalf("create bot: %v", err)
	}
	return b
}

// seedOpenOrder 插入一张已到交易所的 OPEN 单。
func seedOpenOrder(t *testing.T, mem *store.Memory, botID, exchangeID string, side order.Side, price float64) *order.Order {
	t.Helper()
	o := order.New(botID, "ETH/USDT", side, order.TypeLimit, 2, price)
	o.ExchangeOrderID = exchangeID
	o.Status = order.StatusOpen
	if err := mem.CreateOrder(context.Background(), o); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return o
}

func fillNotification(exchangeID string, side order.Side, avgPrice float64) *exchange.Notification {
	return &exchange.Notification{
		ExchangeOrderID: exchangeID,
		Pair:            "B-ETH_USDT",
		Side:            string(side),
		Status:          "filled",
		TotalQuantity:   2,
		FilledQuantity:  2,
		AveragePrice:    avgPrice,
	}
}

// waitFor 轮询直到条件成立，续单在后台 goroutine 执行。
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
