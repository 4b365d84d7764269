package engine

import (
	"context"
	"errors"
	"testing"

	"scalper-bot-go/bot"
	"scalper-bot-go/order"
	"scalper-bot-go/store"
)

func TestStartBotPlacesEntryOrder(t *testing.T) {
	e, mem, adapter := newTestEngine(t)
	b := newTestBot(t, mem, false)
	ctx := context.Background()
	if err := mem.UpdateBotStatus(ctx, b.ID, bot.StatusStopped); err != nil {
		t.Fatalf("prep: %v", err)
	}

	if err := e.StartBot(ctx, b.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	got, _ := mem.Bot(ctx, b.ID)
	if got.Status != bot.StatusActive {
		t.Fatalf("expected ACTIVE, got %s", got.Status)
	}
	reqs := adapter.placedRequests()
	if len(reqs) != 1 {
		t.Fatalf("expected one entry order, got %d", len(reqs))
	}
	if reqs[0].Side != order.SideBuy || reqs[0].Price != 100 {
		t.Fatalf("entry must follow first_order config, got %+v", reqs[0])
	}

	orders, _ := mem.OpenOrdersByBot(ctx, b.ID)
	if len(orders) != 1 || orders[0].ExchangeOrderID == "" {
		t.Fatalf("entry order must be open with exchange id, got %+v", orders)
	}
}

func TestStartBotAlreadyActive(t *testing.T) {
	e, mem, _ := newTestEngine(t)
	b := newTestBot(t, mem, false)

	if err := e.StartBot(context.Background(), b.ID); err == nil {
		t.Fatal("expected error starting an active bot")
	}
}

func TestStopBotCancelsWithStopReason(t *testing.T) {
	e, mem, adapter := newTestEngine(t)
	b := newTestBot(t, mem, false)
	o := seedOpenOrder(t, mem, b.ID, "ex-1", order.SideBuy, 100)
	ctx := context.Background()

	var reasonAtCancel order.CancellationReason
	adapter.onCancel = func(exchangeOrderID string) {
		// 交易所撤单时原因必须已经落库
		got, err := mem.OrderByID(ctx, o.ID)
		if err != nil {
			t.Errorf("order lookup in cancel hook: %v", err)
			return
		}
		reasonAtCancel = got.CancellationReason
	}

	if err := e.StopBot(ctx, b.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if reasonAtCancel != order.ReasonStop {
		t.Fatalf("cancellation reason must be persisted before the exchange call, saw %q", reasonAtCancel)
	}
	if ids := adapter.cancelledIDs(); len(ids) != 1 || ids[0] != "ex-1" {
		t.Fatalf("expected cancel of ex-1, got %v", ids)
	}
	got, _ := mem.Bot(ctx, b.ID)
	if got.Status != bot.StatusStopped {
		t.Fatalf("expected STOPPED, got %s", got.Status)
	}
}

func TestUpdateBotReplacesOrdersWithNewConfig(t *testing.T) {
	e, mem, adapter := newTestEngine(t)
	b := newTestBot(t, mem, false)
	o := seedOpenOrder(t, mem, b.ID, "ex-1", order.SideBuy, 100)
	ctx := context.Background()

	updated := *b
	updated.BuyPrice = 95
	updated.SellPrice = 102
	if err := e.UpdateBot(ctx, &updated); err != nil {
		t.Fatalf("update: %v", err)
	}

	// 旧单按 UPDATE 原因撤掉
	got, _ := mem.OrderByID(ctx, o.ID)
	if got.CancellationReason != order.ReasonUpdate {
		t.Fatalf("expected UPDATE reason, got %q", got.CancellationReason)
	}
	if len(adapter.cancelledIDs()) != 1 {
		t.Fatalf("expected one exchange cancel, got %d", len(adapter.cancelledIDs()))
	}

	// 新配置落库，入场单按新价格重挂
	cur, _ := mem.Bot(ctx, b.ID)
	if cur.BuyPrice != 95 || cur.SellPrice != 102 {
		t.Fatalf("config not persisted: %+v", cur)
	}
	reqs := adapter.placedRequests()
	if len(reqs) != 1 || reqs[0].Price != 95 {
		t.Fatalf("expected re-placed entry at 95, got %+v", reqs)
	}
}

func TestDeleteBotCancelsWithDeleteReason(t *testing.T) {
	e, mem, adapter := newTestEngine(t)
	b := newTestBot(t, mem, false)
	o := seedOpenOrder(t, mem, b.ID, "ex-1", order.SideBuy, 100)
	ctx := context.Background()

	if err := e.DeleteBot(ctx, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, _ := mem.OrderByID(ctx, o.ID)
	if got.CancellationReason != order.ReasonDelete {
		t.Fatalf("expected DELETE reason, got %q", got.CancellationReason)
	}
	if len(adapter.cancelledIDs()) != 1 {
		t.Fatalf("expected one exchange cancel, got %d", len(adapter.cancelledIDs()))
	}
	if _, err := mem.Bot(ctx, b.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("bot must be deleted, got %v", err)
	}
	// 历史订单保留
	if _, err := mem.OrderByID(ctx, o.ID); err != nil {
		t.Fatalf("orders must survive bot deletion: %v", err)
	}
}

func TestCancelOrderNeverReachedExchange(t *testing.T) {
	e, mem, adapter := newTestEngine(t)
	b := newTestBot(t, mem, false)
	ctx := context.Background()

	o := order.New(b.ID, "ETH/USDT", order.SideBuy, order.TypeLimit, 2, 100)
	if err := mem.CreateOrder(ctx, o); err != nil {
		t.Fatalf("prep: %v", err)
	}

	if err := e.CancelOrder(ctx, o.ID, order.ReasonStop); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ := mem.OrderByID(ctx, o.ID)
	if got.Status != order.StatusCancelled {
		t.Fatalf("expected local CANCELLED, got %s", got.Status)
	}
	if len(adapter.cancelledIDs()) != 0 {
		t.Fatal("no exchange call for orders without exchange id")
	}
}

func TestCancelOrderTerminalNoop(t *testing.T) {
	e, mem, adapter := newTestEngine(t)
	b := newTestBot(t, mem, false)
	o := seedOpenOrder(t, mem, b.ID, "ex-1", order.SideBuy, 100)
	ctx := context.Background()

	qty := 2.0
	if err := mem.UpdateOrderStatus(ctx, o.ID, order.StatusFilled, &qty, nil); err != nil {
		t.Fatalf("prep: %v", err)
	}

	if err := e.CancelOrder(ctx, o.ID, order.ReasonStop); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(adapter.cancelledIDs()) != 0 {
		t.Fatal("terminal order must not be cancelled at the exchange")
	}
}
