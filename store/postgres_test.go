package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"scalper-bot-go/bot"
	"scalper-bot-go/order"
)

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresFromDB(db), mock
}

func orderRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "bot_id", "exchange_order_id", "ticker", "side", "type",
		"quantity", "filled_quantity", "price", "filled_price", "status",
		"paired_order_id", "cancellation_reason", "commission",
		"commission_asset", "error_message", "created_at", "updated_at",
	})
}

func TestPostgresOrderByExchangeID(t *testing.T) {
	p, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := orderRows().AddRow(
		"ord-1", "bot-1", "ex-1", "B-ETH_USDT", "BUY", "LIMIT",
		2.0, 2.0, 100.0, 99.5, "FILLED",
		"ord-2", nil, 0.1, "USDT", nil, now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM orders WHERE exchange_order_id").
		WithArgs("ex-1").
		WillReturnRows(rows)

	o, err := p.OrderByExchangeID(context.Background(), "ex-1")
	if err != nil {
		t.Fatalf("order by exchange id: %v", err)
	}
	if o.ID != "ord-1" || o.Side != order.SideBuy || o.Status != order.StatusFilled {
		t.Fatalf("unexpected order %+v", o)
	}
	if o.PairedOrderID != "ord-2" {
		t.Fatalf("expected paired order ord-2, got %q", o.PairedOrderID)
	}
	if o.FilledPrice != 99.5 {
		t.Fatalf("expected filled price 99.5, got %v", o.FilledPrice)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresOrderByIDNotFound(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE id").
		WithArgs("missing").
		WillReturnRows(orderRows())

	if _, err := p.OrderByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresCreateOrderUniqueViolation(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO orders").
		WillReturnError(&pq.Error{Code: "23505"})

	o := order.New("bot-1", "B-ETH_USDT", order.SideBuy, order.TypeLimit, 2, 100)
	o.ExchangeOrderID = "ex-dup"
	if err := p.CreateOrder(context.Background(), o); !errors.Is(err, ErrDuplicateExchangeID) {
		t.Fatalf("expected ErrDuplicateExchangeID, got %v", err)
	}
}

func TestPostgresUpdateOrderStatusKeepsUnsetFields(t *testing.T) {
	p, mock := newMockStore(t)

	qty := 2.0
	mock.ExpectExec("UPDATE orders").
		WithArgs("ord-1", "FILLED", qty, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := p.UpdateOrderStatus(context.Background(), "ord-1", order.StatusFilled, &qty, nil); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresUpdateOrderStatusNotFound(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectExec("UPDATE orders").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// 0 行后回查区分不存在与终态守卫
	mock.ExpectQuery("SELECT (.+) FROM orders WHERE id").
		WithArgs("missing").
		WillReturnRows(orderRows())

	if err := p.UpdateOrderStatus(context.Background(), "missing", order.StatusCancelled, nil, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresUpdateOrderStatusTerminalGuard(t *testing.T) {
	p, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE orders").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM orders WHERE id").
		WithArgs("ord-1").
		WillReturnRows(orderRows().AddRow(
			"ord-1", "bot-1", "ex-1", "B-ETH_USDT", "SELL", "LIMIT",
			2.0, 2.0, 105.0, 105.0, "FILLED",
			nil, nil, 0.0, nil, nil, now, now,
		))

	if err := p.UpdateOrderStatus(context.Background(), "ord-1", order.StatusOpen, nil, nil); !errors.Is(err, ErrTerminalStatus) {
		t.Fatalf("expected ErrTerminalStatus, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresLinkPairTransaction(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET paired_order_id").
		WithArgs("buy-1", "sell-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE orders SET paired_order_id").
		WithArgs("sell-1", "buy-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := p.LinkPair(context.Background(), "buy-1", "sell-1"); err != nil {
		t.Fatalf("link pair: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresLinkPairRollsBackOnError(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET paired_order_id").
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	if err := p.LinkPair(context.Background(), "buy-1", "sell-1"); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresSettleCycle(t *testing.T) {
	p, mock := newMockStore(t)

	mock.ExpectExec("UPDATE bots SET pnl = pnl \\+ \\$2, total_trades = total_trades \\+ 1").
		WithArgs("bot-1", 9.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := p.SettleCycle(context.Background(), "bot-1", 9.0); err != nil {
		t.Fatalf("settle cycle: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresBotScanNullFillFields(t *testing.T) {
	p, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "exchange", "ticker", "first_order", "quantity", "buy_price",
		"sell_price", "leverage", "infinite_loop", "status", "pnl",
		"total_trades", "last_fill_time", "last_fill_side", "last_fill_price",
		"created_at", "updated_at",
	}).AddRow(
		"bot-1", "coindcx", "B-ETH_USDT", "BUY", 2.0, 100.0,
		110.0, 0, true, "ACTIVE", 0.0,
		0, nil, nil, nil, now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM bots WHERE id").
		WithArgs("bot-1").
		WillReturnRows(rows)

	b, err := p.Bot(context.Background(), "bot-1")
	if err != nil {
		t.Fatalf("query bot: %v", err)
	}
	if b.Status != bot.StatusActive || b.FirstOrder != order.SideBuy {
		t.Fatalf("unexpected bot %+v", b)
	}
	if !b.LastFillTime.IsZero() || b.LastFillSide != "" || b.LastFillPrice != 0 {
		t.Fatalf("null fill fields should stay zero: %+v", b)
	}
	if b.EffectiveLeverage() != bot.DefaultLeverage {
		t.Fatalf("expected default leverage, got %d", b.EffectiveLeverage())
	}
}
