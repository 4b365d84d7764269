package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"scalper-bot-go/bot"
	"scalper-bot-go/order"
)

// Postgres 基于 database/sql + lib/pq 的仓储实现。
type Postgres struct {
	db *sql.DB
}

// NewPostgres 打开连接并验证可达。
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgresFromDB 复用已有连接（测试注入 sqlmock）。
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error { return p.db.Close() }

const orderColumns = `id, bot_id, exchange_order_id, ticker, side, type,
	quantity, filled_quantity, price, filled_price, status, paired_order_id,
	cancellation_reason, commission, commission_asset, error_message,
	created_at, updated_at`

func (p *Postgres) CreateOrder(ctx context.Context, o *order.Order) error {
	query := `
		INSERT INTO orders
		(id, bot_id, exchange_order_id, ticker, side, type, quantity,
		 filled_quantity, price, filled_price, status, paired_order_id,
		 cancellation_reason, commission, commission_asset, error_message,
		 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := p.db.ExecContext(ctx, query,
		o.ID, o.BotID, nullString(o.ExchangeOrderID), o.Ticker, string(o.Side),
		string(o.Type), o.Quantity, o.FilledQuantity, o.Price,
		nullFloat(o.FilledPrice), string(o.Status), nullString(o.PairedOrderID),
		nullString(string(o.CancellationReason)), o.Commission,
		nullString(o.CommissionAsset), nullString(o.ErrorMessage),
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateExchangeID
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (p *Postgres) OrderByID(ctx context.Context, id string) (*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return p.scanOrder(p.db.QueryRowContext(ctx, query, id))
}

func (p *Postgres) OrderByExchangeID(ctx context.Context, exchangeOrderID string) (*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE exchange_order_id = $1`
	return p.scanOrder(p.db.QueryRowContext(ctx, query, exchangeOrderID))
}

// 终态状态集合，UpdateOrderStatus 的 SQL 守卫用。
var terminalStatuses = []string{
	string(order.StatusFilled),
	string(order.StatusCancelled),
	string(order.StatusRejected),
	string(order.StatusExpired),
	string(order.StatusFailed),
}

func (p *Postgres) UpdateOrderStatus(ctx context.Context, id string, st order.Status, filledQty, filledPrice *float64) error {
	// 终态行只放行同状态重放，其余改写在 WHERE 里挡掉
	query := `
		UPDATE orders
		SET status = $2,
		    filled_quantity = COALESCE($3, filled_quantity),
		    filled_price = COALESCE($4, filled_price),
		    updated_at = $5
		WHERE id = $1 AND (status = $2 OR status <> ALL($6))
	`
	res, err := p.db.ExecContext(ctx, query, id, string(st),
		nullFloatPtr(filledQty), nullFloatPtr(filledPrice), time.Now().UTC(),
		pq.Array(terminalStatuses))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if err := checkAffected(res); err != nil {
		// 0 行命中：订单不存在，或被终态守卫挡下
		if cur, qerr := p.OrderByID(ctx, id); qerr == nil && cur.Status.Terminal() {
			return ErrTerminalStatus
		}
		return err
	}
	return nil
}

func (p *Postgres) SetExchangeOrderID(ctx context.Context, id, exchangeOrderID string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE orders SET exchange_order_id = $2, updated_at = $3 WHERE id = $1`,
		id, exchangeOrderID, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateExchangeID
		}
		return fmt.Errorf("set exchange order id: %w", err)
	}
	return checkAffected(res)
}

func (p *Postgres) SetCancellationReason(ctx context.Context, id string, reason order.CancellationReason) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE orders SET cancellation_reason = $2, updated_at = $3 WHERE id = $1`,
		id, string(reason), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set cancellation reason: %w", err)
	}
	return checkAffected(res)
}

func (p *Postgres) SetCommission(ctx context.Context, id string, commission float64, asset string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE orders SET commission = $2, commission_asset = $3, updated_at = $4 WHERE id = $1`,
		id, commission, nullString(asset), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set commission: %w", err)
	}
	return checkAffected(res)
}

// LinkPair 双向建立配对关系，事务内完成。
func (p *Postgres) LinkPair(ctx context.Context, id, pairedID string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin link pair: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET paired_order_id = $2, updated_at = $3 WHERE id = $1`,
		id, pairedID, now); err != nil {
		return fmt.Errorf("link pair: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET paired_order_id = $2, updated_at = $3 WHERE id = $1`,
		pairedID, id, now); err != nil {
		return fmt.Errorf("link pair reverse: %w", err)
	}
	return tx.Commit()
}

func (p *Postgres) MarkOrderFailed(ctx context.Context, id, errMsg string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE orders SET status = $2, error_message = $3, updated_at = $4 WHERE id = $1`,
		id, string(order.StatusFailed), errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark order failed: %w", err)
	}
	return checkAffected(res)
}

func (p *Postgres) OpenOrdersByBot(ctx context.Context, botID string) ([]*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE bot_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC`
	active := pq.Array([]string{
		string(order.StatusPending),
		string(order.StatusOpen),
		string(order.StatusPartiallyFilled),
	})
	rows, err := p.db.QueryContext(ctx, query, botID, active)
	if err != nil {
		return nil, fmt.Errorf("query open orders: %w", err)
	}
	defer rows.Close()

	var out []*order.Order
	for rows.Next() {
		o, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateBot(ctx context.Context, b *bot.Bot) error {
	query := `
		INSERT INTO bots
		(id, exchange, ticker, first_order, quantity, buy_price, sell_price,
		 leverage, infinite_loop, status, pnl, total_trades, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := p.db.ExecContext(ctx, query,
		b.ID, b.Exchange, b.Ticker, string(b.FirstOrder), b.Quantity,
		b.BuyPrice, b.SellPrice, b.Leverage, b.InfiniteLoop, string(b.Status),
		b.PnL, b.TotalTrades, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert bot: %w", err)
	}
	return nil
}

func (p *Postgres) Bot(ctx context.Context, id string) (*bot.Bot, error) {
	query := `
		SELECT id, exchange, ticker, first_order, quantity, buy_price, sell_price,
		       leverage, infinite_loop, status, pnl, total_trades,
		       last_fill_time, last_fill_side, last_fill_price, created_at, updated_at
		FROM bots WHERE id = $1
	`
	var (
		b             bot.Bot
		firstOrder    string
		status        string
		lastFillTime  sql.NullTime
		lastFillSide  sql.NullString
		lastFillPrice sql.NullFloat64
	)
	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.Exchange, &b.Ticker, &firstOrder, &b.Quantity, &b.BuyPrice,
		&b.SellPrice, &b.Leverage, &b.InfiniteLoop, &status, &b.PnL,
		&b.TotalTrades, &lastFillTime, &lastFillSide, &lastFillPrice,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query bot: %w", err)
	}
	b.FirstOrder = order.Side(firstOrder)
	b.Status = bot.Status(status)
	if lastFillTime.Valid {
		b.LastFillTime = lastFillTime.Time
	}
	if lastFillSide.Valid {
		b.LastFillSide = order.Side(lastFillSide.String)
	}
	if lastFillPrice.Valid {
		b.LastFillPrice = lastFillPrice.Float64
	}
	return &b, nil
}

func (p *Postgres) UpdateBotStatus(ctx context.Context, id string, st bot.Status) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE bots SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(st), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update bot status: %w", err)
	}
	return checkAffected(res)
}

func (p *Postgres) UpdateBotConfig(ctx context.Context, b *bot.Bot) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE bots
		SET first_order = $2, quantity = $3, buy_price = $4, sell_price = $5,
		    leverage = $6, infinite_loop = $7, updated_at = $8
		WHERE id = $1
	`, b.ID, string(b.FirstOrder), b.Quantity, b.BuyPrice, b.SellPrice,
		b.Leverage, b.InfiniteLoop, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update bot config: %w", err)
	}
	return checkAffected(res)
}

func (p *Postgres) DeleteBot(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM bots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete bot: %w", err)
	}
	return checkAffected(res)
}

func (p *Postgres) RecordFill(ctx context.Context, id string, at time.Time, side order.Side, price float64) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE bots SET last_fill_time = $2, last_fill_side = $3, last_fill_price = $4, updated_at = $5 WHERE id = $1`,
		id, at, string(side), price, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record fill: %w", err)
	}
	return checkAffected(res)
}

func (p *Postgres) SettleCycle(ctx context.Context, id string, pnl float64) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE bots SET pnl = pnl + $2, total_trades = total_trades + 1, updated_at = $3 WHERE id = $1`,
		id, pnl, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("settle cycle: %w", err)
	}
	return checkAffected(res)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (p *Postgres) scanOrder(row rowScanner) (*order.Order, error) {
	o, err := scanOrderRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func scanOrderRow(row rowScanner) (*order.Order, error) {
	var (
		o            order.Order
		side, typ    string
		status       string
		exchangeID   sql.NullString
		filledPrice  sql.NullFloat64
		pairedID     sql.NullString
		cancelReason sql.NullString
		commAsset    sql.NullString
		errMsg       sql.NullString
	)
	err := row.Scan(
		&o.ID, &o.BotID, &exchangeID, &o.Ticker, &side, &typ,
		&o.Quantity, &o.FilledQuantity, &o.Price, &filledPrice, &status,
		&pairedID, &cancelReason, &o.Commission, &commAsset, &errMsg,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	o.Side = order.Side(side)
	o.Type = order.Type(typ)
	o.Status = order.Status(status)
	o.ExchangeOrderID = exchangeID.String
	if filledPrice.Valid {
		o.FilledPrice = filledPrice.Float64
	}
	o.PairedOrderID = pairedID.String
	o.CancellationReason = order.CancellationReason(cancelReason.String)
	o.CommissionAsset = commAsset.String
	o.ErrorMessage = errMsg.String
	return &o, nil
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil // driver不支持时放过
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: f != 0}
}

func nullFloatPtr(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
