package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const coindcxWSEndpoint = "wss://stream.coindcx.com"

// Notification 交易所推送的订单变更事件（成交/部分成交/撤销）。
type Notification struct {
	ExchangeOrderID   string  `json:"id"`
	Pair              string  `json:"pair"`
	Side              string  `json:"side"`
	Status            string  `json:"status"`
	OrderType         string  `json:"order_type"`
	Price             float64 `json:"price_per_unit"`
	TotalQuantity     float64 `json:"total_quantity"`
	FilledQuantity    float64 `json:"filled_quantity"`
	RemainingQuantity float64 `json:"remaining_quantity"`
	AveragePrice      float64 `json:"avg_price"`
	Leverage          float64 `json:"leverage"`
	CreatedAt         int64   `json:"created_at"`
}

// ParseNotification 解析单条订单推送。
func ParseNotification(raw []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("parse notification: %w", err)
	}
	if n.ExchangeOrderID == "" {
		return nil, fmt.Errorf("parse notification: missing order id")
	}
	return &n, nil
}

// OrderStream 订单推送长连接：断线指数退避重连，读超时由 ping/pong 续期。
type OrderStream struct {
	Endpoint string
	APIKey   string
	Secret   string
	Dialer   *websocket.Dialer

	logger *zap.Logger

	// 重连回调，指标用
	OnReconnect func()
}

func NewOrderStream(creds Credentials, logger *zap.Logger) *OrderStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderStream{
		Endpoint: coindcxWSEndpoint,
		APIKey:   creds.APIKey,
		Secret:   creds.APISecret,
		Dialer:   websocket.DefaultDialer,
		logger:   logger,
	}
}

// authPayload 私有频道订阅：对固定串做 HMAC 作为频道令牌。
func (s *OrderStream) authPayload() ([]byte, error) {
	mac := hmac.New(sha256.New, []byte(s.Secret))
	mac.Write([]byte(`{"channel":"coindcx"}`))
	return json.Marshal(map[string]string{
		"event":         "join",
		"channel":       "coindcx",
		"apiKey":        s.APIKey,
		"authSignature": hex.EncodeToString(mac.Sum(nil)),
	})
}

// 连接存活超过该时长视为已恢复正常，退避从头起步。
const healthyConnAge = time.Minute

// Run 持续消费订单推送并逐条回调 handler，ctx 取消后返回。
// handler 在读循环 goroutine 内同步执行，耗时处理应自行异步化。
func (s *OrderStream) Run(ctx context.Context, handler func(*Notification)) error {
	var backoff time.Duration
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		start := time.Now()
		err := s.readLoop(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff, time.Since(start))
		s.logger.Warn("order stream disconnected, reconnecting",
			zap.Error(err), zap.Duration("backoff", backoff))
		if s.OnReconnect != nil {
			s.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// nextBackoff 指数退避，1s 起步 30s 封顶；长连接存活够久后断开不叠加旧退避。
func nextBackoff(cur, connected time.Duration) time.Duration {
	if connected >= healthyConnAge {
		return time.Second
	}
	next := cur * 2
	if next < time.Second {
		next = time.Second
	}
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}

func (s *OrderStream) readLoop(ctx context.Context, handler func(*Notification)) error {
	conn, _, err := s.Dialer.DialContext(ctx, s.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.Endpoint, err)
	}
	defer conn.Close()

	join, err := s.authPayload()
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		return fmt.Errorf("join channel: %w", err)
	}

	const readTimeout = 60 * time.Second
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// 保活
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(25 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		n, err := ParseNotification(raw)
		if err != nil {
			s.logger.Debug("skip non-order message", zap.Error(err))
			continue
		}
		handler(n)
	}
}
