package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"scalper-bot-go/broadcast"
	"scalper-bot-go/config"
	"scalper-bot-go/engine"
	"scalper-bot-go/exchange"
	"scalper-bot-go/infrastructure/alert"
	"scalper-bot-go/infrastructure/logger"
	hotcfg "scalper-bot-go/internal/config"
	"scalper-bot-go/metrics"
	"scalper-bot-go/store"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	startBot := flag.String("startBot", "", "启动时激活的机器人ID，可选")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	zlog, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Outputs:    cfg.Logging.Outputs,
		OutputFile: cfg.Logging.File,
	})
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zlog.Close()

	db, err := store.NewPostgres(cfg.Database.DSN)
	if err != nil {
		zlog.Fatal("连接数据库失败", zap.Error(err))
	}
	defer db.Close()

	creds := exchange.Credentials{
		Exchange:  cfg.Exchange.Name,
		APIKey:    cfg.Exchange.APIKey,
		APISecret: cfg.Exchange.APISecret,
	}
	adapter, err := exchange.NewAdapter(creds)
	if err != nil {
		zlog.Fatal("初始化交易所适配器失败", zap.Error(err))
	}
	var limiter *exchange.TokenBucketLimiter
	if dcx, ok := adapter.(*exchange.CoinDCX); ok {
		if cfg.Exchange.BaseURL != "" {
			dcx.BaseURL = cfg.Exchange.BaseURL
		}
		limiter = exchange.NewTokenBucketLimiter(
			float64(cfg.Engine.RatePerSecond), cfg.Engine.RateBurst)
		dcx.Limiter = limiter
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := adapter.ValidateCredentials(ctx); err != nil {
		zlog.Fatal("交易所凭证校验失败", zap.Error(err))
	}

	channels := []alert.Channel{alert.NewLogChannel("log", os.Stdout)}
	if cfg.Telegram.BotToken != "" {
		channels = append(channels, alert.NewTelegramChannel(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}
	alerts := alert.NewManager(channels, time.Minute)

	var broadcaster engine.Broadcaster
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
		broadcaster = broadcast.NewPublisher(rdb, cfg.Redis.Channel)
	}

	eng, err := engine.New(engine.Config{
		Store:     db,
		Adapters:  exchange.Registry{adapter.Name(): adapter},
		Logger:    zlog.Logger,
		Alerts:    alerts,
		Broadcast: broadcaster,
	})
	if err != nil {
		zlog.Fatal("初始化引擎失败", zap.Error(err))
	}

	metrics.StartMetricsServer(cfg.Metrics.Addr)

	queue := engine.NewQueue(eng, cfg.Engine.EventQueueSize)
	go queue.Run(ctx)

	stream := exchange.NewOrderStream(creds, zlog.Logger)
	stream.OnReconnect = func() { metrics.StreamReconnects.Inc() }
	go func() {
		if err := stream.Run(ctx, func(n *exchange.Notification) {
			queue.Publish(n)
		}); err != nil && ctx.Err() == nil {
			zlog.Error("订单流退出", zap.Error(err))
		}
	}()

	// 终态订单的互斥条目定期清理
	go func() {
		sweep := time.Duration(cfg.Engine.LockSweepSec) * time.Second
		maxAge := time.Duration(cfg.Engine.LockMaxAgeMin) * time.Minute
		ticker := time.NewTicker(sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				eng.EvictIdleLocks(maxAge)
			}
		}
	}()

	// 配置文件热更新：改限速参数不用重启进程
	reloader, err := hotcfg.NewHotReloader(*cfgPath, hotcfg.DefaultHotReloadConfig())
	if err != nil {
		zlog.Warn("配置热更新不可用", zap.Error(err))
	} else {
		reloader.RegisterValidator("engine", &hotcfg.EngineParameterValidator{})
		reloader.SetReloadHandler(func() error {
			next, err := config.LoadWithEnvOverrides(*cfgPath)
			if err != nil {
				return err
			}
			if err := reloader.ValidateParameters("engine", map[string]interface{}{
				"event_queue_size": next.Engine.EventQueueSize,
				"lock_max_age_min": next.Engine.LockMaxAgeMin,
			}); err != nil {
				return err
			}
			if limiter != nil {
				limiter.SetRate(float64(next.Engine.RatePerSecond), next.Engine.RateBurst)
			}
			zlog.Info("配置已热更新",
				zap.Int("rate_per_second", next.Engine.RatePerSecond),
				zap.Int("rate_burst", next.Engine.RateBurst))
			return nil
		})
		if err := reloader.Start(ctx); err != nil {
			zlog.Warn("启动配置监听失败", zap.Error(err))
		}
		defer reloader.Stop()
	}

	if *startBot != "" {
		if err := eng.StartBot(ctx, *startBot); err != nil {
			zlog.Error("启动机器人失败", zap.String("bot_id", *startBot), zap.Error(err))
		}
	}

	// systemd 就绪通知与看门狗
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		zlog.Warn("sd_notify 发送失败", zap.Error(err))
	}
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		go func() {
			ticker := time.NewTicker(interval / 2)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
				}
			}
		}()
	}

	zlog.Info("scalperd 已启动",
		zap.String("exchange", cfg.Exchange.Name),
		zap.String("metrics_addr", cfg.Metrics.Addr))

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	zlog.Info("收到退出信号，scalperd 关闭")
}
