package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"scalper-bot-go/config"
	"scalper-bot-go/exchange"
)

// 查询 CoinDCX 合约持仓的小工具：续单前确认持仓杠杆是否与配置一致。
func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	ticker := flag.String("ticker", "ETH/USDT", "查询的交易对（如 ETH/USDT）")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	client := exchange.NewCoinDCX(exchange.Credentials{
		Exchange:  cfg.Exchange.Name,
		APIKey:    cfg.Exchange.APIKey,
		APISecret: cfg.Exchange.APISecret,
	})
	if cfg.Exchange.BaseURL != "" {
		client.BaseURL = cfg.Exchange.BaseURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pos, err := client.GetPosition(ctx, *ticker)
	if err != nil {
		log.Fatalf("查询持仓失败: %v", err)
	}
	if pos == nil {
		fmt.Printf("%s 无持仓，下单将使用机器人配置杠杆\n", exchange.FormatTicker(*ticker))
		return
	}
	fmt.Printf("%s size=%.6f entry=%.4f leverage=%dx\n",
		exchange.FormatTicker(pos.Ticker), pos.Size, pos.EntryPrice, pos.Leverage)
}
